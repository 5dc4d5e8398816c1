// Package store keeps a history of analysis runs in SQLite.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/reefpulse/LagoPObs/clustering"
	"github.com/reefpulse/LagoPObs/internal/errors"
	"github.com/reefpulse/LagoPObs/logging"
	"github.com/reefpulse/LagoPObs/population"
)

// Run is one analysis of a batch of recordings
type Run struct {
	ID                  uuid.UUID `gorm:"type:text;primaryKey"`
	StartedAt           time.Time `gorm:"index"`
	InputDir            string
	FeatureAlgorithm    string
	ClusteringAlgorithm string
	Params              string // JSON encoded parameters
	Recordings          int
	NClusters           int
	Individuals         int
	Residents           int
	Assignments         []Assignment  `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
	Presence            []PresenceRow `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

// Assignment records the cluster of one recording
type Assignment struct {
	ID      uint      `gorm:"primaryKey"`
	RunID   uuid.UUID `gorm:"type:text;index;not null"`
	File    string
	Cluster int
}

// PresenceRow is one line of the presence index table of a run
type PresenceRow struct {
	ID      uint      `gorm:"primaryKey"`
	RunID   uuid.UUID `gorm:"type:text;index;not null"`
	Cluster int
	Days    int
	Sounds  int
	Index   float64 `gorm:"column:presence_index"`
}

// Store wraps the database handle
type Store struct {
	db     *gorm.DB
	path   string
	logger logging.Logger
}

// Open opens or creates the database at path and migrates the schema.
// ":memory:" gives a private in-memory database.
func Open(path string) (*Store, error) {
	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	db, err := gorm.Open(sqlite.Open(path), gormCfg)
	if err != nil {
		return nil, errors.New(err).
			Component("store").
			Category(errors.CategoryDatabase).
			FileContext(path).
			Build()
	}

	// a single connection keeps ":memory:" databases shared and serialises writers
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.New(err).Component("store").Category(errors.CategoryDatabase).Build()
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Run{}, &Assignment{}, &PresenceRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, errors.New(fmt.Errorf("failed to auto-migrate database: %w", err)).
			Component("store").
			Category(errors.CategoryDatabase).
			FileContext(path).
			Build()
	}

	s := &Store{
		db:     db,
		path:   path,
		logger: logging.WithFields(logging.Fields{"component": "store", "path": path}),
	}
	s.logger.Debug("Database opened")
	return s, nil
}

// Close releases the connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// NewRun prepares a run record with a fresh ID. params is stored as JSON.
func NewRun(params any) (*Run, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return nil, errors.New(fmt.Errorf("encode run parameters: %w", err)).
			Component("store").
			Category(errors.CategoryValidation).
			Build()
	}
	return &Run{
		ID:        uuid.New(),
		StartedAt: time.Now().UTC(),
		Params:    string(data),
	}, nil
}

// DecodeParams unmarshals the stored parameters into v
func (r *Run) DecodeParams(v any) error {
	return json.Unmarshal([]byte(r.Params), v)
}

// NewAssignments pairs files with their labels
func NewAssignments(files []string, labels clustering.Labels) []Assignment {
	out := make([]Assignment, 0, len(files))
	for i, f := range files {
		if i >= len(labels) {
			break
		}
		out = append(out, Assignment{File: f, Cluster: labels[i]})
	}
	return out
}

// NewPresenceRows converts presence indices to rows
func NewPresenceRows(indices []population.PresenceIndex) []PresenceRow {
	out := make([]PresenceRow, len(indices))
	for i, p := range indices {
		out[i] = PresenceRow{
			Cluster: p.Cluster,
			Days:    p.DaysOfPresence,
			Sounds:  p.NumberOfSounds,
			Index:   p.Index,
		}
	}
	return out
}

// SaveRun stores a run with its assignments and presence rows in one transaction
func (s *Store) SaveRun(ctx context.Context, run *Run, assignments []Assignment, presence []PresenceRow) error {
	if run == nil {
		return errors.Newf("nil run").Component("store").Category(errors.CategoryValidation).Build()
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Recordings == 0 {
		run.Recordings = len(assignments)
	}
	for i := range assignments {
		assignments[i].RunID = run.ID
	}
	for i := range presence {
		presence[i].RunID = run.ID
	}

	// children are inserted explicitly
	header := *run
	header.Assignments = nil
	header.Presence = nil

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&header).Error; err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		if len(assignments) > 0 {
			if err := tx.CreateInBatches(assignments, 200).Error; err != nil {
				return fmt.Errorf("insert assignments: %w", err)
			}
		}
		if len(presence) > 0 {
			if err := tx.CreateInBatches(presence, 200).Error; err != nil {
				return fmt.Errorf("insert presence rows: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return errors.New(err).
			Component("store").
			Category(errors.CategoryDatabase).
			Context("run_id", run.ID.String()).
			Build()
	}

	s.logger.Info("Run saved", logging.Fields{
		"run_id":      run.ID.String(),
		"recordings":  len(assignments),
		"clusters":    run.NClusters,
		"individuals": run.Individuals,
	})
	return nil
}

// ListRuns returns every run, newest first
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	var runs []Run
	if err := s.db.WithContext(ctx).Order("started_at DESC").Find(&runs).Error; err != nil {
		return nil, errors.New(err).Component("store").Category(errors.CategoryDatabase).Build()
	}
	return runs, nil
}

// GetRun loads one run
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	var run Run
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if err != nil {
		cat := errors.CategoryDatabase
		if errors.Is(err, gorm.ErrRecordNotFound) {
			cat = errors.CategoryNotFound
		}
		return nil, errors.New(err).
			Component("store").
			Category(cat).
			Context("run_id", id.String()).
			Build()
	}
	return &run, nil
}

// Assignments returns the file to cluster table of a run in insertion order
func (s *Store) Assignments(ctx context.Context, runID uuid.UUID) ([]Assignment, error) {
	var rows []Assignment
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("id ASC").Find(&rows).Error
	if err != nil {
		return nil, errors.New(err).
			Component("store").
			Category(errors.CategoryDatabase).
			Context("run_id", runID.String()).
			Build()
	}
	return rows, nil
}

// Presence returns the presence rows of a run in insertion order
func (s *Store) Presence(ctx context.Context, runID uuid.UUID) ([]PresenceRow, error) {
	var rows []PresenceRow
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("id ASC").Find(&rows).Error
	if err != nil {
		return nil, errors.New(err).
			Component("store").
			Category(errors.CategoryDatabase).
			Context("run_id", runID.String()).
			Build()
	}
	return rows, nil
}

// DeleteRun removes a run and its rows
func (s *Store) DeleteRun(ctx context.Context, id uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", id).Delete(&Assignment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("run_id = ?", id).Delete(&PresenceRow{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&Run{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		cat := errors.CategoryDatabase
		if errors.Is(err, gorm.ErrRecordNotFound) {
			cat = errors.CategoryNotFound
		}
		return errors.New(err).Component("store").Category(cat).Context("run_id", id.String()).Build()
	}
	return nil
}
