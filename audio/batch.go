package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/reefpulse/LagoPObs/internal/errors"
)

// ListWAVs returns the .wav files of dir sorted by name, which defines batch order
func ListWAVs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.FileError(fmt.Errorf("failed to read input directory: %w", err), dir)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".wav") {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	return paths, nil
}

// LoadBatch decodes every path in parallel. The returned slice keeps the order of paths.
func (d *Decoder) LoadBatch(ctx context.Context, paths []string, workers int) ([]*Recording, error) {
	if len(paths) == 0 {
		return nil, ErrNoRecordings
	}

	recs := make([]*Recording, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := d.DecodeFile(path)
			if err != nil {
				return err
			}
			recs[i] = rec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return recs, nil
}
