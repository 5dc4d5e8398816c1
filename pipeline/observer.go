package pipeline

// Stage identifies a pipeline checkpoint
type Stage int

const (
	StagePreprocessed Stage = iota
	StageSpectrograms
	StageClustered
	StagePersisted
	StagePopulation
)

// Stages lists the checkpoints in the order they are reached
var Stages = []Stage{StagePreprocessed, StageSpectrograms, StageClustered, StagePersisted, StagePopulation}

func (s Stage) String() string {
	switch s {
	case StagePreprocessed:
		return "preprocessing"
	case StageSpectrograms:
		return "spectrograms"
	case StageClustered:
		return "matching and clustering"
	case StagePersisted:
		return "persistence"
	case StagePopulation:
		return "population estimation"
	default:
		return "unknown"
	}
}

// Observer is notified once a stage has completed. Checkpoint is called from
// the goroutine running the pipeline, one stage at a time.
type Observer interface {
	Checkpoint(stage Stage, detail string)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(stage Stage, detail string)

func (f ObserverFunc) Checkpoint(stage Stage, detail string) {
	f(stage, detail)
}

// NoOpObserver ignores every checkpoint
type NoOpObserver struct{}

func (NoOpObserver) Checkpoint(Stage, string) {}
