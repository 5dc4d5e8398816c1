package main

import (
	"io"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/reefpulse/LagoPObs/logging"
	"github.com/reefpulse/LagoPObs/pipeline"
)

// progressObserver advances one bar per pipeline checkpoint
type progressObserver struct {
	progress *mpb.Progress
	bar      *mpb.Bar
	logger   logging.Logger
}

func newProgressObserver(out io.Writer) *progressObserver {
	p := mpb.New(mpb.WithWidth(48), mpb.WithOutput(out))
	bar := p.AddBar(int64(len(pipeline.Stages)),
		mpb.PrependDecorators(
			decor.Name("Analysis: "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.Elapsed(decor.ET_STYLE_GO),
		),
	)
	return &progressObserver{
		progress: p,
		bar:      bar,
		logger:   logging.WithFields(logging.Fields{"component": "cli"}),
	}
}

func (o *progressObserver) Checkpoint(stage pipeline.Stage, detail string) {
	o.logger.Info("Stage complete", logging.Fields{"stage": stage.String(), "detail": detail})
	o.bar.Increment()
}

// finish completes the bar, or drops it when the run failed, and waits for rendering
func (o *progressObserver) finish(ok bool) {
	if ok {
		o.bar.SetCurrent(int64(len(pipeline.Stages)))
	} else {
		o.bar.Abort(true)
	}
	o.progress.Wait()
}
