package tui

import (
	"context"
	"fmt"
	"io"

	"github.com/user/hsafe/internal/model"
	"github.com/user/hsafe/internal/playback"
)

// RunPlain plays timeline without a terminal UI, writing one line per
// surfaced event and a closing summary. It returns when playback finishes
// or ctx is cancelled.
func RunPlain(ctx context.Context, sched *playback.Scheduler, timeline []model.TimelineEvent, w io.Writer) error {
	var werr error
	unsubscribe := sched.Subscribe(func(t playback.Tick) {
		if werr != nil {
			return
		}
		if t.Event != nil {
			_, werr = fmt.Fprintf(w, "[%d/%d] %s\n", t.Index, t.Total,
				FormatEvent(*t.Event, padRight(string(t.Event.Action), 5)))
		}
	})
	defer unsubscribe()

	sched.Start(timeline, 0)
	done := sched.Done()

	select {
	case <-done:
	case <-ctx.Done():
		sched.Stop()
		return ctx.Err()
	}

	snap := sched.Snapshot()
	if werr != nil {
		return werr
	}
	_, err := fmt.Fprintf(w, "%s: %d events, %d denied, %d alerted\n",
		snap.State, snap.Index, snap.Denied, snap.Alerted)
	return err
}
