package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/user/hsafe/internal/model"
	"github.com/user/hsafe/internal/playback"
	"github.com/user/hsafe/internal/tui"
)

// playTimeline replays timeline in the terminal dashboard, or as plain
// lines when plain is set or stdout is not a terminal.
func playTimeline(ctx context.Context, timeline []model.TimelineEvent, title string, plain bool) error {
	if len(timeline) == 0 {
		fmt.Println("Nothing to play: the timeline is empty")
		return nil
	}

	sched := playback.NewScheduler(playback.OptionsFromConfig(cfg), nil)

	if plain || !term.IsTerminal(int(os.Stdout.Fd())) {
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		err := tui.RunPlain(ctx, sched, timeline, os.Stdout)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	return tui.NewApp(sched, timeline, title).Run()
}
