package playback

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/hsafe/internal/model"
)

func timelineOf(actions ...model.Action) []model.TimelineEvent {
	out := make([]model.TimelineEvent, len(actions))
	for i, a := range actions {
		out[i] = model.TimelineEvent{Timestamp: float64(i), DstPort: i, Action: a}
	}
	return out
}

func synthetic(n int) []model.TimelineEvent {
	cycle := []model.Action{model.ActionAllow, model.ActionDeny, model.ActionAlert, model.ActionAllow}
	out := make([]model.TimelineEvent, n)
	for i := range out {
		out[i] = model.TimelineEvent{Timestamp: float64(i), DstPort: i, Action: cycle[i%len(cycle)]}
	}
	return out
}

func fastOptions() Options {
	return Options{
		Duration:        200 * time.Millisecond,
		Interval:        5 * time.Millisecond,
		SampleThreshold: 1000,
		SampleRate:      75,
		Window:          100,
	}
}

func waitDone(t *testing.T, s *Scheduler, timeout time.Duration) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(timeout):
		t.Fatalf("playback did not finish within %s (state %s, index %d)", timeout, s.State(), s.Index())
	}
}

func TestCumulativeStats_PrefixSums(t *testing.T) {
	tl := timelineOf(model.ActionAllow, model.ActionDeny, model.ActionAlert, model.ActionDeny, model.ActionAllow)
	stats := CumulativeStats(tl)

	assert.Equal(t, Stats{Denied: 2, Alerted: 1}, StatsAt(stats, 4))
	assert.Equal(t, Count(tl, 4), StatsAt(stats, 4))
	assert.Equal(t, Stats{}, StatsAt(stats, 0))
	assert.Equal(t, Stats{Denied: 2, Alerted: 1}, StatsAt(stats, 99))
}

func TestCumulativeStats_MatchesRecountEverywhere(t *testing.T) {
	tl := synthetic(257)
	stats := CumulativeStats(tl)
	for i := 0; i <= len(tl); i++ {
		require.Equal(t, Count(tl, i), StatsAt(stats, i), "index %d", i)
	}
}

func TestOptions_Step(t *testing.T) {
	o := DefaultOptions()
	assert.Equal(t, 1, o.Step(0))
	assert.Equal(t, 1, o.Step(10))
	assert.Equal(t, 1, o.Step(166))
	assert.Equal(t, 2, o.Step(167))
	assert.Equal(t, 60, o.Step(10000))
}

func TestScheduler_PlaysToFinished(t *testing.T) {
	s := NewScheduler(fastOptions(), rand.New(rand.NewSource(1)))

	var mu sync.Mutex
	var ticks []Tick
	s.Subscribe(func(tk Tick) {
		mu.Lock()
		ticks = append(ticks, tk)
		mu.Unlock()
	})

	tl := timelineOf(model.ActionAllow, model.ActionDeny, model.ActionAlert, model.ActionDeny, model.ActionAllow)
	s.Start(tl, 0)
	waitDone(t, s, 2*time.Second)

	snap := s.Snapshot()
	assert.Equal(t, StateFinished, snap.State)
	assert.Equal(t, 5, snap.Index)
	assert.Equal(t, 2, snap.Denied)
	assert.Equal(t, 1, snap.Alerted)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, ticks, 6)
	for i, tk := range ticks[:5] {
		assert.Equal(t, i+1, tk.Index)
		require.NotNil(t, tk.Event)
		assert.Equal(t, i, tk.Event.DstPort, "small timelines surface every event in order")
		assert.Equal(t, Count(tl, tk.Index), tk.Stats)
	}
	assert.True(t, ticks[5].Finished)
	assert.Nil(t, ticks[5].Event)
}

func TestScheduler_BoundedDuration(t *testing.T) {
	opts := fastOptions()

	elapsed := func(n int) time.Duration {
		s := NewScheduler(opts, rand.New(rand.NewSource(2)))
		begin := time.Now()
		s.Start(synthetic(n), 0)
		waitDone(t, s, 5*time.Second)
		require.Equal(t, StateFinished, s.State())
		require.Equal(t, n, s.Index())
		return time.Since(begin)
	}

	small := elapsed(10)
	large := elapsed(10000)

	limit := opts.Duration + time.Second
	assert.Less(t, small, limit)
	assert.Less(t, large, limit)
}

func TestScheduler_SampledCountersStayExact(t *testing.T) {
	s := NewScheduler(fastOptions(), rand.New(rand.NewSource(3)))
	tl := synthetic(5000)

	var mu sync.Mutex
	surfaced, ticks := 0, 0
	s.Subscribe(func(tk Tick) {
		mu.Lock()
		defer mu.Unlock()
		if tk.Finished {
			return
		}
		ticks++
		if tk.Event != nil {
			surfaced++
		}
		assert.Equal(t, Count(tl, tk.Index), tk.Stats)
	})

	s.Start(tl, 0)
	waitDone(t, s, 5*time.Second)

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, surfaced, ticks)
	assert.Equal(t, Count(tl, len(tl)), StatsAt(CumulativeStats(tl), s.Index()))
}

func TestScheduler_UnsampledBatchesSurfaceFirstEvent(t *testing.T) {
	opts := fastOptions()
	tl := synthetic(500)
	require.Greater(t, opts.Step(len(tl)), 1)
	s := NewScheduler(opts, rand.New(rand.NewSource(4)))

	var mu sync.Mutex
	var ticks []Tick
	s.Subscribe(func(tk Tick) {
		mu.Lock()
		ticks = append(ticks, tk)
		mu.Unlock()
	})

	s.Start(tl, 0)
	waitDone(t, s, 5*time.Second)

	mu.Lock()
	defer mu.Unlock()
	prev := 0
	for _, tk := range ticks {
		if tk.Finished {
			break
		}
		require.NotNil(t, tk.Event)
		assert.Equal(t, prev, tk.Event.DstPort)
		assert.Equal(t, Count(tl, tk.Index), tk.Stats)
		prev = tk.Index
	}
	assert.Equal(t, len(tl), prev)
}

func TestScheduler_PauseResume(t *testing.T) {
	opts := fastOptions()
	opts.Duration = time.Second
	opts.Interval = 10 * time.Millisecond
	s := NewScheduler(opts, nil)

	s.Start(synthetic(100), 0)
	time.Sleep(50 * time.Millisecond)
	s.Pause()
	require.Equal(t, StatePaused, s.State())

	at := s.Index()
	assert.Greater(t, at, 0)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, at, s.Index(), "index must not move while paused")
	assert.Nil(t, s.Snapshot().Current)

	s.Resume()
	assert.Equal(t, StatePlaying, s.State())
	waitDone(t, s, 5*time.Second)
	assert.Equal(t, 100, s.Index())
}

func TestScheduler_StopResets(t *testing.T) {
	opts := fastOptions()
	opts.Duration = time.Second
	s := NewScheduler(opts, nil)

	s.Start(synthetic(50), 0)
	time.Sleep(20 * time.Millisecond)
	s.Stop()

	select {
	case <-s.Done():
	default:
		t.Fatal("Done must be closed after Stop")
	}
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, 0, s.Index())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, s.Index(), "no timer may keep running after Stop")
}

func TestScheduler_StopDuringDeliverySuppressesLaterSubscribers(t *testing.T) {
	opts := fastOptions()
	opts.Duration = time.Second
	s := NewScheduler(opts, nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	s.Subscribe(func(tk Tick) {
		once.Do(func() {
			close(entered)
			<-release
		})
	})

	var mu sync.Mutex
	var late []Tick
	stopped := false
	s.Subscribe(func(tk Tick) {
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			late = append(late, tk)
		}
	})

	s.Start(synthetic(50), 0)
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first tick was never delivered")
	}

	s.Stop()
	mu.Lock()
	stopped = true
	mu.Unlock()
	close(release)

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, late, "no subscriber may receive a tick after Stop returns")
	assert.Equal(t, StateIdle, s.State())
}

func TestScheduler_RestartReplacesTimer(t *testing.T) {
	opts := fastOptions()
	opts.Duration = 500 * time.Millisecond
	s := NewScheduler(opts, nil)

	tl := synthetic(100)
	s.Start(tl, 0)
	time.Sleep(30 * time.Millisecond)
	s.Start(tl, 0)

	// Subscribers are captured per tick, so this one only sees the new timer.
	var mu sync.Mutex
	last := 0
	regressions := 0
	s.Subscribe(func(tk Tick) {
		mu.Lock()
		defer mu.Unlock()
		if tk.Index < last {
			regressions++
		}
		last = tk.Index
	})
	waitDone(t, s, 5*time.Second)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, regressions, "ticks from a replaced timer must not interleave")
	assert.Equal(t, 100, last)
}

func TestScheduler_ResumeIndexAndWindow(t *testing.T) {
	opts := fastOptions()
	opts.Window = 3
	s := NewScheduler(opts, nil)

	tl := synthetic(8)
	s.Start(tl, 6)
	waitDone(t, s, 2*time.Second)

	w := s.Window()
	require.Len(t, w, 3)
	assert.Equal(t, []int{7, 6, 5}, []int{w[0].DstPort, w[1].DstPort, w[2].DstPort})
}

func TestScheduler_EmptyTimelineFinishes(t *testing.T) {
	s := NewScheduler(fastOptions(), nil)
	s.Start(nil, 0)
	waitDone(t, s, time.Second)
	assert.Equal(t, StateFinished, s.State())
	assert.Empty(t, s.Window())
}

func TestScheduler_PauseWhenIdleIsNoop(t *testing.T) {
	s := NewScheduler(fastOptions(), nil)
	s.Pause()
	s.Resume()
	assert.Equal(t, StateIdle, s.State())
}
