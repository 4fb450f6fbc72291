// Package playback replays a classified timeline on a fixed wall-clock
// budget, whatever its length.
package playback

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/hsafe/internal/model"
	"github.com/user/hsafe/internal/util"
)

// State is the scheduler lifecycle state.
type State string

const (
	StateIdle     State = "IDLE"
	StatePlaying  State = "PLAYING"
	StatePaused   State = "PAUSED"
	StateFinished State = "FINISHED"
)

// Options tune playback.
type Options struct {
	// Duration is the wall-clock budget for a whole timeline.
	Duration time.Duration
	// Interval is the tick period.
	Interval time.Duration
	// SampleThreshold is the timeline length above which events are sampled.
	SampleThreshold int
	// SampleRate is the batch size at which an event is surfaced every tick.
	SampleRate float64
	// Window is the number of trailing events Window returns.
	Window int
}

// DefaultOptions returns the standard 5s budget at 30ms ticks.
func DefaultOptions() Options {
	return Options{
		Duration:        5 * time.Second,
		Interval:        30 * time.Millisecond,
		SampleThreshold: 1000,
		SampleRate:      75,
		Window:          100,
	}
}

// OptionsFromConfig reads playback settings from the application config.
func OptionsFromConfig(cfg *util.Config) Options {
	return Options{
		Duration:        cfg.PlaybackDuration,
		Interval:        cfg.PlaybackInterval,
		SampleThreshold: cfg.PlaybackSampleThreshold,
		SampleRate:      cfg.PlaybackSampleRate,
		Window:          cfg.PlaybackWindow,
	}
}

// Step returns how many events each tick advances so that total events
// fit in the budget.
func (o Options) Step(total int) int {
	// ceil(total / (Duration/Interval)) in integer nanoseconds
	num := int64(total) * int64(o.Interval)
	step := int((num + int64(o.Duration) - 1) / int64(o.Duration))
	if step < 1 {
		step = 1
	}
	return step
}

// Tick is emitted to subscribers on every timer tick.
type Tick struct {
	Index    int                  `json:"index"`
	Total    int                  `json:"total"`
	Event    *model.TimelineEvent `json:"event,omitempty"`
	Stats    Stats                `json:"stats"`
	Finished bool                 `json:"finished"`
}

// Snapshot is the scheduler's observable state.
type Snapshot struct {
	State   State                `json:"state"`
	Index   int                  `json:"index"`
	Total   int                  `json:"total"`
	Denied  int                  `json:"denied"`
	Alerted int                  `json:"alerted"`
	Current *model.TimelineEvent `json:"current,omitempty"`
}

// Scheduler owns one playback: its timeline, position and timer. At most
// one timer runs at a time; starting, pausing or stopping cancels it.
type Scheduler struct {
	mu   sync.Mutex
	opts Options
	rng  *rand.Rand

	timeline []model.TimelineEvent
	stats    []Stats
	index    int
	step     int
	state    State
	current  *model.TimelineEvent

	cancel context.CancelFunc
	gen    atomic.Uint64
	done   chan struct{}
	closed bool

	emitMu  sync.Mutex
	subs    map[int]func(Tick)
	nextSub int
}

// NewScheduler creates an idle scheduler. A nil rng is seeded from the clock.
func NewScheduler(opts Options, rng *rand.Rand) *Scheduler {
	def := DefaultOptions()
	if opts.Interval <= 0 {
		opts.Interval = def.Interval
	}
	if opts.Duration <= 0 {
		opts.Duration = def.Duration
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = def.SampleRate
	}
	if opts.Window <= 0 {
		opts.Window = def.Window
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Scheduler{
		opts:  opts,
		rng:   rng,
		state: StateIdle,
		done:  make(chan struct{}),
		subs:  make(map[int]func(Tick)),
	}
}

// Subscribe registers fn for every tick and returns a function removing it.
// Callbacks run on the timer goroutine and may call back into the scheduler.
func (s *Scheduler) Subscribe(fn func(Tick)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Start plays timeline from resumeIndex, replacing any running playback.
// Cumulative counters are computed here, once per timeline.
func (s *Scheduler) Start(timeline []model.TimelineEvent, resumeIndex int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopTimer()
	s.timeline = timeline
	s.stats = CumulativeStats(timeline)
	s.step = s.opts.Step(len(timeline))
	s.index = clamp(resumeIndex, 0, len(timeline))
	s.current = nil
	s.closeDone()
	s.done = make(chan struct{})
	s.closed = false

	util.Debug("Playback started: %d events, step %d, from %d", len(timeline), s.step, s.index)
	s.startTimer()
}

// Restart replays the current timeline from the beginning.
func (s *Scheduler) Restart() {
	s.mu.Lock()
	timeline := s.timeline
	s.mu.Unlock()
	s.Start(timeline, 0)
}

// Pause stops the timer, keeping the position. It is a no-op unless playing.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePlaying {
		return
	}
	s.stopTimer()
	s.state = StatePaused
	s.current = nil
}

// Resume continues a paused playback from its position.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePaused {
		return
	}
	s.startTimer()
}

// Stop returns to IDLE with the index reset, from any state.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopTimer()
	s.state = StateIdle
	s.index = 0
	s.current = nil
	s.closeDone()
}

// State returns the lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Index returns how many events have played.
func (s *Scheduler) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// Snapshot returns state, position and counters together.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := StatsAt(s.stats, s.index)
	return Snapshot{
		State:   s.state,
		Index:   s.index,
		Total:   len(s.timeline),
		Denied:  st.Denied,
		Alerted: st.Alerted,
		Current: s.current,
	}
}

// Window returns up to Options.Window events before the current index,
// newest first.
func (s *Scheduler) Window() []model.TimelineEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.index - s.opts.Window
	if start < 0 {
		start = 0
	}
	out := make([]model.TimelineEvent, 0, s.index-start)
	for i := s.index - 1; i >= start; i-- {
		out = append(out, s.timeline[i])
	}
	return out
}

// Done is closed when the current playback finishes or is stopped.
func (s *Scheduler) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// startTimer installs the single playback timer. Callers hold s.mu.
func (s *Scheduler) startTimer() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.state = StatePlaying
	gen := s.gen.Add(1)

	go s.run(ctx, gen)
}

// stopTimer cancels the active timer, if any. Callers hold s.mu.
func (s *Scheduler) stopTimer() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen.Add(1)
}

func (s *Scheduler) run(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick, subs, ok := s.advance(gen)
			if !ok {
				return
			}
			s.emit(gen, tick, subs)
			if tick.Finished {
				s.finish(gen)
				return
			}
		}
	}
}

// advance moves the index one step and picks the event to surface.
func (s *Scheduler) advance(gen uint64) (Tick, []func(Tick), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen.Load() != gen || s.state != StatePlaying {
		return Tick{}, nil, false
	}

	total := len(s.timeline)
	subs := s.subscribers()

	if s.index >= total {
		s.index = total
		s.state = StateFinished
		s.current = nil
		if s.cancel != nil {
			s.cancel()
			s.cancel = nil
		}
		util.Debug("Playback finished after %d events", total)
		return Tick{Index: total, Total: total, Stats: StatsAt(s.stats, total), Finished: true}, subs, true
	}

	prev := s.index
	next := prev + s.step
	if next > total {
		next = total
	}
	s.index = next

	var ev *model.TimelineEvent
	if total > s.opts.SampleThreshold {
		batch := next - prev
		if s.rng.Float64() < float64(batch)/s.opts.SampleRate {
			picked := s.timeline[prev+s.rng.Intn(batch)]
			ev = &picked
		}
	} else {
		picked := s.timeline[prev]
		ev = &picked
	}
	if ev != nil {
		s.current = ev
	}

	return Tick{Index: next, Total: total, Event: ev, Stats: StatsAt(s.stats, next)}, subs, true
}

// emit delivers a tick unless the timer it came from has been replaced.
func (s *Scheduler) emit(gen uint64, tick Tick, subs []func(Tick)) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	// A subscriber may stop or restart playback; later ones must not see
	// the stale tick.
	for _, fn := range subs {
		if s.gen.Load() != gen {
			return
		}
		fn(tick)
	}
}

// finish closes Done once the final tick has been delivered.
func (s *Scheduler) finish(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen.Load() == gen {
		s.closeDone()
	}
}

func (s *Scheduler) subscribers() []func(Tick) {
	out := make([]func(Tick), 0, len(s.subs))
	for i := 0; i < s.nextSub; i++ {
		if fn, ok := s.subs[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func (s *Scheduler) closeDone() {
	if !s.closed {
		close(s.done)
		s.closed = true
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
