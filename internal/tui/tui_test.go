package tui

import (
	"bytes"
	"context"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/hsafe/internal/model"
	"github.com/user/hsafe/internal/playback"
)

func fastScheduler() *playback.Scheduler {
	return playback.NewScheduler(playback.Options{
		Duration:        50 * time.Millisecond,
		Interval:        5 * time.Millisecond,
		SampleThreshold: 1000,
		SampleRate:      75,
		Window:          100,
	}, rand.New(rand.NewSource(1)))
}

func events() []model.TimelineEvent {
	return []model.TimelineEvent{
		{SrcIP: "10.0.0.1", DstIP: "10.0.0.2", DstPort: 22, Protocol: model.ProtocolTCP, Action: model.ActionDeny, Reason: "Block SSH"},
		{SrcIP: "10.0.0.1", DstIP: "10.0.0.3", DstPort: 53, Protocol: model.ProtocolUDP, Action: model.ActionAlert, Reason: "Watch DNS"},
		{SrcIP: "10.0.0.1", DstIP: "10.0.0.4", DstPort: 80, Protocol: model.ProtocolTCP, Action: model.ActionAllow},
	}
}

func TestRunPlain(t *testing.T) {
	var buf bytes.Buffer
	err := RunPlain(context.Background(), fastScheduler(), events(), &buf)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "[1/3] DENY  TCP")
	assert.Contains(t, out, "Block SSH")
	assert.Contains(t, out, "10.0.0.4:80")
	assert.True(t, strings.HasSuffix(out, "FINISHED: 3 events, 1 denied, 1 alerted\n"))
}

func TestRunPlain_Cancelled(t *testing.T) {
	sched := playback.NewScheduler(playback.Options{Duration: time.Hour, Interval: time.Hour}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunPlain(ctx, sched, events(), &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, playback.StateIdle, sched.State())
}

func TestDashboard_View(t *testing.T) {
	d := NewDashboard("capture.pcap", progress.New(progress.WithoutPercentage()))
	d.SetSize(100, 40)

	assert.Contains(t, d.View(""), "Nothing played yet")

	ev := events()
	d.Update(playback.Snapshot{
		State:   playback.StatePaused,
		Index:   2,
		Total:   3,
		Denied:  1,
		Alerted: 1,
		Current: &ev[1],
	}, []model.TimelineEvent{ev[1], ev[0]})

	view := d.View("")
	assert.Contains(t, view, "capture.pcap")
	assert.Contains(t, view, "2/3")
	assert.Contains(t, view, "PAUSED")
	assert.Contains(t, view, "Watch DNS")
	assert.Contains(t, view, "10.0.0.2:22")
}

func TestModel_Keys(t *testing.T) {
	sched := playback.NewScheduler(playback.Options{Duration: time.Hour, Interval: time.Minute}, nil)
	sched.Start(events(), 0)
	defer sched.Stop()

	m := newModel(sched, "test", make(chan playback.Tick))

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'p'}})
	assert.Equal(t, playback.StatePaused, sched.State())

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'p'}})
	assert.Equal(t, playback.StatePlaying, sched.State())

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	assert.Equal(t, playback.StateIdle, sched.State())

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestFormatEvent_Wildcard(t *testing.T) {
	line := FormatEvent(model.TimelineEvent{SrcIP: "a", DstIP: "b", DstPort: 1}, "ALLOW")
	assert.Contains(t, line, "ANY")
	assert.True(t, strings.HasSuffix(line, "-"))
}
