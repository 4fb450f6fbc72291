package playback

import (
	"github.com/user/hsafe/internal/model"
)

// Stats are cumulative counters up to a playback index.
type Stats struct {
	Denied  int `json:"denied"`
	Alerted int `json:"alerted"`
}

// CumulativeStats returns prefix sums: entry i counts the DENY and ALERT
// events in timeline[0..i].
func CumulativeStats(timeline []model.TimelineEvent) []Stats {
	out := make([]Stats, len(timeline))
	var cur Stats
	for i, ev := range timeline {
		switch ev.Action {
		case model.ActionDeny:
			cur.Denied++
		case model.ActionAlert:
			cur.Alerted++
		}
		out[i] = cur
	}
	return out
}

// StatsAt returns the counters after index events have played.
func StatsAt(stats []Stats, index int) Stats {
	if index <= 0 || len(stats) == 0 {
		return Stats{}
	}
	if index > len(stats) {
		index = len(stats)
	}
	return stats[index-1]
}

// Count recounts timeline[0..index) directly.
func Count(timeline []model.TimelineEvent, index int) Stats {
	var s Stats
	for i := 0; i < index && i < len(timeline); i++ {
		switch timeline[i].Action {
		case model.ActionDeny:
			s.Denied++
		case model.ActionAlert:
			s.Alerted++
		}
	}
	return s
}
