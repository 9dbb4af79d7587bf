// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package render

import (
	"time"

	"github.com/loov/hrtime"
)

// Stats accumulates frame times over a reporting
// interval.
type Stats struct {
	Frames int
	Total  time.Duration
	Max    time.Duration

	start time.Duration
}

// Mean returns the mean frame time.
func (s *Stats) Mean() time.Duration {
	if s.Frames == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Frames)
}

func (s *Stats) add(d time.Duration) {
	s.Frames++
	s.Total += d
	s.Max = max(s.Max, d)
}

// due returns whether interval elapsed since the last
// reset, as of now.
func (s *Stats) due(now, interval time.Duration) bool {
	return now-s.start >= interval
}

func (s *Stats) reset(now time.Duration) {
	*s = Stats{start: now}
}

// clock returns the current time as a duration from an
// arbitrary point.
var clock = hrtime.Now
