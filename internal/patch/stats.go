package patch

import (
	"fmt"
	"sync/atomic"
)

type counters struct {
	loads    atomic.Int64
	silenced atomic.Int64
	failures atomic.Int64
	captured atomic.Int64
}

// Stats is a snapshot of wrapper activity.
type Stats struct {
	Loads         int64 `json:"loads"`
	Silenced      int64 `json:"silenced"`
	Failures      int64 `json:"failures"`
	CapturedBytes int64 `json:"captured_bytes"`
}

func (s Stats) String() string {
	return fmt.Sprintf("loads=%d silenced=%d failures=%d captured_bytes=%d", s.Loads, s.Silenced, s.Failures, s.CapturedBytes)
}

// Stats returns a snapshot of the wrapper counters.
func (p *Patcher) Stats() Stats {
	return Stats{
		Loads:         p.stats.loads.Load(),
		Silenced:      p.stats.silenced.Load(),
		Failures:      p.stats.failures.Load(),
		CapturedBytes: p.stats.captured.Load(),
	}
}
