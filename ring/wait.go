package ring

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// WaitStrategy decides how [TxRing.Insert] waits for a slot still owned by
// hardware. Wait returns once ready reports true; there is no timeout.
type WaitStrategy interface {
	Wait(ready func() bool)
}

// SpinWait busy-polls without ever giving up the processor.
type SpinWait struct{}

func (SpinWait) Wait(ready func() bool) {
	for !ready() {
	}
}

// YieldWait yields to the scheduler between polls.
type YieldWait struct{}

func (YieldWait) Wait(ready func() bool) {
	for !ready() {
		runtime.Gosched()
	}
}

// SleepWait sleeps between polls, doubling the interval up to Max.
type SleepWait struct {
	Interval time.Duration
	Max      time.Duration
}

func (s SleepWait) Wait(ready func() bool) {
	d := s.Interval
	if d <= 0 {
		d = 10 * time.Microsecond
	}
	limit := s.Max
	if limit < d {
		limit = d
	}
	for !ready() {
		time.Sleep(d)
		if d *= 2; d > limit {
			d = limit
		}
	}
}

// ParseWaitStrategy maps a configured name to a [WaitStrategy]. interval is
// the first sleep of the sleep strategy, which backs off to 100 times that.
func ParseWaitStrategy(name string, interval time.Duration) (WaitStrategy, error) {
	switch strings.ToLower(name) {
	case "", "spin":
		return SpinWait{}, nil
	case "yield":
		return YieldWait{}, nil
	case "sleep":
		return SleepWait{Interval: interval, Max: 100 * interval}, nil
	}
	return nil, fmt.Errorf("unknown wait strategy %q, possible strategies: %v",
		name, []string{"spin", "yield", "sleep"})
}
