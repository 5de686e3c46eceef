// Package waitpolicy implements the "what to do when the reader returned no
// data" strategy, spec.md §4.4.
package waitpolicy

import (
	"runtime"
	"time"
)

// Policy is a closed sum type: Yield cooperatively relinquishes the
// scheduler; Sleep suspends for a fixed duration.
type Policy interface {
	Wait()
	isPolicy()
}

type YieldPolicy struct{}

func (YieldPolicy) Wait() { runtime.Gosched() }
func (YieldPolicy) isPolicy() {}

type SleepPolicy struct{ Duration time.Duration }

func (p SleepPolicy) Wait() { time.Sleep(p.Duration) }
func (SleepPolicy) isPolicy() {}
