// Package monitoring defines the error reporting contract shared by the
// long-running loops. Implementations live in infra/monitoring.
package monitoring

import (
	"fmt"
	"time"

	"github.com/kilianp07/regiondispatch/core/logger"
)

// Monitor defines methods used for error reporting.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	Recover()
	Flush(timeout time.Duration)
}

type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) Recover()                                  {}
func (NopMonitor) Flush(time.Duration)                       {}

// OrNop returns m, or a NopMonitor when m is nil.
func OrNop(m Monitor) Monitor {
	if m == nil {
		return NopMonitor{}
	}
	return m
}

// Guard runs fn and turns a panic into a logged and reported error so the
// calling loop can carry on with its next cycle.
func Guard(m Monitor, log logger.Logger, component string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: recovered panic: %v", component, r)
			logger.OrNop(log).Errorf("%v", err)
			OrNop(m).CaptureException(err, map[string]string{"component": component})
		}
	}()
	fn()
	return nil
}
