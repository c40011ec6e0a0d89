package runtime

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
)

func NotifyContext(parent context.Context) (context.Context, func()) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// Shutdown closes components in the order they were added. A failing step is
// logged and the rest still run.
type Shutdown struct {
	log   *logrus.Entry
	steps []closer
}

func NewShutdown(log *logrus.Entry) *Shutdown {
	return &Shutdown{log: log}
}

func (s *Shutdown) Add(name string, fn func(context.Context) error) {
	s.steps = append(s.steps, closer{name: name, fn: fn})
}

// Run returns the number of steps that failed.
func (s *Shutdown) Run(ctx context.Context) int {
	failed := 0
	for _, c := range s.steps {
		if err := c.fn(ctx); err != nil {
			failed++
			s.log.WithError(err).WithField("step", c.name).Warn("[shutdown] step failed")
			continue
		}
		s.log.WithField("step", c.name).Debug("[shutdown] closed")
	}
	return failed
}
