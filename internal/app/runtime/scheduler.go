package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler runs periodic maintenance jobs. A job still running when its
// next tick fires is skipped; a panicking job is logged and recovered.
type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context
	log  *logrus.Entry
}

func NewScheduler(ctx context.Context, log *logrus.Entry) *Scheduler {
	logger := cronLogger{log}
	return &Scheduler{
		cron: cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		ctx:  ctx,
		log:  log,
	}
}

// Add registers fn under spec (standard five-field cron or a descriptor such
// as "@every 5m").
func (s *Scheduler) Add(name, spec string, fn func(ctx context.Context) (int, error)) error {
	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		n, err := fn(s.ctx)
		entry := s.log.WithFields(logrus.Fields{"job": name, "n": n, "took": time.Since(start).String()})
		if err != nil {
			entry.WithError(err).Warn("[cron] job failed")
			return
		}
		entry.Debug("[cron] job done")
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

func (s *Scheduler) Len() int { return len(s.cron.Entries()) }

func (s *Scheduler) Start() { s.cron.Start() }

// Stop waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("[cron] jobs still running at shutdown")
	}
}

type cronLogger struct{ e *logrus.Entry }

func (l cronLogger) Info(msg string, kv ...any) {
	l.e.WithFields(fields(kv)).Debug("[cron] " + msg)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.e.WithFields(fields(kv)).WithError(err).Error("[cron] " + msg)
}

func fields(kv []any) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}
