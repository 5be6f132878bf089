package scheduler

import (
	"context"
	"time"

	"AlertDesk/pkg/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Cron runs named jobs on cron expressions. Jobs receive a context that is
// cancelled when Stop is called.
type Cron struct {
	c      *cron.Cron
	loc    *time.Location
	ctx    context.Context
	cancel context.CancelFunc
	names  map[cron.EntryID]string
}

// zapCronLogger 把 cron 内部日志转到 zap
type zapCronLogger struct{}

func (zapCronLogger) Info(msg string, kv ...interface{}) {
	logger.Debug("cron: "+msg, zap.Any("kv", kv))
}

func (zapCronLogger) Error(err error, msg string, kv ...interface{}) {
	logger.Error("cron: "+msg, zap.Error(err), zap.Any("kv", kv))
}

func NewCron(loc *time.Location) *Cron {
	if loc == nil {
		loc = time.Local
	}
	l := zapCronLogger{}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(l),
		cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	return &Cron{c: c, loc: loc, ctx: ctx, cancel: cancel, names: make(map[cron.EntryID]string)}
}

func (cr *Cron) Start() { cr.c.Start() }

// Stop cancels running jobs and waits for them to return.
func (cr *Cron) Stop() {
	cr.cancel()
	<-cr.c.Stop().Done()
}

// Add schedules job under name. Every run is logged with its duration.
func (cr *Cron) Add(name, expr string, job Job) (cron.EntryID, error) {
	id, err := cr.c.AddFunc(expr, func() {
		start := time.Now()
		job.Run(cr.ctx)
		logger.Debug("job finished", zap.String("job", name), zap.Duration("cost", time.Since(start)))
	})
	if err != nil {
		return 0, err
	}
	cr.names[id] = name
	logger.Info("job scheduled", zap.String("job", name), zap.String("expr", expr))
	return id, nil
}

func (cr *Cron) AddWithCtx(name, expr string, fn func(ctx context.Context)) (cron.EntryID, error) {
	return cr.Add(name, expr, FuncJob(fn))
}

// Names lists scheduled jobs with their next run.
func (cr *Cron) Names() map[string]time.Time {
	out := make(map[string]time.Time, len(cr.names))
	for _, e := range cr.c.Entries() {
		out[cr.names[e.ID]] = e.Next
	}
	return out
}

func (cr *Cron) Entries() []cron.Entry { return cr.c.Entries() }
