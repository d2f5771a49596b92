package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	cronv3 "github.com/robfig/cron/v3"

	"github.com/postlane/mailengine/internal/config"
	"github.com/postlane/mailengine/internal/logger"
	"github.com/postlane/mailengine/internal/store"
	"github.com/postlane/mailengine/internal/tracing"
	"github.com/postlane/mailengine/internal/webhook"
	"github.com/postlane/mailengine/internal/worker"
)

// runner is either the EmailWorker or the Dispatcher's RunOnce claim loop;
// the Poller drives both through the same wake-up/poll/sweep machinery.
type runner interface {
	RunOnce(ctx context.Context)
}

// Poller wakes the Email Worker and Webhook Dispatcher claim loops on a
// pg_notify signal, a periodic poll fallback, and a visibility-timeout
// sweep that runs once immediately and then on a schedule (spec.md §4.6).
// Grounded on the teacher's internal/cron/cron.go CronManager, minus the
// k8s leader-election wrapper — this process has no HA requirement to
// elect a singleton leader for, so every instance simply sweeps.
type Poller struct {
	listener    *store.Listener
	emailWorker runner
	dispatcher  runner
	store       *store.Store
	cfg         *config.WorkerConfig
	log         logger.Logger

	cron   *cronv3.Cron
	stopCh chan struct{}
	wg     sync.WaitGroup
	ostop  sync.Once
}

func NewPoller(listener *store.Listener, emailWorker *worker.EmailWorker, dispatcher *webhook.Dispatcher, s *store.Store, cfg *config.WorkerConfig, log logger.Logger) *Poller {
	return &Poller{
		listener:    listener,
		emailWorker: emailWorker,
		dispatcher:  dispatcher,
		store:       s,
		cfg:         cfg,
		log:         log,
		stopCh:      make(chan struct{}),
	}
}

// Start subscribes the listener, fires the initial sweep immediately, then
// starts the wake-up loops and the recurring sweep schedule.
func (p *Poller) Start() error {
	if err := p.listener.Start(); err != nil {
		return fmt.Errorf("poller: failed to start listener: %w", err)
	}

	p.sweep()

	// Both wake-ups fire once immediately to drain any backlog accumulated
	// while the process was down, rather than waiting for the first
	// poll_interval_ms tick or a fresh NOTIFY (spec.md §4.6).
	p.run(p.emailWorker, "EmailWorker")
	p.run(p.dispatcher, "Dispatcher")

	pollInterval := time.Duration(p.cfg.PollIntervalMs) * time.Millisecond
	p.wg.Add(2)
	go p.driveMessages(pollInterval)
	go p.driveWebhooks(pollInterval)

	p.startSweepCron()

	return nil
}

func (p *Poller) driveMessages(pollInterval time.Duration) {
	defer p.wg.Done()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-p.listener.MessageWake():
			p.run(p.emailWorker, "EmailWorker")
		case <-ticker.C:
			p.run(p.emailWorker, "EmailWorker")
		}
	}
}

func (p *Poller) driveWebhooks(pollInterval time.Duration) {
	defer p.wg.Done()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-p.listener.WebhookWake():
			p.run(p.dispatcher, "Dispatcher")
		case <-ticker.C:
			p.run(p.dispatcher, "Dispatcher")
		}
	}
}

func (p *Poller) run(r runner, name string) {
	defer tracing.RecoverAndLogToJaeger(p.log)

	span, ctx := tracing.StartTracerSpan(context.Background(), "Poller.run")
	defer span.Finish()
	tracing.TagComponentListener(span)
	span.LogKV("runner", name)

	r.RunOnce(ctx)
}

func (p *Poller) startSweepCron() {
	c := cronv3.New(cronv3.WithSeconds(), cronv3.WithChain(
		cronv3.SkipIfStillRunning(cronv3.DefaultLogger),
		cronv3.Recover(cronv3.DefaultLogger),
	))

	visibilityTimeout := time.Duration(p.cfg.VisibilityTimeoutMs) * time.Millisecond
	schedule := fmt.Sprintf("@every %s", visibilityTimeout.String())

	if _, err := c.AddFunc(schedule, func() {
		defer tracing.RecoverAndLogToJaeger(p.log)
		p.sweep()
	}); err != nil {
		p.log.Fatalf("poller: could not schedule visibility sweep: %v", err)
	}

	c.Start()
	p.cron = c
}

func (p *Poller) sweep() {
	span, ctx := tracing.StartTracerSpan(context.Background(), "Poller.sweep")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	visibilityTimeoutSeconds := p.cfg.VisibilityTimeoutMs / 1000
	if visibilityTimeoutSeconds < 1 {
		visibilityTimeoutSeconds = 1
	}

	requeued, err := p.store.SweepStaleProcessing(ctx, visibilityTimeoutSeconds)
	if err != nil {
		tracing.TraceErr(span, err)
		p.log.Errorf("poller: sweep failed: %v", err)
		return
	}
	if requeued > 0 {
		p.log.Infof("poller: requeued %d stale processing message(s)", requeued)
	}
}

// Stop releases the listener connections, stops the sweep cron, and waits
// for both wake-up loops to exit.
func (p *Poller) Stop() {
	p.ostop.Do(func() {
		close(p.stopCh)
		if p.cron != nil {
			<-p.cron.Stop().Done()
		}
		if err := p.listener.Stop(); err != nil {
			p.log.Warnf("poller: listener stop: %v", err)
		}
		p.wg.Wait()
	})
}
