package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"gorm.io/gorm"

	"github.com/postlane/mailengine/internal/config"
	"github.com/postlane/mailengine/internal/database"
	"github.com/postlane/mailengine/internal/dkim"
	"github.com/postlane/mailengine/internal/events"
	"github.com/postlane/mailengine/internal/logger"
	"github.com/postlane/mailengine/internal/poller"
	"github.com/postlane/mailengine/internal/repository"
	"github.com/postlane/mailengine/internal/smtpclient"
	"github.com/postlane/mailengine/internal/store"
	"github.com/postlane/mailengine/internal/tracing"
	"github.com/postlane/mailengine/internal/webhook"
	"github.com/postlane/mailengine/internal/worker"
)

// App wires every process-level component together and owns the process's
// start/stop sequence. Structurally adapted from server/server.go's
// Server: same logger/tracer bootstrap, the same wrapGoroutine/
// recoverWithJaeger panic-to-span pattern, and the same signal-driven
// waitForShutdown — retargeted from IMAP+HTTP at the Email Worker,
// Webhook Dispatcher and Poller this spec is built around. The `/healthz`
// and `/readyz` routes are the only HTTP surface kept; the business API itself is an
// out-of-scope external collaborator (spec.md §1).
type App struct {
	cfg *config.Config
	log logger.Logger

	db     *gorm.DB
	store  *store.Store
	events *events.Publisher

	smtpClient  *smtpclient.Client
	dkimResolve *dkim.Resolver
	listener    *store.Listener
	emailWorker *worker.EmailWorker
	dispatcher  *webhook.Dispatcher
	poller      *poller.Poller

	router       *gin.Engine
	httpServer   *http.Server
	tracerCloser io.Closer
}

func NewApp(cfg *config.Config, db *gorm.DB) (*App, error) {
	log := logger.NewAppLogger(cfg.Logger)
	log.InitLogger()

	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, log)
	if err != nil {
		return nil, fmt.Errorf("could not initialize jaeger tracer: %w", err)
	}
	opentracing.SetGlobalTracer(tracer)

	repos := repository.InitRepositories(db)
	s := store.NewStore(repos)

	dsn, err := database.DSN(&database.DatabaseConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		DBName:   cfg.Database.DBName,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("could not build listener dsn: %w", err)
	}
	pqListener := store.NewListener(dsn, log)

	smtpClient := smtpclient.NewClient(cfg.SMTP, log)
	dkimTTL := time.Duration(cfg.Worker.DKIMCacheTTLSeconds) * time.Second
	dkimResolver := dkim.NewResolver(repos.DomainRepository, dkimTTL)

	eventsPublisher, err := newEventsPublisher(cfg.AppConfig.RabbitMQURL, log)
	if err != nil {
		log.Warnf("events bus unavailable, continuing without it: %v", err)
	}

	emailWorker := worker.NewEmailWorker(s, smtpClient, dkimResolver, eventsPublisher, cfg.Worker, log)
	dispatcher := webhook.NewDispatcher(s, cfg.Webhook, log)
	p := poller.NewPoller(pqListener, emailWorker, dispatcher, s, cfg.Worker, log)

	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	a := &App{
		cfg:          cfg,
		log:          log,
		db:           db,
		store:        s,
		events:       eventsPublisher,
		smtpClient:   smtpClient,
		dkimResolve:  dkimResolver,
		listener:     pqListener,
		emailWorker:  emailWorker,
		dispatcher:   dispatcher,
		poller:       p,
		router:       router,
		tracerCloser: closer,
		httpServer: &http.Server{
			Addr:    ":" + cfg.AppConfig.APIPort,
			Handler: router,
		},
	}
	a.registerRoutes()

	return a, nil
}

// newEventsPublisher returns nil (not an error) if no RabbitMQ URL is
// configured — the event bus is an additive notification channel, not a
// dependency of the core send path.
func newEventsPublisher(rabbitMQURL string, log logger.Logger) (*events.Publisher, error) {
	if rabbitMQURL == "" {
		return nil, nil
	}
	return events.NewPublisher(rabbitMQURL, log, nil)
}

func (a *App) registerRoutes() {
	a.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	a.router.GET("/readyz", func(c *gin.Context) {
		if err := a.smtpClient.Verify(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
}

func (a *App) recoverWithJaeger(name string) {
	if r := recover(); r != nil {
		span := opentracing.GlobalTracer().StartSpan(fmt.Sprintf("panic.%s", name))
		defer span.Finish()
		ext.Error.Set(span, true)
		span.LogKV("event", "panic", "process", name, "error", fmt.Sprintf("%v", r), "stack", string(debug.Stack()))
		a.log.Errorf("panic in %s: %v\n%s", name, r, debug.Stack())
	}
}

func (a *App) wrapGoroutine(name string, fn func()) {
	defer a.recoverWithJaeger(name)
	fn()
}

// Run starts the poller (which drives the Email Worker and Webhook
// Dispatcher claim loops) and the HTTP health surface, then blocks until
// a termination signal arrives.
func (a *App) Run() error {
	if err := a.poller.Start(); err != nil {
		return fmt.Errorf("could not start poller: %w", err)
	}
	a.log.Info("poller started")

	go a.wrapGoroutine("http_server", func() {
		a.log.Infof("starting http server on %s", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Errorf("http server error: %v", err)
		}
	})

	a.log.Info("mailengine is now running")
	return a.waitForShutdown()
}

// stopWorkers drains the poller, Email Worker, and Webhook Dispatcher
// pools, but abandons any still-in-flight task once gracePeriod elapses
// (spec.md §5 "Cancellation") instead of blocking shutdown indefinitely
// on a stuck SMTP dial or webhook POST.
func (a *App) stopWorkers(gracePeriod time.Duration) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.poller.Stop()
		a.emailWorker.Stop()
		a.dispatcher.Stop()
	}()

	select {
	case <-done:
		a.log.Info("workers drained cleanly")
	case <-time.After(gracePeriod):
		a.log.Warnf("shutdown grace period (%s) elapsed, abandoning in-flight tasks", gracePeriod)
	}
}

func (a *App) waitForShutdown() error {
	defer a.recoverWithJaeger("shutdown")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	a.log.Info("shutting down...")

	gracePeriod := time.Duration(a.cfg.AppConfig.ShutdownGracePeriodS) * time.Second

	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracePeriod)
	defer cancel()

	if a.tracerCloser != nil {
		a.tracerCloser.Close()
	}

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.log.Errorf("http server shutdown error: %v", err)
	} else {
		a.log.Info("http server shut down successfully")
	}

	a.stopWorkers(gracePeriod)

	if a.events != nil {
		if err := a.events.Close(); err != nil {
			a.log.Errorf("events publisher close error: %v", err)
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
