package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"medops-bknd/internal/auth"
	"medops-bknd/internal/cache"
	"medops-bknd/internal/changefeed"
	"medops-bknd/internal/config"
	"medops-bknd/internal/database"
	"medops-bknd/internal/handlers"
	"medops-bknd/internal/logger"
	mdlwr "medops-bknd/internal/middleware"
	"medops-bknd/internal/models"
	"medops-bknd/internal/monitor"
	"medops-bknd/internal/routes"
	"medops-bknd/internal/services"
	"medops-bknd/internal/simulator"
	"medops-bknd/internal/triage"

	"github.com/uptrace/bun"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()
	logr := logger.New(cfg)
	defer logr.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
	logr.Info("server exited gracefully")
}

func run(ctx context.Context, cfg *config.Config, logr *logger.Logger) error {
	db, err := database.New(cfg.DatabaseURL, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.EnsureSchema(ctx, db, cfg.PGNotifyChannel); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTIssuer)
	if err != nil {
		return fmt.Errorf("init jwt manager: %w", err)
	}

	var analyticsCache cache.Cache = cache.Nop{}
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(ctx, cfg.RedisURL, "medops:")
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rc.Close()
		analyticsCache = rc
	}

	g, gctx := errgroup.WithContext(ctx)

	hub := changefeed.NewHub(256, logr.For("changefeed"))
	if err := startChangefeed(gctx, g, cfg, db, hub, logr); err != nil {
		return err
	}

	tracker := simulator.NewTracker(cfg.GPSTick, logr.For("gps"))
	defer tracker.StopAll()

	authSvc := services.NewAuthService(db, jwtMgr, cfg, logr.For("auth"))
	hospitalSvc := services.NewHospitalService(db, logr.For("hospitals"))
	analyticsSvc := services.NewAnalyticsService(db, hospitalSvc, analyticsCache, cfg.AnalyticsCacheTTL, cfg.SurgeEventWindow, logr.For("analytics"))
	queueSvc := services.NewQueueService(db, logr.For("queue"))
	dispatchSvc := services.NewDispatchService(db, hospitalSvc, tracker, services.GPSConfig{StepsPerLeg: cfg.GPSStepsPerLeg, Jitter: 0.0002}, logr.For("dispatch"))
	notificationSvc := services.NewNotificationService(db, logr.For("notifications"))
	transferSvc := services.NewTransferService(db, notificationSvc, logr.For("transfers"))
	staffSvc := services.NewStaffService(db, logr.For("staff"))
	alertSvc := services.NewAlertService(db, logr.For("alerts"))

	mon := monitor.New(monitor.Sources{
		Hospitals: changefeed.TableSource[models.Hospital]{
			Hub: hub, Table: models.TableHospitals, Load: hospitalSvc.LoadAll, Logger: logr.Logger,
		},
		Queue: changefeed.TableSource[models.QueueEvent]{
			Hub: hub, Table: models.TableQueueEvents, Logger: logr.Logger,
			Load: func(ctx context.Context) ([]models.QueueEvent, error) {
				return queueSvc.Recent(ctx, cfg.QueueFeedLimit)
			},
		},
		Arrivals: changefeed.TableSource[models.QueueEvent]{
			Hub: hub, Table: models.TableQueueEvents, Logger: logr.Logger,
			Filter: changefeed.FieldEquals("event_type", models.QueueArrival),
			Load: func(ctx context.Context) ([]models.QueueEvent, error) {
				return queueSvc.ArrivalsWithin(ctx, cfg.SurgeEventWindow)
			},
		},
		Dispatches: changefeed.TableSource[models.DispatchRequest]{
			Hub: hub, Table: models.TableDispatches, Load: dispatchSvc.LoadActive, Logger: logr.Logger,
		},
		Transfers: changefeed.TableSource[models.TransferRequest]{
			Hub: hub, Table: models.TableTransfers, Load: transferSvc.LoadOpen, Logger: logr.Logger,
		},
		Alerts: changefeed.TableSource[models.Alert]{
			Hub: hub, Table: models.TableAlerts, Load: alertSvc.LoadOpen, Logger: logr.Logger,
		},
	}, monitor.Config{
		QueueLimit:    cfg.QueueFeedLimit,
		EventWindow:   cfg.SurgeEventWindow,
		FetchAttempts: cfg.LiveFetchAttempts,
		FetchBackoff:  cfg.LiveFetchBackoff,
	}, alertSvc, logr.For("monitor"))
	if err := mon.Start(gctx); err != nil {
		return fmt.Errorf("start monitor: %w", err)
	}
	defer mon.Close()

	if cfg.SimulationEnabled {
		sched := simulator.NewScheduler(logr.For("scheduler"))
		gen := simulator.NewQueueGenerator(
			rand.New(rand.NewSource(time.Now().UnixNano())),
			mon.Hospitals,
			queueSvc,
			logr.For("queue-sim"),
		)
		if err := sched.Schedule("queue", cfg.QueueSimSchedule, gen.Tick); err != nil {
			return fmt.Errorf("schedule queue simulation: %w", err)
		}
		sched.Start()
		defer sched.Stop()
		logr.Info("queue simulation enabled", zap.String("schedule", cfg.QueueSimSchedule))
	}

	authMW := mdlwr.NewAuthMiddleware(jwtMgr, authSvc, logr.For("auth-mw"))
	router := routes.NewRouter(cfg, authMW, routes.Handlers{
		Auth:      handlers.NewAuthHandler(authSvc, logr.For("auth"), cfg),
		Hospital:  handlers.NewHospitalHandler(hospitalSvc, analyticsSvc, logr.For("hospitals")),
		Analytics: handlers.NewAnalyticsHandler(analyticsSvc, logr.For("analytics")),
		Queue:     handlers.NewQueueHandler(queueSvc, logr.For("queue")),
		Dispatch:  handlers.NewDispatchHandler(dispatchSvc, mon, logr.For("dispatch")),
		Transfer:  handlers.NewTransferHandler(transferSvc, logr.For("transfers")),
		Staff:     handlers.NewStaffHandler(staffSvc, logr.For("staff")),
		Alert:     handlers.NewAlertHandler(alertSvc, notificationSvc, logr.For("alerts")),
		Dashboard: handlers.NewDashboardHandler(mon),
		Triage:    handlers.NewTriageHandler(triage.NewOpenAIClassifier(cfg.OpenAIAPIKey, cfg.OpenAIModel, logr.For("triage")), logr.For("triage")),
		Stream:    handlers.NewStreamHandler(hub, cfg.AllowedOrigins, logr.For("stream")),
	})

	// WriteTimeout stays unset: websocket streams are long-lived.
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g.Go(func() error {
		logr.Info("server started", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logr.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// startChangefeed wires the hub to its upstream. In postgres mode this
// instance listens to the database and, when NATS is configured, forwards to
// replicas. In nats mode it only ingests.
func startChangefeed(ctx context.Context, g *errgroup.Group, cfg *config.Config, db *bun.DB, hub *changefeed.Hub, logr *logger.Logger) error {
	var bridge *changefeed.NATSBridge
	if cfg.NATSURL != "" {
		b, err := changefeed.DialNATS(changefeed.NATSConfig{
			URL:           cfg.NATSURL,
			Name:          "medops-bknd",
			SubjectPrefix: cfg.NATSSubjectPrefix,
			ReconnectWait: 2 * time.Second,
			MaxReconnects: -1,
		}, logr.For("nats"))
		if err != nil {
			return err
		}
		bridge = b
		g.Go(func() error {
			<-ctx.Done()
			return bridge.Close()
		})
	}

	switch cfg.ChangefeedSource {
	case "postgres":
		listener := changefeed.NewPGListener(db, cfg.PGNotifyChannel, hub, logr.For("pg-listener"))
		g.Go(func() error { return listener.Run(ctx) })
		if bridge != nil {
			g.Go(func() error { return bridge.Forward(ctx, hub) })
		}
	case "nats":
		if bridge == nil {
			return errors.New("CHANGEFEED_SOURCE=nats requires NATS_URL")
		}
		g.Go(func() error { return bridge.Ingest(ctx, hub) })
	default:
		return fmt.Errorf("unknown CHANGEFEED_SOURCE %q", cfg.ChangefeedSource)
	}
	return nil
}
