package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/yoyowasa/BOT-WEBULL/api"
	"github.com/yoyowasa/BOT-WEBULL/internal/aggregate"
	"github.com/yoyowasa/BOT-WEBULL/internal/config"
	"github.com/yoyowasa/BOT-WEBULL/internal/indicator"
	"github.com/yoyowasa/BOT-WEBULL/internal/infrastructure"
	"github.com/yoyowasa/BOT-WEBULL/internal/pipeline"
	"github.com/yoyowasa/BOT-WEBULL/internal/processor"
	"github.com/yoyowasa/BOT-WEBULL/internal/push"
	"github.com/yoyowasa/BOT-WEBULL/internal/risk"
	signaldet "github.com/yoyowasa/BOT-WEBULL/internal/signal"
	"github.com/yoyowasa/BOT-WEBULL/internal/store"
)

// App defines the application structure and its dependencies
type App struct {
	Config      *config.Config
	Logger      *zap.Logger
	NC          *nats.Conn
	JS          nats.JetStreamContext
	Store       *store.Store
	Runner      *pipeline.Runner
	Recorder    *processor.BarRecorder
	PushGateway *push.PushGateway
	HTTPServer  *http.Server

	loc   *time.Location
	setup signaldet.Setup
}

// NewApp creates a new application instance
func NewApp() (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := infrastructure.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}

	return &App{
		Config: &cfg,
		Logger: logger,
	}, nil
}

// Init initializes all application components
func (a *App) Init(ctx context.Context) error {
	loc, err := a.Config.Location()
	if err != nil {
		return err
	}
	a.loc = loc

	setup, err := signaldet.ParseSetup(a.Config.ActiveSetup)
	if err != nil {
		return err
	}
	a.setup = setup

	nc, js, err := infrastructure.InitNATS(a.Config.NatsURL, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	a.NC = nc
	a.JS = js

	a.Store = store.New(
		a.Config.DataDir,
		loc,
		decimal.NewFromFloat(a.Config.DuplicateTolPct),
		a.Logger,
	)

	engine, err := a.buildEngine()
	if err != nil {
		return err
	}
	detector, interval, err := a.buildDetector()
	if err != nil {
		return err
	}

	a.Runner = pipeline.NewRunner(
		aggregate.New(loc, a.Logger),
		engine,
		detector,
		a.Store,
		a.JS,
		setup,
		loc,
		interval,
		a.Logger,
	)
	a.Recorder = processor.NewBarRecorder(a.JS, a.Store, loc, a.Logger)
	a.PushGateway = push.NewPushGateway(js, a.Logger)

	return nil
}

func (a *App) buildEngine() (*indicator.Engine, error) {
	anchor, err := a.Config.Anchor()
	if err != nil {
		return nil, err
	}
	orbStart, err := a.Config.ORBWindowStart()
	if err != nil {
		return nil, err
	}
	return indicator.NewEngine(anchor, orbStart, a.Config.ORBWindow(), a.loc), nil
}

func (a *App) buildDetector() (*signaldet.Detector, time.Duration, error) {
	start, err := a.Config.DetectStart()
	if err != nil {
		return nil, 0, err
	}
	end, err := a.Config.DetectEnd()
	if err != nil {
		return nil, 0, err
	}
	tps, err := a.Config.TakeProfits()
	if err != nil {
		return nil, 0, err
	}

	params := signaldet.Params{
		Loc:             a.loc,
		WindowStart:     start,
		WindowEnd:       end,
		ProximityPct:    decimal.NewFromFloat(a.Config.ProximityPct),
		BreakoutStopPct: decimal.NewFromFloat(a.Config.BreakoutStopPct),
		BreakoutLimPct:  decimal.NewFromFloat(a.Config.BreakoutLimPct),
		TakeProfitPct:   decimal.NewFromFloat(tps[0]),
		StopLossPct:     decimal.NewFromFloat(a.Config.StopLossPct),
		MoveToBreakeven: a.Config.MoveToBreakeven,
		Sizing: risk.SizeParams{
			AccountSize: decimal.NewFromFloat(a.Config.AccountSizeUSD),
			RiskPct:     decimal.NewFromFloat(a.Config.RiskPerTradePct),
			RoundLot:    a.Config.RoundLot,
			MaxQty:      a.Config.MaxQty,
		},
	}
	return signaldet.NewDetector(params, a.Logger), a.Config.ComputeInterval(), nil
}

// Run starts the application services and the HTTP server
func (a *App) Run(ctx context.Context) error {
	// Start Recorder (bars -> NDJSON session file)
	if err := a.Recorder.Run(ctx); err != nil {
		return fmt.Errorf("failed to start bar recorder: %w", err)
	}

	// Start compute/detect loop
	go a.Runner.Run(ctx)

	// Start Ingestion Worker
	a.startIngestionWorker(ctx)

	// Setup HTTP Server
	a.HTTPServer = &http.Server{
		Addr:    ":" + a.Config.Port,
		Handler: a.setupRouter(),
	}

	go func() {
		a.Logger.Info("starting http server", zap.String("port", a.Config.Port))
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	return a.waitForShutdown()
}

// waitForShutdown handles graceful shutdown signals
func (a *App) waitForShutdown() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	a.Logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.HTTPServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	a.NC.Close()
	a.Store.Close()

	return nil
}

// setupRouter configures the Gin router and its routes
func (a *App) setupRouter() *gin.Engine {
	r := gin.Default()

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	apiHandler := api.NewHandler(a.Store, a.Runner, a.loc, a.Logger)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/signals", apiHandler.GetSignals)
		v1.GET("/snapshot", apiHandler.GetSnapshot)
	}

	r.GET("/ws", func(c *gin.Context) {
		a.PushGateway.ServeHTTP(c.Writer, c.Request)
	})

	return r
}
