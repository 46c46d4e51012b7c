package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"payment-sentinel/internal/alerting"
	"payment-sentinel/internal/config"
	"payment-sentinel/internal/oracle"
	"payment-sentinel/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// newProposer wires the LLM-backed oracle behind its retry/circuit-breaker
// gateway. Returns nil when no API key is configured; the engine then runs
// on the deterministic fallback alone.
func (a *App) newProposer() oracle.Proposer {
	if a.Config.Oracle.APIKey == "" {
		return nil
	}

	client := oracle.NewClient(oracle.ClientOptions{
		APIKey:      a.Config.Oracle.APIKey,
		BaseURL:     a.Config.Oracle.BaseURL,
		Model:       a.Config.Oracle.Model,
		Temperature: a.Config.Oracle.Temperature,
		MaxTokens:   a.Config.Oracle.MaxTokens,
		Timeout:     a.Config.Oracle.RequestTimeout,
		MarginRate:  a.Config.Engine.MarginRate,
		RerouteCost: a.Config.Engine.RerouteCost,
	}, a.Logger)

	return oracle.NewGateway(client, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled {
		return nil
	}
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// withSignalContext installs SIGINT/SIGTERM cancellation around a command.
func withSignalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}

// errNoDatabase is returned by commands that require persisted decisions.
var errNoDatabase = errors.New("database not configured; set database.dsn")

// RunOptions configure a batch evaluation run.
type RunOptions struct {
	InputPath string
	// SkipBaseline suppresses the naive reroute-everything comparison in the
	// run summary.
	SkipBaseline bool
}

// ExportOptions hold parameters for exporting persisted decisions.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// SimulateOptions describe one synthetic cluster pushed through the
// arbitration pipeline.
type SimulateOptions struct {
	Counterparty   string
	InstrumentType string
	AvgAmount      float64
	Count          int
	FailureRate    float64
	Signal         string
}
