package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/dtn-gateway/internal/auth"
	"github.com/rickgao/dtn-gateway/internal/config"
	"github.com/rickgao/dtn-gateway/internal/database"
	"github.com/rickgao/dtn-gateway/internal/decoder"
	"github.com/rickgao/dtn-gateway/internal/gateway"
	"github.com/rickgao/dtn-gateway/internal/hub"
	"github.com/rickgao/dtn-gateway/internal/journal"
	"github.com/rickgao/dtn-gateway/internal/metrics"
	"github.com/rickgao/dtn-gateway/internal/natsbridge"
	"github.com/rickgao/dtn-gateway/internal/schema"
	"github.com/rickgao/dtn-gateway/internal/version"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "configs/gateway.yaml", "path to config file")
	envFile := flag.String("env", ".env", "optional dotenv file loaded before the config")
	flag.Parse()

	if err := run(*configPath, *envFile); err != nil {
		slog.Error("gateway exited", "error", err)
		os.Exit(1)
	}
}

func run(configPath, envFile string) error {
	// Secrets such as ${DB_PASSWORD} may come from a dotenv file
	envErr := godotenv.Load(envFile)

	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.Logging, os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting gateway",
		"version", version.Version,
		"commit", version.Commit,
		"config", configPath,
		"instance_id", cfg.Instance.ID,
	)
	if envErr != nil {
		logger.Debug("no dotenv file loaded", "path", envFile, "error", envErr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Schemas and symbols are required before any feed starts
	schemas, err := loadSchemas(cfg)
	if err != nil {
		return err
	}

	symbols, err := config.LoadSymbols(cfg.Resolve(cfg.SymbolsFile))
	if err != nil {
		return err
	}
	logger.Info("symbols loaded", "count", len(symbols))

	hints, err := loadHints(cfg)
	if err != nil {
		return err
	}

	m := metrics.New()

	if err := adminLogin(ctx, cfg, logger); err != nil {
		if cfg.Admin.Required {
			return err
		}
		logger.Warn("admin login failed, continuing", "error", err)
	}

	wsHub := hub.New(hub.Config{
		Address:      cfg.Hub.Address,
		Path:         cfg.Hub.Path,
		WriteTimeout: cfg.Hub.WriteTimeout,
		PingInterval: cfg.Hub.PingInterval,
		PongTimeout:  cfg.Hub.PongTimeout,
		MaxPending:   cfg.Hub.MaxPending,
	}, hub.WithLogger(logger), hub.WithMetrics(m))

	deps := gateway.Deps{
		Schemas: schemas,
		Decoder: decoder.New(hints, decoder.DefaultPolicy()),
		Hub:     wsHub,
		Metrics: m,
		Logger:  logger,
	}
	health := healthDeps{sessions: wsHub.Len}

	// Optional NATS mirror
	var publisher *natsbridge.Publisher
	if cfg.NATS.Enabled {
		publisher, err = natsbridge.Connect(natsbridge.Config{
			URL:           cfg.NATS.URL,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			Name:          version.ClientName(),
			ReconnectWait: cfg.NATS.ReconnectWait,
			MaxReconnects: cfg.NATS.MaxReconnects,
		}, logger)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer publisher.Close()

		deps.Mirror = publisher
		health.nats = publisher.Connected
		logger.Info("nats mirror enabled", "url", cfg.NATS.URL, "prefix", cfg.NATS.SubjectPrefix)
	}

	// Optional feed event journal
	var (
		pool   *pgxpool.Pool
		writer *journal.Writer

		// started is set once every component is up; until then a failed
		// step stops what has already started.
		started bool
	)
	if cfg.Journal.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)
		pool, err = database.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()

		writer = journal.NewWriter(journal.Config{
			InstanceID:    cfg.Instance.ID,
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
		}, pool, m, logger)
		if err := writer.EnsureSchema(ctx); err != nil {
			return err
		}
		if err := writer.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if !started {
				stopComponents(logger, nil, nil, writer)
			}
		}()

		deps.Events = writer
		health.db = pool
	}

	gw, err := gateway.New(gateway.Config{
		Profiles:     buildProfiles(cfg),
		Symbols:      symbols,
		RetryDelay:   cfg.Upstream.RetryDelay,
		DialTimeout:  cfg.Upstream.DialTimeout,
		WriteTimeout: cfg.Upstream.WriteTimeout,
	}, deps)
	if err != nil {
		return err
	}
	health.feeds = gw.Stats

	if err := wsHub.Start(ctx); err != nil {
		return err
	}
	if err := gw.Start(ctx); err != nil {
		stopComponents(logger, gw, wsHub, nil)
		return err
	}
	started = true

	healthServer := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.Metrics.Port)),
		Handler:           createHealthHandler(health, m.Handler(), cfg.Metrics.Path, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		logger.Info("starting health server", "port", cfg.Metrics.Port, "metrics_path", cfg.Metrics.Path)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")

		stopComponents(logger, gw, wsHub, writer)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return healthServer.Shutdown(shutdownCtx)
	})

	if err := eg.Wait(); err != nil {
		return err
	}

	logger.Info("gateway stopped")
	return nil
}

// stopComponents stops whichever of gw, wsHub and writer are non-nil, feeds
// first so nothing is broadcast into a closing hub and no event is recorded
// into a stopped journal.
func stopComponents(logger *slog.Logger, gw *gateway.Gateway, wsHub *hub.Hub, writer *journal.Writer) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if gw != nil {
		gw.Stop()
	}
	if wsHub != nil {
		if err := wsHub.Stop(ctx); err != nil {
			logger.Error("hub shutdown error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Stop(ctx); err != nil {
			logger.Error("journal shutdown error", "error", err)
		}
	}
}

// loadSchemas loads every configured header file, in id order.
func loadSchemas(cfg *config.GatewayConfig) (*schema.Registry, error) {
	ids := make([]string, 0, len(cfg.Schemas))
	for id := range cfg.Schemas {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	reg := schema.NewRegistry()
	for _, id := range ids {
		if err := reg.LoadFile(id, cfg.Resolve(cfg.Schemas[id])); err != nil {
			return nil, err
		}
		fields, _ := reg.Fields(id)
		slog.Info("schema loaded", "schema", id, "fields", len(fields))
	}
	return reg, nil
}

// loadHints picks the numeric field table: a hints file, inline lists, or
// the built-in defaults.
func loadHints(cfg *config.GatewayConfig) (*schema.Hints, error) {
	th := cfg.TypeHints
	switch {
	case th.File != "":
		f, err := os.Open(cfg.Resolve(th.File))
		if err != nil {
			return nil, fmt.Errorf("open type hints: %w", err)
		}
		defer f.Close()
		return schema.LoadHints(f)
	case len(th.Integer) > 0 || len(th.Float) > 0:
		return schema.NewHints(th.Integer, th.Float), nil
	default:
		return schema.DefaultHints(), nil
	}
}

// adminLogin performs the optional LOGIN exchange on the admin port.
func adminLogin(ctx context.Context, cfg *config.GatewayConfig, logger *slog.Logger) error {
	if !cfg.Admin.Login {
		return nil
	}

	creds := auth.Credentials{User: cfg.Admin.User, Password: cfg.Admin.Password}
	if cfg.Admin.CredentialsFile != "" {
		loaded, err := auth.LoadCredentials(cfg.Resolve(cfg.Admin.CredentialsFile))
		if err != nil {
			return err
		}
		creds = *loaded
	}

	addr := net.JoinHostPort(cfg.Upstream.Host, strconv.Itoa(cfg.Upstream.AdminPort))
	if override := cfg.Feeds["ADMIN"].Address; override != "" {
		addr = override
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Admin.Timeout)
	defer cancel()

	if err := auth.Login(ctx, addr, creds); err != nil {
		return fmt.Errorf("admin login: %w", err)
	}
	logger.Info("admin login succeeded", "addr", addr, "user", creds.User)
	return nil
}
