package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"dinsos-bot/handler"
	"dinsos-bot/internal/app"
	"dinsos-bot/internal/clock"
	"dinsos-bot/internal/config"
	"dinsos-bot/internal/integrations/openai"
	"dinsos-bot/internal/metrics"
	"dinsos-bot/internal/redisstore"
	"dinsos-bot/internal/sqlitestore"
	"dinsos-bot/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// ---- Configuration (read only here) ----
	port := envInt("PORT", 3000)
	dbPath := envString("DB_PATH", "bot.db")
	botConfigPath := os.Getenv("BOT_CONFIG")
	redisURL := os.Getenv("REDIS_URL")
	llmBaseURL := os.Getenv("LLM_BASE_URL")
	llmAPIKey := os.Getenv("LLM_API_KEY")
	webhookToken := os.Getenv("WEBHOOK_TOKEN")
	sessionTTL := envDuration("SESSION_TTL", sqlitestore.DefaultSessionTTL)
	purgeEvery := envDuration("SESSION_PURGE_INTERVAL", time.Hour)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bot, err := config.LoadFile(botConfigPath)
	if err != nil {
		slog.Error("failed to load bot config", "path", botConfigPath, "err", err)
		os.Exit(1)
	}

	clk := clock.System{}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// ---- Storage ----
	db, err := sqlitestore.Open(dbPath, clk)
	if err != nil {
		slog.Error("failed to open database", "path", dbPath, "err", err)
		os.Exit(1)
	}
	defer db.Close()
	sessions := db.Sessions(sessionTTL)

	var limits store.RateLimits
	if redisURL != "" {
		rdb, err := redisstore.Connect(ctx, redisURL)
		if err != nil {
			slog.Error("failed to connect to redis", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		limits, err = redisstore.NewRateLimits(rdb, clk)
		if err != nil {
			slog.Error("failed to create rate limit store", "err", err)
			os.Exit(1)
		}
		slog.Info("rate limits kept in redis")
	}

	// ---- LLM ----
	var llm *openai.Client
	if llmAPIKey != "" {
		var opts []openai.Option
		if llmBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(llmBaseURL))
		}
		llm, err = openai.NewClient(openai.StaticKey(llmAPIKey), opts...)
		if err != nil {
			slog.Error("failed to create LLM client", "err", err)
			os.Exit(1)
		}
	} else {
		slog.Warn("LLM_API_KEY not set, free-form questions get the fallback reply")
	}

	// ---- Handler ----
	components := app.Components{
		Config:     bot,
		Store:      db,
		RateLimits: limits,
		Sessions:   sessions,
		Clock:      clk,
		Logger:     logger,
		Metrics:    m,
	}
	if llm != nil {
		components.LLM = llm
	}
	svc, err := app.NewMessageService(components)
	if err != nil {
		slog.Error("failed to create message service", "err", err)
		os.Exit(1)
	}
	h, err := handler.NewHandler(svc, handler.Options{WebhookToken: webhookToken, Logger: logger})
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	go purgeSessions(ctx, sessions, purgeEvery)

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           handler.NewRouter(h, reg, clk),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("server listening", "addr", srv.Addr, "bot", bot.BotName)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "err", err)
	}
	slog.Info("server stopped")
}

func purgeSessions(ctx context.Context, sessions *sqlitestore.SessionStore, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.PurgeExpired(ctx)
			if err != nil {
				slog.Warn("session purge failed", "err", err)
				continue
			}
			if n > 0 {
				slog.Info("expired sessions purged", "count", n)
			}
		}
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
