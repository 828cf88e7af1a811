package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"dinsos-bot/handler"
	"dinsos-bot/internal/app"
	"dinsos-bot/internal/clock"
	botconfig "dinsos-bot/internal/config"
	"dinsos-bot/internal/integrations/openai"
	"dinsos-bot/internal/integrations/paramstore"
	"dinsos-bot/internal/repository"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// ---- Configuration (read only here) ----
	stateTable := mustEnv("STATE_TABLE")
	paramPrefix := mustEnv("PARAM_PREFIX")
	sessionTTL := envDuration("SESSION_TTL", repository.DefaultSessionTTL)
	llmBaseURL := os.Getenv("LLM_BASE_URL")

	botConfigParam := paramPrefix + "/bot_config"
	tokenParam := paramPrefix + "/open-ai-token"
	webhookTokenParam := paramPrefix + "/webhook_token"

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	params, err := ssmClient.GetParameters(ctx, []string{botConfigParam, webhookTokenParam}, webhookTokenParam)
	if err != nil {
		slog.Error("failed to load parameters", "err", err)
		os.Exit(1)
	}
	bot, err := botconfig.Parse([]byte(params[botConfigParam]))
	if err != nil {
		slog.Error("invalid bot config", "param", botConfigParam, "err", err)
		os.Exit(1)
	}

	stateClient, err := repository.New(awsdynamodb.NewFromConfig(cfg), stateTable, clock.System{})
	if err != nil {
		slog.Error("failed to create state client", "err", err)
		os.Exit(1)
	}
	sessions, err := repository.NewSessionStore(stateClient, sessionTTL)
	if err != nil {
		slog.Error("failed to create session store", "err", err)
		os.Exit(1)
	}

	keys, err := openai.NewParamStoreKey(ssmClient, tokenParam)
	if err != nil {
		slog.Error("failed to create token source", "err", err)
		os.Exit(1)
	}
	var llmOpts []openai.Option
	if llmBaseURL != "" {
		llmOpts = append(llmOpts, openai.WithBaseURL(llmBaseURL))
	}
	openaiClient, err := openai.NewClient(keys, llmOpts...)
	if err != nil {
		slog.Error("failed to create OpenAI client", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	// Lambda has no scrape endpoint, so metrics are left unset.
	svc, err := app.NewMessageService(app.Components{
		Config:   bot,
		Store:    stateClient,
		Sessions: sessions,
		LLM:      openaiClient,
		Clock:    clock.System{},
		Logger:   logger,
	})
	if err != nil {
		slog.Error("failed to create message service", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(svc, handler.Options{
		WebhookToken: params[webhookTokenParam],
		Logger:       logger,
	})
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
