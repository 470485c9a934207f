package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"mindlog-bot/handler"
	"mindlog-bot/internal/catalog"
	"mindlog-bot/internal/integrations/paramstore"
	"mindlog-bot/internal/integrations/telegram"
	"mindlog-bot/internal/report"
	"mindlog-bot/internal/repository"
	"mindlog-bot/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	recordsTable := mustEnv("RECORDS_TABLE")
	paramPrefix := mustEnv("PARAM_PREFIX")
	webhookSecret := os.Getenv("WEBHOOK_SECRET")
	confirmCommit := envBool("CONFIRM_COMMIT", false)

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
	dynamoClient := awsdynamodb.NewFromConfig(cfg)
	records, err := repository.New(dynamoClient, recordsTable)
	if err != nil {
		slog.Error("failed to create record store", "err", err)
		os.Exit(1)
	}
	// Webhook invocations share no process memory, so sessions live in
	// the same table as the records.
	sessions, err := repository.NewSessionClient(dynamoClient, recordsTable)
	if err != nil {
		slog.Error("failed to create session store", "err", err)
		os.Exit(1)
	}
	tg, err := telegram.NewClient(ssmClient, paramPrefix)
	if err != nil {
		slog.Error("failed to create telegram client", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	cat := catalog.Default()
	formatter, err := report.NewFormatter(cat)
	if err != nil {
		slog.Error("failed to create report formatter", "err", err)
		os.Exit(1)
	}
	svc, err := usecase.NewConversationService(cat, sessions, records, formatter, confirmCommit)
	if err != nil {
		slog.Error("failed to create conversation service", "err", err)
		os.Exit(1)
	}
	h, err := handler.NewHandler(svc, tg, webhookSecret)
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

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
