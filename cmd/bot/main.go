package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"mindlog-bot/internal/catalog"
	"mindlog-bot/internal/domain"
	"mindlog-bot/internal/integrations/paramstore"
	"mindlog-bot/internal/integrations/telegram"
	"mindlog-bot/internal/report"
	"mindlog-bot/internal/repository"
	"mindlog-bot/internal/usecase"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Configuration (read only here) ----
	recordsTable := mustEnv("RECORDS_TABLE")
	paramPrefix := mustEnv("PARAM_PREFIX")
	pollTimeout := envInt("POLL_TIMEOUT_SECONDS", 30)
	sessionMaxIdle := time.Duration(envInt("SESSION_MAX_IDLE_MINUTES", 0)) * time.Minute
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
	records, err := repository.New(awsdynamodb.NewFromConfig(cfg), recordsTable)
	if err != nil {
		slog.Error("failed to create record store", "err", err)
		os.Exit(1)
	}
	tg, err := telegram.NewClient(ssmClient, paramPrefix)
	if err != nil {
		slog.Error("failed to create telegram client", "err", err)
		os.Exit(1)
	}

	// ---- Engine ----
	cat := catalog.Default()
	formatter, err := report.NewFormatter(cat)
	if err != nil {
		slog.Error("failed to create report formatter", "err", err)
		os.Exit(1)
	}
	sessions := usecase.NewMemorySessionStore(sessionMaxIdle)
	svc, err := usecase.NewConversationService(cat, sessions, records, formatter, confirmCommit)
	if err != nil {
		slog.Error("failed to create conversation service", "err", err)
		os.Exit(1)
	}

	slog.Info("bot started", "poll_timeout_s", pollTimeout, "confirm_commit", confirmCommit)
	poll(ctx, tg, svc, pollTimeout)
	slog.Info("bot stopped")
}

// poll runs the long-poll loop until the context is canceled. Transport
// failures are logged and retried; they never stop the loop.
func poll(ctx context.Context, tg *telegram.Client, svc *usecase.ConversationService, timeoutSec int) {
	var offset int64
	for ctx.Err() == nil {
		updates, err := tg.GetUpdates(ctx, offset, timeoutSec)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("getUpdates failed", "err", err)
			sleep(ctx, 3*time.Second)
			continue
		}
		for _, u := range updates {
			offset = u.UpdateID + 1
			dispatch(ctx, tg, svc, u)
		}
	}
}

func dispatch(ctx context.Context, tg *telegram.Client, svc *usecase.ConversationService, u telegram.Update) {
	msg := u.Message
	if msg == nil || msg.From == nil || msg.Text == "" {
		return
	}

	replies, err := svc.Handle(ctx, usecase.Input{
		UserID:   msg.From.ID,
		UserName: msg.From.DisplayName(),
		Text:     msg.Text,
	})
	if err != nil {
		slog.Error("engine error", "user_id", msg.From.ID, "err", err)
	}

	for _, reply := range replies {
		if err := send(ctx, tg, msg.Chat.ID, reply); err != nil {
			slog.Error("reply delivery failed", "chat_id", msg.Chat.ID, "err", err)
		}
	}
}

func send(ctx context.Context, tg *telegram.Client, chatID int64, reply domain.Reply) error {
	if reply.Document != nil {
		return tg.SendDocument(ctx, chatID, reply.Document.Name, reply.Document.Data)
	}
	return tg.SendMessage(ctx, chatID, reply.Text, reply.Keyboard)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
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
