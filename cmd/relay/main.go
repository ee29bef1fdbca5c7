package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"chat-relay/internal/config"
	"chat-relay/internal/history"
	"chat-relay/internal/llm"
	"chat-relay/internal/relay"
	"chat-relay/internal/scheduler"
	"chat-relay/internal/server"
	"chat-relay/internal/storage"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()
	if cfg.APIKey == "" {
		log.Printf("⚠️ DEEPSEEK_API_KEY is not set, every chat request will fail with 500")
	}

	client, err := llm.NewFactory(cfg).CreateClient(string(cfg.LLMProvider), cfg.Model)
	if err != nil {
		log.Fatalf("failed to create llm client: %v", err)
	}

	var rec storage.Recorder
	if cfg.LogFilePath != "" {
		fr, err := storage.NewFileRecorder(cfg.LogFilePath)
		if err != nil {
			log.Printf("failed to init file recorder: %v", err)
		} else {
			rec = fr
		}
	}

	store := history.NewStore(cfg.HistoryLimit, cfg.SessionTTL)
	rl := relay.New(client, readSystemPrompt(cfg.SystemPromptPath), relay.Options{
		Temperature:       cfg.Temperature,
		StreamTemperature: cfg.StreamTemperature,
	})
	chat := server.NewChatHandler(store, rl, rec, cfg.APIKey, llm.ModelName(client, cfg.Model))
	srv := server.New(cfg.ListenAddr, cfg.ChatPath, chat, store)

	sched := scheduler.New()
	if err := sched.Add(scheduler.ExpiryJob(cfg.CleanupSchedule, store)); err != nil {
		log.Fatalf("failed to schedule session expiry: %v", err)
	}
	if rec != nil {
		if err := sched.Add(scheduler.ReportJob(cfg.ReportSchedule, rec, time.Now)); err != nil {
			log.Fatalf("failed to schedule daily report: %v", err)
		}
	}
	sched.Start()
	defer sched.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("server stopped with error: %v", err)
	}
}

func readSystemPrompt(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("system prompt file not found or unreadable at %s: %v", path, err)
		return ""
	}
	return strings.TrimSpace(string(data))
}
