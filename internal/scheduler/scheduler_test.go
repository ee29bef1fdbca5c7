package scheduler

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"chat-relay/internal/history"
	"chat-relay/internal/storage"
)

func TestAdd_RejectsBadSpec(t *testing.T) {
	s := New()
	defer s.Stop()

	err := s.Add(Job{Name: "bad", Spec: "not a cron", Run: func(context.Context) error { return nil }})
	if err == nil {
		t.Fatalf("expected error for invalid spec")
	}
}

func TestAdd_EmptySpecDisablesJob(t *testing.T) {
	s := New()
	defer s.Stop()

	if err := s.Add(Job{Name: "off", Run: func(context.Context) error { return nil }}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if s.IsRunning() {
		t.Fatalf("disabled job should not be registered")
	}
}

func TestScheduler_RunsJobs(t *testing.T) {
	s := New()

	var calls atomic.Int32
	done := make(chan struct{}, 1)
	err := s.Add(Job{Name: "tick", Spec: "@every 1s", Run: func(ctx context.Context) error {
		calls.Add(1)
		select {
		case done <- struct{}{}:
		default:
		}
		return errors.New("logged, not fatal")
	}})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !s.IsRunning() {
		t.Fatalf("expected registered job")
	}

	s.Start()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("job did not run")
	}
	s.Stop()

	if calls.Load() == 0 {
		t.Fatalf("job never ran")
	}
}

func TestExpiryJob(t *testing.T) {
	now := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	store := history.NewStore(10, time.Hour, history.WithClock(func() time.Time { return now }))
	store.AppendUser("old", "x")
	now = now.Add(2 * time.Hour)
	store.AppendUser("new", "y")

	if err := ExpiryJob("@every 1h", store).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if store.Len() != 1 || len(store.Get("new")) != 1 {
		t.Fatalf("expiry job did not sweep: len=%d", store.Len())
	}
}

func TestReportJob(t *testing.T) {
	rec, err := storage.NewFileRecorder(filepath.Join(t.TempDir(), "log.jsonl"))
	if err != nil {
		t.Fatalf("recorder: %v", err)
	}
	day := time.Date(2024, 1, 15, 21, 0, 0, 0, time.UTC)
	if err := rec.AppendInteraction(storage.Event{Timestamp: day.Add(-time.Hour), SessionID: "s", UserMessage: "hi"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	var out bytes.Buffer
	log.SetOutput(&out)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	job := ReportJob("0 21 * * *", rec, func() time.Time { return day })
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	logged := out.String()
	if !strings.Contains(logged, "Daily stats detail") || !strings.Contains(logged, `"total_messages": 1`) {
		t.Fatalf("detailed stats not logged: %s", logged)
	}
}
