package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"chat-relay/internal/analytics"
	"chat-relay/internal/storage"
)

// Expirer is satisfied by history.Store.
type Expirer interface {
	Expire() int
	Len() int
}

// ExpiryJob sweeps sessions idle for longer than the store's TTL.
func ExpiryJob(spec string, store Expirer) Job {
	return Job{
		Name: "session-expiry",
		Spec: spec,
		Run: func(ctx context.Context) error {
			if removed := store.Expire(); removed > 0 {
				log.Printf("🧹 Expired %d sessions, %d left", removed, store.Len())
			}
			return nil
		},
	}
}

// ReportJob logs usage statistics for the current UTC day, as a summary
// followed by the full stats as JSON.
func ReportJob(spec string, rec storage.Recorder, now func() time.Time) Job {
	return Job{
		Name: "daily-report",
		Spec: spec,
		Run: func(ctx context.Context) error {
			events, err := rec.LoadInteractions()
			if err != nil {
				return fmt.Errorf("load interactions: %w", err)
			}
			stats := analytics.AnalyzeDailyLogs(events, now().UTC())
			log.Printf("📊 %s", stats.GenerateReportSummary())
			detail, err := stats.ToJSON()
			if err != nil {
				return fmt.Errorf("encode daily stats: %w", err)
			}
			log.Printf("📊 Daily stats detail: %s", detail)
			return nil
		},
	}
}
