package analytics

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"chat-relay/internal/storage"
)

// DailyStats содержит статистику за день
type DailyStats struct {
	Date             string                  `json:"date"`
	TotalMessages    int                     `json:"total_messages"`
	StreamedMessages int                     `json:"streamed_messages"`
	UniqueSessions   int                     `json:"unique_sessions"`
	TotalTokens      int                     `json:"total_tokens"`
	MessagesByModel  map[string]int          `json:"messages_by_model"`
	SessionStats     map[string]SessionStats `json:"session_stats"`
}

// SessionStats содержит статистику по одной сессии
type SessionStats struct {
	SessionID   string `json:"session_id"`
	Messages    int    `json:"messages"`
	TotalTokens int    `json:"total_tokens"`
}

// AnalyzeDailyLogs анализирует события за указанную дату
func AnalyzeDailyLogs(events []storage.Event, targetDate time.Time) *DailyStats {
	// Нормализуем дату до начала дня
	startOfDay := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, targetDate.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	stats := &DailyStats{
		Date:            startOfDay.Format("2006-01-02"),
		MessagesByModel: make(map[string]int),
		SessionStats:    make(map[string]SessionStats),
	}

	for _, event := range events {
		if event.Timestamp.Before(startOfDay) || !event.Timestamp.Before(endOfDay) {
			continue
		}
		if event.UserMessage == "" {
			continue
		}

		stats.TotalMessages++
		stats.TotalTokens += event.TotalTokens
		if event.Streamed {
			stats.StreamedMessages++
		}
		if event.Model != "" {
			stats.MessagesByModel[event.Model]++
		}

		sessionStat := stats.SessionStats[event.SessionID]
		sessionStat.SessionID = event.SessionID
		sessionStat.Messages++
		sessionStat.TotalTokens += event.TotalTokens
		stats.SessionStats[event.SessionID] = sessionStat
	}

	stats.UniqueSessions = len(stats.SessionStats)
	return stats
}

// GenerateReportSummary создает текстовое резюме для лога
func (ds *DailyStats) GenerateReportSummary() string {
	summary := fmt.Sprintf(`Usage for %s:
- messages: %d (streamed: %d)
- sessions: %d
- tokens: %d
`, ds.Date, ds.TotalMessages, ds.StreamedMessages, ds.UniqueSessions, ds.TotalTokens)

	if len(ds.MessagesByModel) > 0 {
		models := make([]string, 0, len(ds.MessagesByModel))
		for m := range ds.MessagesByModel {
			models = append(models, m)
		}
		sort.Strings(models)
		summary += "Models:\n"
		for _, m := range models {
			summary += fmt.Sprintf("- %s: %d\n", m, ds.MessagesByModel[m])
		}
	}
	return summary
}

// ToJSON сериализует статистику в JSON для детального анализа
func (ds *DailyStats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
