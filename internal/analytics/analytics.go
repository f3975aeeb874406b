package analytics

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"rainbow-robot/internal/storage"
)

// DailyStats содержит статистику робота за день
type DailyStats struct {
	Date            string         `json:"date"`
	Sessions        int            `json:"sessions"`
	Interactions    int            `json:"interactions"`
	HistoryQueries  int            `json:"history_queries"`
	Interrupts      int            `json:"interrupts"`
	Errors          int            `json:"errors"`
	ErrorsByKind    map[string]int `json:"errors_by_kind"`
	QueriesByType   map[string]int `json:"queries_by_type"`
	InteractionsBy  map[string]int `json:"interactions_by_source"`
	ProviderReplies map[string]int `json:"provider_replies"`
}

// AnalyzeDay считает события журнала за указанную дату
func AnalyzeDay(events []storage.Event, targetDate time.Time) *DailyStats {
	startOfDay := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, targetDate.Location())
	endOfDay := startOfDay.AddDate(0, 0, 1)

	stats := &DailyStats{
		Date:            startOfDay.Format("2006-01-02"),
		ErrorsByKind:    make(map[string]int),
		QueriesByType:   make(map[string]int),
		InteractionsBy:  make(map[string]int),
		ProviderReplies: make(map[string]int),
	}

	sessions := make(map[string]bool)
	for _, event := range events {
		if event.Timestamp.Before(startOfDay) || !event.Timestamp.Before(endOfDay) {
			continue
		}
		if event.SessionID != "" {
			sessions[event.SessionID] = true
		}

		switch event.Kind {
		case storage.KindInteraction:
			stats.Interactions++
			stats.InteractionsBy[sourceOrDefault(event.Source)]++
			if event.Provider != "" {
				stats.ProviderReplies[event.Provider]++
			}
		case storage.KindHistoryQuery:
			stats.HistoryQueries++
			stats.QueriesByType[event.Detail]++
		case storage.KindInterrupt:
			stats.Interrupts++
		case storage.KindModelError, storage.KindSynthesisError, storage.KindRecognitionError:
			stats.Errors++
			stats.ErrorsByKind[event.Kind]++
		}
	}

	stats.Sessions = len(sessions)
	return stats
}

func sourceOrDefault(s string) string {
	if s == "" {
		return "microphone"
	}
	return s
}

// GenerateReportSummary создает текстовое резюме дня
func (ds *DailyStats) GenerateReportSummary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rainbow robot digest for %s\n\n", ds.Date)
	fmt.Fprintf(&b, "Sessions: %d\n", ds.Sessions)
	fmt.Fprintf(&b, "Interactions: %d\n", ds.Interactions)
	fmt.Fprintf(&b, "History questions: %d\n", ds.HistoryQueries)
	fmt.Fprintf(&b, "Interruptions: %d\n", ds.Interrupts)
	fmt.Fprintf(&b, "Errors: %d\n", ds.Errors)

	writeCounts(&b, "Errors by kind", ds.ErrorsByKind)
	writeCounts(&b, "History questions by type", ds.QueriesByType)
	writeCounts(&b, "Replies by provider", ds.ProviderReplies)
	return b.String()
}

// writeCounts печатает счетчики в стабильном порядке
func writeCounts(b *strings.Builder, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(b, "- %s: %d\n", k, counts[k])
	}
}

// ToJSON сериализует статистику в JSON для детального анализа
func (ds *DailyStats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
