package storage

import "time"

// Виды событий журнала.
const (
	KindWake             = "wake"
	KindSleep            = "sleep"
	KindInteraction      = "interaction"
	KindHistoryQuery     = "history_query"
	KindInterrupt        = "interrupt"
	KindModelError       = "model_error"
	KindSynthesisError   = "synthesis_error"
	KindRecognitionError = "recognition_error"
	KindShutdown         = "shutdown"
)

// Event — запись журнала работы робота.
// В отличие от окна истории, журнал хранит все события без ограничения.
// Events are expected to be appended in chronological order.
type Event struct {
	Timestamp     time.Time `json:"timestamp"`
	SessionID     string    `json:"session_id,omitempty"`
	Kind          string    `json:"kind"`
	State         string    `json:"state,omitempty"`
	Source        string    `json:"source,omitempty"`
	UserText      string    `json:"user_text,omitempty"`
	AssistantText string    `json:"assistant_text,omitempty"`
	Sequence      uint64    `json:"sequence_number,omitempty"`
	Provider      string    `json:"provider,omitempty"`
	Detail        string    `json:"detail,omitempty"`
}

// Recorder abstracts persistence of journal events.
// LoadEvents should return events in chronological order.
// Implementations must be safe for concurrent use.
type Recorder interface {
	AppendEvent(event Event) error
	LoadEvents() ([]Event, error)
	Close() error
}
