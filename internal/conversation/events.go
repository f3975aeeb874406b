package conversation

import "time"

// EventType — что сообщает производитель событий.
type EventType int

const (
	// EventTranscript — распознанная фраза.
	EventTranscript EventType = iota
	// EventRecognitionFailed — распознавание не удалось; Err содержит *speech.RecognitionError.
	EventRecognitionFailed
)

// Event приходит в контроллер через ограниченный канал.
type Event struct {
	Type   EventType
	Text   string
	Err    error
	Source string
	At     time.Time
}

func Transcript(source, text string) Event {
	return Event{Type: EventTranscript, Text: text, Source: source, At: time.Now()}
}

func RecognitionFailed(source string, err error) Event {
	return Event{Type: EventRecognitionFailed, Err: err, Source: source, At: time.Now()}
}
