package conversation

// State — текущий режим контроллера.
type State int32

const (
	StateIdle State = iota
	StateListening
	StateThinking
	StateSpeaking
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateThinking:
		return "thinking"
	case StateSpeaking:
		return "speaking"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}
