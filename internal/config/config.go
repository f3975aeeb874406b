package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

type Backend string

const (
	BackendCloud Backend = "cloud"
	BackendLocal Backend = "local"
)

// Файлы истории по умолчанию для каждого бэкенда.
const (
	CloudHistoryFile = "conversation_history.json"
	LocalHistoryFile = "conversation_history_local.json"
)

type Config struct {
	Backend Backend `env:"ROBOT_BACKEND" envDefault:"cloud"`

	// Spoken vocabulary
	WakePhrases      []string `env:"WAKE_PHRASES" envSeparator:"," envDefault:"hey robot,hey robo,wake up"`
	StopPhrases      []string `env:"STOP_PHRASES" envSeparator:"," envDefault:"rainbow,stop"`
	LocalStopPhrases []string `env:"LOCAL_STOP_PHRASES" envSeparator:"," envDefault:"shut up,wait"`
	QuitPhrases      []string `env:"QUIT_PHRASES" envSeparator:"," envDefault:"goodbye"`

	// History
	HistoryCapacity int    `env:"HISTORY_CAPACITY" envDefault:"10"`
	HistoryFilePath string `env:"HISTORY_FILE_PATH"`
	HistoryContext  int    `env:"HISTORY_CONTEXT" envDefault:"10"`
	RecentCount     int    `env:"RECENT_COUNT" envDefault:"3"`

	// Dialogue
	ListenTimeout   time.Duration `env:"LISTEN_TIMEOUT" envDefault:"20s"`
	MaxSilence      int           `env:"MAX_SILENCE" envDefault:"3"`
	ModelTimeout    time.Duration `env:"MODEL_TIMEOUT" envDefault:"30s"`
	CancelTimeout   time.Duration `env:"CANCEL_TIMEOUT" envDefault:"500ms"`
	FarewellTimeout time.Duration `env:"FAREWELL_TIMEOUT" envDefault:"5s"`
	GreetingEnabled bool          `env:"GREETING_ENABLED" envDefault:"true"`

	// LLM settings
	LLMProvider      string  `env:"LLM_PROVIDER"`
	OpenAIAPIKey     string  `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string  `env:"OPENAI_BASE_URL"`
	OpenAIModel      string  `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	YandexOAuthToken string  `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID   string  `env:"YANDEX_FOLDER_ID"`
	Temperature      float32 `env:"LLM_TEMPERATURE" envDefault:"0.5"`
	MaxTokens        int     `env:"LLM_MAX_TOKENS" envDefault:"500"`
	MaxSentences     int     `env:"MAX_SENTENCES" envDefault:"3"`

	// OpenRouter (optional)
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER"`
	OpenRouterTitle    string `env:"OPENROUTER_TITLE"`

	// Prompts
	SystemPromptPath string `env:"SYSTEM_PROMPT_PATH"`

	// Cloud speech
	OpenAISTTModel string `env:"OPENAI_STT_MODEL" envDefault:"whisper-1"`
	OpenAITTSModel string `env:"OPENAI_TTS_MODEL" envDefault:"tts-1"`
	OpenAIVoice    string `env:"OPENAI_VOICE" envDefault:"alloy"`

	// Local backend
	WhisperModelDir string `env:"WHISPER_MODEL_DIR" envDefault:"models"`
	STTModel        string `env:"STT_MODEL" envDefault:"base.en"`
	PiperURL        string `env:"PIPER_URL" envDefault:"http://localhost:7071/tts"`
	Voice           string `env:"PIPER_VOICE" envDefault:"en_GB-alba-low"`
	OllamaURL       string `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	OllamaModel     string `env:"OLLAMA_MODEL" envDefault:"llama3"`
	Device          string `env:"DEVICE" envDefault:"cpu"`

	// Audio capture
	SampleRate      int           `env:"AUDIO_SAMPLE_RATE" envDefault:"16000"`
	FrameSize       int           `env:"AUDIO_FRAME_SIZE" envDefault:"512"`
	EnergyThreshold float64       `env:"AUDIO_ENERGY_THRESHOLD" envDefault:"300"`
	QuietTime       time.Duration `env:"AUDIO_QUIET_TIME" envDefault:"800ms"`
	PreRoll         time.Duration `env:"AUDIO_PRE_ROLL" envDefault:"300ms"`
	MaxPhrase       time.Duration `env:"AUDIO_MAX_PHRASE" envDefault:"15s"`
	PlaybackRate    int           `env:"AUDIO_PLAYBACK_RATE" envDefault:"44100"`

	// Operational log
	LogFilePath   string `env:"LOG_FILE_PATH" envDefault:"rainbow_robot.log"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"1"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"5"`

	// Journal
	JournalDriver string `env:"JOURNAL_DRIVER" envDefault:"jsonl"`
	JournalPath   string `env:"JOURNAL_PATH" envDefault:"logs/journal.jsonl"`

	// Remote control (optional)
	TelegramBotToken string  `env:"TELEGRAM_BOT_TOKEN"`
	AllowedUsers     []int64 `env:"ALLOWED_USERS" envSeparator:":"`
	AdminUserID      int64   `env:"ADMIN_USER"`
	AllowlistPath    string  `env:"ALLOWLIST_FILE_PATH"`
	DigestSchedule   string  `env:"DIGEST_SCHEDULE" envDefault:"0 21 * * *"`
}

// New читает конфигурацию из окружения и проверяет ее.
func New() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendCloud, BackendLocal:
	default:
		return fmt.Errorf("unknown backend %q (want cloud or local)", c.Backend)
	}
	if c.HistoryCapacity <= 0 {
		return fmt.Errorf("HISTORY_CAPACITY must be positive, got %d", c.HistoryCapacity)
	}
	if len(c.WakePhrases) == 0 || len(c.QuitPhrases) == 0 {
		return fmt.Errorf("wake and quit phrase sets must not be empty")
	}
	if c.SampleRate <= 0 || c.FrameSize <= 0 {
		return fmt.Errorf("invalid audio settings: sample rate %d, frame size %d", c.SampleRate, c.FrameSize)
	}
	return nil
}

// HistoryPath — путь к файлу истории с учетом бэкенда.
func (c *Config) HistoryPath() string {
	if c.HistoryFilePath != "" {
		return c.HistoryFilePath
	}
	if c.Backend == BackendLocal {
		return LocalHistoryFile
	}
	return CloudHistoryFile
}

// StopPhraseSet — стоп-фразы бэкенда; локальный понимает больше.
func (c *Config) StopPhraseSet() []string {
	out := append([]string(nil), c.StopPhrases...)
	if c.Backend == BackendLocal {
		out = append(out, c.LocalStopPhrases...)
	}
	return out
}

// ModelProvider — провайдер языковой модели; по умолчанию openai в облаке и ollama локально.
func (c *Config) ModelProvider() string {
	if c.LLMProvider != "" {
		return c.LLMProvider
	}
	if c.Backend == BackendLocal {
		return "ollama"
	}
	return "openai"
}
