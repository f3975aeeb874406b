package history

import (
	"encoding/json"
	"fmt"
	"time"
)

// legacyTimeLayout — формат временных меток в старых файлах истории.
const legacyTimeLayout = "2006-01-02 15:04:05"

// Interaction — один обмен репликами. После создания не изменяется.
type Interaction struct {
	Timestamp     time.Time `json:"timestamp"`
	UserText      string    `json:"user_text"`
	AssistantText string    `json:"assistant_text"`
	Sequence      uint64    `json:"sequence_number"`
}

// UnmarshalJSON понимает и текущий формат, и старый ({timestamp, user, robot}).
func (i *Interaction) UnmarshalJSON(data []byte) error {
	var raw struct {
		Timestamp     string  `json:"timestamp"`
		UserText      *string `json:"user_text"`
		AssistantText *string `json:"assistant_text"`
		User          string  `json:"user"`
		Robot         string  `json:"robot"`
		Sequence      uint64  `json:"sequence_number"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts, err := parseTimestamp(raw.Timestamp)
	if err != nil {
		return err
	}
	i.Timestamp = ts
	i.Sequence = raw.Sequence
	i.UserText = raw.User
	if raw.UserText != nil {
		i.UserText = *raw.UserText
	}
	i.AssistantText = raw.Robot
	if raw.AssistantText != nil {
		i.AssistantText = *raw.AssistantText
	}
	return nil
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	ts, err := time.ParseInLocation(legacyTimeLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return ts, nil
}
