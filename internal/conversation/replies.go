package conversation

import (
	"fmt"
	"strings"

	"rainbow-robot/internal/history"
)

const (
	GreetingText    = "Hello! I am HMND-01, your humanoid robot assistant. How can I help you today?"
	ApologyText     = "I apologize, but I'm having trouble generating a response right now."
	// SleepText и FarewellText не содержат фраз словаря: микрофон слышит робота.
	SleepText       = "I haven't heard from you in a while. Going to sleep now. Call me when you need me."
	FarewellText    = "Bye for now! Have a great day! Call me when you need me again."
	NoHistoryText   = "I don't have any previous interactions to recall."
	NothingToRepeat = "I don't have anything to repeat yet."
)

func repromptText(remaining int) string {
	if remaining == 1 {
		return "I didn't catch that. Please try again. 1 attempt remaining."
	}
	return fmt.Sprintf("I didn't catch that. Please try again. %d attempts remaining.", remaining)
}

// AnswerHistory строит ответ на вопрос к истории без обращения к модели.
// recent — сколько записей перечислять для QueryRecent.
func AnswerHistory(store *history.Store, q QueryKind, recent int) string {
	switch q {
	case QueryFirst:
		it, ok := store.First()
		if !ok {
			return NoHistoryText
		}
		return fmt.Sprintf("Our first interaction was at %s. %s", spokenTime(it), exchange(it))
	case QueryLast:
		it, ok := store.Last()
		if !ok {
			return NoHistoryText
		}
		return fmt.Sprintf("Our last interaction was at %s. %s", spokenTime(it), exchange(it))
	case QueryRecent:
		items := store.Recent(recent)
		if len(items) == 0 {
			return NoHistoryText
		}
		var b strings.Builder
		b.WriteString("Here are our recent interactions: ")
		for i, it := range items {
			if i > 0 {
				b.WriteString(" Then, at ")
			} else {
				b.WriteString("At ")
			}
			fmt.Fprintf(&b, "%s, you said \"%s\" and I replied \"%s\".", spokenTime(it), it.UserText, it.AssistantText)
		}
		return b.String()
	case QueryRepeat:
		text, ok := store.Repeat()
		if !ok {
			return NothingToRepeat
		}
		return "I'll repeat my last response: " + text
	}
	return NoHistoryText
}

func exchange(it history.Interaction) string {
	return fmt.Sprintf("You said \"%s\" and I replied \"%s\".", it.UserText, it.AssistantText)
}

// spokenTime — время в виде, удобном для синтеза речи.
func spokenTime(it history.Interaction) string {
	return it.Timestamp.Local().Format("3:04 PM on January 2")
}
