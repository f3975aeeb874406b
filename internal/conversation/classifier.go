package conversation

import (
	"strings"
	"unicode"
)

// Kind — категория распознанной фразы.
type Kind int

const (
	KindUtterance Kind = iota
	KindWake
	KindStop
	KindQuit
	KindHistoryQuery
)

func (k Kind) String() string {
	switch k {
	case KindWake:
		return "wake"
	case KindStop:
		return "stop"
	case KindQuit:
		return "quit"
	case KindHistoryQuery:
		return "history_query"
	default:
		return "utterance"
	}
}

// QueryKind — какой вопрос задан к истории.
type QueryKind int

const (
	QueryFirst QueryKind = iota
	QueryLast
	QueryRecent
	QueryRepeat
)

var queryOrder = []QueryKind{QueryFirst, QueryLast, QueryRecent, QueryRepeat}

func (q QueryKind) String() string {
	switch q {
	case QueryFirst:
		return "first"
	case QueryLast:
		return "last"
	case QueryRecent:
		return "recent"
	case QueryRepeat:
		return "repeat"
	default:
		return "unknown"
	}
}

// Classification — результат разбора фразы. Нигде не сохраняется.
type Classification struct {
	Kind   Kind
	Query  QueryKind
	Phrase string
}

func (c Classification) String() string {
	if c.Kind == KindHistoryQuery {
		return c.Kind.String() + ":" + c.Query.String()
	}
	return c.Kind.String()
}

// Vocabulary — наборы ключевых фраз.
type Vocabulary struct {
	Wake    []string
	Stop    []string
	Quit    []string
	History map[QueryKind][]string
}

var (
	DefaultWakePhrases      = []string{"hey robot", "hey robo", "wake up"}
	DefaultStopPhrases      = []string{"rainbow", "stop"}
	DefaultLocalStopPhrases = []string{"shut up", "wait"}
	DefaultQuitPhrases      = []string{"goodbye"}
)

func DefaultHistoryPhrases() map[QueryKind][]string {
	return map[QueryKind][]string{
		QueryFirst:  {"first interaction", "first conversation"},
		QueryLast:   {"last interaction", "previous conversation", "previous interaction", "last conversation"},
		QueryRecent: {"recent interactions", "recent conversations"},
		QueryRepeat: {"repeat", "say that again", "say it again", "what did you say", "can you repeat"},
	}
}

// DefaultVocabulary возвращает словарь команд; локальный бэкенд понимает дополнительные стоп-фразы.
func DefaultVocabulary(local bool) Vocabulary {
	stop := append([]string(nil), DefaultStopPhrases...)
	if local {
		stop = append(stop, DefaultLocalStopPhrases...)
	}
	return Vocabulary{
		Wake:    append([]string(nil), DefaultWakePhrases...),
		Stop:    stop,
		Quit:    append([]string(nil), DefaultQuitPhrases...),
		History: DefaultHistoryPhrases(),
	}
}

// Classify сопоставляет фразу с наборами без учета регистра и пунктуации.
// Приоритет: Quit > Stop > Wake > HistoryQuery > Utterance.
// Вопросы к истории распознаются только в режиме Listening.
func (v Vocabulary) Classify(text string, state State) Classification {
	norm := normalize(text)
	if norm == "" {
		return Classification{Kind: KindUtterance}
	}
	if p, ok := matchAny(norm, v.Quit); ok {
		return Classification{Kind: KindQuit, Phrase: p}
	}
	if p, ok := matchAny(norm, v.Stop); ok {
		return Classification{Kind: KindStop, Phrase: p}
	}
	if p, ok := matchAny(norm, v.Wake); ok {
		return Classification{Kind: KindWake, Phrase: p}
	}
	if state == StateListening {
		for _, q := range queryOrder {
			if p, ok := matchAny(norm, v.History[q]); ok {
				return Classification{Kind: KindHistoryQuery, Query: q, Phrase: p}
			}
		}
	}
	return Classification{Kind: KindUtterance}
}

// matchAny ищет фразу подстрокой в нормализованном тексте: "stopped" тоже останавливает.
func matchAny(norm string, phrases []string) (string, bool) {
	for _, p := range phrases {
		np := normalize(p)
		if np == "" {
			continue
		}
		if strings.Contains(norm, np) {
			return p, true
		}
	}
	return "", false
}

// normalize: нижний регистр, пунктуация -> пробел, пробелы схлопнуты. Апостроф удаляется.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r == '\'' || r == '’':
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		default:
			if !space {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
