package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"rainbow-robot/internal/auth"
	"rainbow-robot/internal/conversation"
	"rainbow-robot/internal/history"
)

type sentMessage struct {
	chatID int64
	text   string
}

type fakeSender struct{ sent []sentMessage }

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m := c.(tgbotapi.MessageConfig)
	f.sent = append(f.sent, sentMessage{chatID: m.ChatID, text: m.Text})
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) last() string {
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1].text
}

type fakeController struct {
	events []conversation.Event
	state  conversation.State
	store  *history.Store
	err    error
}

func (f *fakeController) Submit(ctx context.Context, ev conversation.Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeController) State() conversation.State { return f.state }

func (f *fakeController) History() *history.Store { return f.store }

const (
	adminID = int64(999)
	userID  = int64(42)
)

func newTestBot(t *testing.T) (*Bot, *fakeSender, *fakeController) {
	t.Helper()
	svc, err := auth.NewWithRepo(nil, []int64{userID}, adminID)
	if err != nil {
		t.Fatalf("auth init: %v", err)
	}
	fs := &fakeSender{}
	ctrl := &fakeController{
		state: conversation.StateIdle,
		store: history.Open(afero.NewMemMapFs(), "/robot/conversation_history.json", 10),
	}
	b := &Bot{
		s:           fs,
		authSvc:     svc,
		ctrl:        ctrl,
		phrases:     Phrases{Wake: "hey robot", Stop: "stop"},
		recentCount: 3,
		log:         zerolog.Nop(),
	}
	return b, fs, ctrl
}

func command(from int64, text string) *tgbotapi.Message {
	cmd := strings.SplitN(text, " ", 2)[0]
	return &tgbotapi.Message{
		From:     &tgbotapi.User{ID: from, UserName: "tester"},
		Chat:     &tgbotapi.Chat{ID: from},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}
}

func plain(from int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{From: &tgbotapi.User{ID: from}, Chat: &tgbotapi.Chat{ID: from}, Text: text}
}

func TestUnauthorizedUserIsRejectedAndAdminNotified(t *testing.T) {
	b, fs, ctrl := newTestBot(t)
	b.handleIncomingMessage(context.Background(), plain(7, "hey robot"))

	if len(ctrl.events) != 0 {
		t.Fatalf("stranger must not reach the controller: %+v", ctrl.events)
	}
	if len(fs.sent) != 2 {
		t.Fatalf("expected denial and admin notice, got %+v", fs.sent)
	}
	if fs.sent[1].chatID != adminID || !strings.Contains(fs.sent[1].text, "/allow 7") {
		t.Fatalf("admin notice missing: %+v", fs.sent[1])
	}
}

func TestWakeStopAndSaySubmitTranscripts(t *testing.T) {
	b, _, ctrl := newTestBot(t)
	ctx := context.Background()
	b.handleIncomingMessage(ctx, command(userID, "/wake"))
	b.handleIncomingMessage(ctx, command(userID, "/say what is the weather"))
	b.handleIncomingMessage(ctx, command(userID, "/stop"))
	b.handleIncomingMessage(ctx, plain(userID, "goodbye"))

	want := []string{"hey robot", "what is the weather", "stop", "goodbye"}
	if len(ctrl.events) != len(want) {
		t.Fatalf("expected %d events, got %+v", len(want), ctrl.events)
	}
	for i, w := range want {
		ev := ctrl.events[i]
		if ev.Type != conversation.EventTranscript || ev.Text != w || ev.Source != Source {
			t.Fatalf("event %d: got %+v, want text %q", i, ev, w)
		}
	}
}

func TestSayWithoutTextShowsUsage(t *testing.T) {
	b, fs, ctrl := newTestBot(t)
	b.handleIncomingMessage(context.Background(), command(userID, "/say"))
	if len(ctrl.events) != 0 || !strings.Contains(fs.last(), "Usage") {
		t.Fatalf("unexpected: events=%+v sent=%q", ctrl.events, fs.last())
	}
}

func TestSubmitAfterShutdown(t *testing.T) {
	b, fs, ctrl := newTestBot(t)
	ctrl.err = conversation.ErrStopped
	b.handleIncomingMessage(context.Background(), command(userID, "/wake"))
	if !strings.Contains(fs.last(), "shut down") {
		t.Fatalf("unexpected reply %q", fs.last())
	}
}

func TestStatusAndHistoryCommands(t *testing.T) {
	b, fs, ctrl := newTestBot(t)
	ctx := context.Background()

	b.handleIncomingMessage(ctx, command(userID, "/last"))
	if fs.last() != conversation.NoHistoryText {
		t.Fatalf("empty history reply: %q", fs.last())
	}

	ctrl.store.Append("hello", "Hi there.")
	ctrl.store.Append("how are you", "I am fine.")
	ctrl.state = conversation.StateListening

	b.handleIncomingMessage(ctx, command(userID, "/status"))
	if !strings.Contains(fs.last(), "State: listening") || !strings.Contains(fs.last(), "2/10") {
		t.Fatalf("unexpected status %q", fs.last())
	}

	b.handleIncomingMessage(ctx, command(userID, "/last"))
	if !strings.Contains(fs.last(), "how are you") {
		t.Fatalf("unexpected last %q", fs.last())
	}

	b.handleIncomingMessage(ctx, command(userID, "/history"))
	if !strings.Contains(fs.last(), "hello") || !strings.Contains(fs.last(), "I am fine.") {
		t.Fatalf("unexpected history %q", fs.last())
	}
}

func TestDigest(t *testing.T) {
	b, fs, _ := newTestBot(t)
	ctx := context.Background()

	b.handleIncomingMessage(ctx, command(userID, "/digest"))
	if !strings.Contains(fs.last(), "not configured") {
		t.Fatalf("unexpected reply %q", fs.last())
	}

	b.SetDigestFunction(func(context.Context) (string, error) { return "Interactions: 4", nil })
	b.handleIncomingMessage(ctx, command(userID, "/digest"))
	if fs.last() != "Interactions: 4" {
		t.Fatalf("unexpected digest %q", fs.last())
	}

	if err := b.SendDigest(ctx); err != nil {
		t.Fatalf("SendDigest: %v", err)
	}
	if got := fs.sent[len(fs.sent)-1]; got.chatID != adminID {
		t.Fatalf("digest should go to admin, got %+v", got)
	}

	b.SetDigestFunction(func(context.Context) (string, error) { return "", errors.New("journal unavailable") })
	if err := b.SendDigest(ctx); err == nil {
		t.Fatalf("expected digest error")
	}
}

func TestAdminManagesAllowlist(t *testing.T) {
	b, fs, _ := newTestBot(t)
	ctx := context.Background()

	b.handleIncomingMessage(ctx, command(userID, "/allow 7"))
	if !strings.Contains(fs.last(), "Only the administrator") || b.authSvc.IsAllowed(7) {
		t.Fatalf("non-admin changed allowlist: %q", fs.last())
	}

	b.handleIncomingMessage(ctx, command(adminID, "/allow 7"))
	if !b.authSvc.IsAllowed(7) || fs.last() != "User 7 allowed." {
		t.Fatalf("allow failed: %q", fs.last())
	}

	b.handleIncomingMessage(ctx, command(adminID, "/deny 7"))
	if b.authSvc.IsAllowed(7) || fs.last() != "User 7 denied." {
		t.Fatalf("deny failed: %q", fs.last())
	}

	b.handleIncomingMessage(ctx, command(adminID, "/allow someone"))
	if !strings.Contains(fs.last(), "Usage: /allow") {
		t.Fatalf("expected usage, got %q", fs.last())
	}
}
