// Package telegram — удаленный пульт робота: команды из чата превращаются
// в события контроллера, а ежедневная сводка уходит администратору.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"rainbow-robot/internal/auth"
	"rainbow-robot/internal/conversation"
	"rainbow-robot/internal/history"
)

// Source — значение Event.Source для событий из чата.
const Source = "telegram"

// Controller — то, чем бот управляет.
type Controller interface {
	Submit(ctx context.Context, ev conversation.Event) error
	State() conversation.State
	History() *history.Store
}

// Phrases — фразы, которые бот подставляет вместо голоса для /wake и /stop.
type Phrases struct {
	Wake string
	Stop string
}

type Bot struct {
	api         *tgbotapi.BotAPI
	s           sender
	authSvc     *auth.Service
	ctrl        Controller
	phrases     Phrases
	recentCount int
	digest      func(ctx context.Context) (string, error)
	log         zerolog.Logger
}

func New(botToken string, authSvc *auth.Service, ctrl Controller, phrases Phrases, log zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return &Bot{
		api:         api,
		s:           botAPISender{api: api},
		authSvc:     authSvc,
		ctrl:        ctrl,
		phrases:     phrases,
		recentCount: 3,
		log:         log,
	}, nil
}

// SetDigestFunction подключает построение сводки для /digest и рассылки по расписанию.
func (b *Bot) SetDigestFunction(f func(ctx context.Context) (string, error)) {
	b.digest = f
}

// Start читает обновления до отмены ctx.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info().Str("bot", b.api.Self.UserName).Msg("telegram remote control started")
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.log.Info().Msg("telegram remote control stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message != nil {
				b.handleIncomingMessage(ctx, update.Message)
			}
		}
	}
}

func (b *Bot) handleIncomingMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	if !b.authSvc.IsAllowed(msg.From.ID) {
		b.log.Warn().Int64("user_id", msg.From.ID).Str("username", msg.From.UserName).Msg("unauthorized remote control attempt")
		b.sendMessage(msg.Chat.ID, "Access denied. Your request was forwarded to the administrator.")
		b.notifyAdminRequest(msg.From.ID, msg.From.UserName)
		return
	}

	if !msg.IsCommand() {
		b.submit(ctx, msg.Chat.ID, msg.Text)
		return
	}

	b.log.Info().Int64("user_id", msg.From.ID).Str("command", msg.Command()).Msg("remote command")
	args := strings.TrimSpace(msg.CommandArguments())
	switch msg.Command() {
	case "start", "help":
		b.sendMessage(msg.Chat.ID, helpText)
	case "wake":
		b.submit(ctx, msg.Chat.ID, b.phrases.Wake)
	case "stop":
		b.submit(ctx, msg.Chat.ID, b.phrases.Stop)
	case "say":
		if args == "" {
			b.sendMessage(msg.Chat.ID, "Usage: /say <text>")
			return
		}
		b.submit(ctx, msg.Chat.ID, args)
	case "status":
		b.sendMessage(msg.Chat.ID, b.status())
	case "last":
		b.sendMessage(msg.Chat.ID, conversation.AnswerHistory(b.ctrl.History(), conversation.QueryLast, b.recentCount))
	case "history":
		b.sendMessage(msg.Chat.ID, conversation.AnswerHistory(b.ctrl.History(), conversation.QueryRecent, b.recentCount))
	case "digest":
		b.sendDigest(ctx, msg.Chat.ID)
	case "allow", "deny":
		b.handleAdminCommand(msg, args)
	default:
		b.sendMessage(msg.Chat.ID, "Unknown command. Try /help.")
	}
}

const helpText = `Rainbow robot remote control:
/wake - wake the robot up
/stop - interrupt what it is saying
/say <text> - say something to the robot
/status - current state
/last - last interaction
/history - recent interactions
/digest - today's digest`

// submit передает текст контроллеру так же, как распознанную речь.
func (b *Bot) submit(ctx context.Context, chatID int64, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	err := b.ctrl.Submit(ctx, conversation.Transcript(Source, text))
	switch {
	case err == nil:
		b.sendMessage(chatID, fmt.Sprintf("Sent %q (robot is %s).", text, b.ctrl.State()))
	case errors.Is(err, conversation.ErrStopped):
		b.sendMessage(chatID, "The robot has shut down.")
	default:
		b.log.Error().Err(err).Msg("remote submit failed")
		b.sendMessage(chatID, "Could not reach the robot.")
	}
}

func (b *Bot) status() string {
	store := b.ctrl.History()
	persistence := "on"
	if !store.Durable() {
		persistence = "off"
	}
	return fmt.Sprintf("State: %s\nHistory: %d/%d interactions\nPersistence: %s",
		b.ctrl.State(), store.Len(), store.Capacity(), persistence)
}

func (b *Bot) sendDigest(ctx context.Context, chatID int64) {
	if b.digest == nil {
		b.sendMessage(chatID, "Digest is not configured.")
		return
	}
	text, err := b.digest(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("digest failed")
		b.sendMessage(chatID, "Could not build the digest.")
		return
	}
	b.sendMessage(chatID, text)
}

// SendDigest отправляет сводку администратору; вызывается планировщиком.
func (b *Bot) SendDigest(ctx context.Context) error {
	admin := b.authSvc.AdminID()
	if admin == 0 {
		return errors.New("admin user is not configured")
	}
	if b.digest == nil {
		return errors.New("digest function not set")
	}
	text, err := b.digest(ctx)
	if err != nil {
		return err
	}
	if err := b.send(admin, text); err != nil {
		return fmt.Errorf("send digest: %w", err)
	}
	return nil
}

func (b *Bot) handleAdminCommand(msg *tgbotapi.Message, args string) {
	if !b.authSvc.IsAdmin(msg.From.ID) {
		b.sendMessage(msg.Chat.ID, "Only the administrator can change access.")
		return
	}
	id, err := strconv.ParseInt(args, 10, 64)
	if err != nil {
		b.sendMessage(msg.Chat.ID, fmt.Sprintf("Usage: /%s <user id>", msg.Command()))
		return
	}
	if msg.Command() == "allow" {
		err = b.authSvc.Upsert(auth.User{ID: id})
	} else {
		err = b.authSvc.Remove(id)
	}
	if err != nil {
		b.log.Error().Err(err).Int64("user_id", id).Msg("allowlist update failed")
		b.sendMessage(msg.Chat.ID, "Allowlist update failed.")
		return
	}
	verb := "allowed"
	if msg.Command() == "deny" {
		verb = "denied"
	}
	b.sendMessage(msg.Chat.ID, fmt.Sprintf("User %d %s.", id, verb))
}
