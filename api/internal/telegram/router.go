package telegram

import (
	"context"
	"strconv"
	"strings"

	"github.com/apex/log"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"step-tutor/api/internal/identity"
	"step-tutor/api/internal/tutor"
)

// Sender is the part of *tgbotapi.BotAPI the router needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Users yields the identity for bot requests; *identity.MockResolver
// satisfies it.
type Users interface {
	Current() *identity.UserIdentity
}

// Router answers chat commands. It keeps no per-chat state: every /step and
// every button press is a single round trip.
type Router struct {
	Bot   Sender
	Tutor *tutor.Service
	Users Users
}

func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.CallbackQuery != nil {
		r.handleCallback(ctx, upd.CallbackQuery)
		return
	}
	if upd.Message == nil {
		return
	}
	if upd.Message.IsCommand() {
		r.HandleCommand(ctx, upd.Message)
		return
	}
	r.send(upd.Message.Chat.ID, helpText)
}

func (r *Router) HandleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	switch msg.Command() {
	case "start", "help":
		r.send(cid, helpText)
	case "me":
		r.send(cid, describeUser(r.Users.Current()))
	case "step":
		r.runStep(ctx, cid, parseStepArgs(strings.Fields(msg.CommandArguments())))
	default:
		r.send(cid, "Unknown command. Try /help.")
	}
}

func (r *Router) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if _, err := r.Bot.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.WithError(err).Warn("telegram.callback.ack_failed")
	}
	if cb.Message == nil {
		return
	}
	in, ok := parseStepCallback(cb.Data)
	if !ok {
		return
	}
	r.runStep(ctx, cb.Message.Chat.ID, in)
}

func (r *Router) runStep(ctx context.Context, chatID int64, in tutor.StepRequest) {
	_, _ = r.Bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))

	out, err := r.Tutor.RunStep(ctx, r.Users.Current(), in)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"chat_id": chatID,
			"subject": in.Subject,
			"topic":   in.Topic,
		}).Warn("telegram.step.failed")
		r.send(chatID, tutor.Message(err))
		return
	}

	text := out.Content
	if text == "" {
		text = "(empty answer)"
	}
	msg := tgbotapi.NewMessage(chatID, truncate(text, maxMessageLen))
	if kb, ok := makeNextStepKeyboard(in); ok {
		msg.ReplyMarkup = kb
	}
	if _, err := r.Bot.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Warn("telegram.send.failed")
	}
}

func (r *Router) send(chatID int64, text string) {
	if _, err := r.Bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Warn("telegram.send.failed")
	}
}

// parseStepArgs reads "<subject> <topic> <stepNumber>". Anything missing or
// unparseable is left zero so validation rejects it.
func parseStepArgs(args []string) tutor.StepRequest {
	var in tutor.StepRequest
	if len(args) > 0 {
		in.Subject = args[0]
	}
	if len(args) > 1 {
		in.Topic = args[1]
	}
	if len(args) > 2 {
		if n, err := strconv.ParseFloat(args[2], 64); err == nil {
			in.StepNumber = n
		}
	}
	return in
}

func describeUser(u *identity.UserIdentity) string {
	if u == nil || !u.LoggedIn {
		return "Not logged in."
	}
	return "Logged in as " + u.Email + " (plan: " + string(u.Plan) + ")."
}
