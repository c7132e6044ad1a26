package telegram

import (
	"math"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"step-tutor/api/internal/tutor"
)

const (
	maxMessageLen  = 3900
	maxCallbackLen = 64
	callbackPrefix = "step"
)

const helpText = `Step-by-step tutor.

/step <subject> <topic> <stepNumber> - explain one step, e.g. /step physics newton-first-law 1
/me - show your account and plan
/help - this message`

// makeNextStepKeyboard offers the following step. The whole request travels
// in the callback data; it is skipped when it would not fit.
func makeNextStepKeyboard(in tutor.StepRequest) (tgbotapi.InlineKeyboardMarkup, bool) {
	if in.StepNumber != math.Trunc(in.StepNumber) {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	next := strconv.FormatInt(int64(in.StepNumber)+1, 10)
	data := strings.Join([]string{callbackPrefix, in.Subject, in.Topic, next}, " ")
	if len(data) > maxCallbackLen {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	btn := tgbotapi.NewInlineKeyboardButtonData("Next step ("+next+")", data)
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(btn)), true
}

func parseStepCallback(data string) (tutor.StepRequest, bool) {
	f := strings.Fields(data)
	if len(f) != 4 || f[0] != callbackPrefix {
		return tutor.StepRequest{}, false
	}
	return parseStepArgs(f[1:]), true
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
