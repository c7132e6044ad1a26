package telegram

import (
	"context"
	"errors"
	"hash/fnv"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Updater is the long-polling part of *tgbotapi.BotAPI.
type Updater interface {
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
}

type Poller struct {
	Bot Updater

	BaseDelay time.Duration
	MaxDelay  time.Duration
	Idle      time.Duration
	// Timeout is the server-side long-poll timeout in seconds.
	Timeout int
}

func NewPoller(bot Updater) *Poller {
	return &Poller{
		Bot:       bot,
		BaseDelay: time.Second,
		MaxDelay:  15 * time.Second,
		Idle:      200 * time.Millisecond,
		Timeout:   30,
	}
}

var reRetryAfter = regexp.MustCompile(`(?i)retry after\s+(\d+)`)

// RetryDelayFromError honours Telegram's "retry after N" on 429 and uses
// short fixed delays otherwise.
func RetryDelayFromError(err error) time.Duration {
	if err == nil {
		return 0
	}
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "too many requests") {
		if m := reRetryAfter.FindStringSubmatch(s); len(m) == 2 {
			if n, _ := strconv.Atoi(m[1]); n > 0 {
				return time.Duration(n) * time.Second
			}
		}
		return 3 * time.Second
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return 2 * time.Second
	}
	return time.Second
}

// Run polls until ctx is done. Errors never stop the loop.
func (p *Poller) Run(ctx context.Context, handle func(tgbotapi.Update)) {
	offset := 0
	for {
		if ctx.Err() != nil {
			log.Info("telegram.polling.stopped")
			return
		}

		u := tgbotapi.NewUpdate(offset)
		u.Timeout = p.Timeout

		updates, err := p.Bot.GetUpdates(u)
		if err != nil {
			d := min(max(RetryDelayFromError(err), p.BaseDelay), p.MaxDelay)
			log.WithError(err).WithField("retry_in", d.String()).Warn("telegram.polling.error")
			sleep(ctx, d)
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			handle(upd)
		}
		if len(updates) == 0 {
			sleep(ctx, p.Idle)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// WebhookPath derives a stable, non-guessable webhook path from the token.
func WebhookPath(token string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(token))
	return "/webhook/" + strconv.FormatUint(h.Sum64(), 16)
}
