package telegram

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestRetryDelayFromError(t *testing.T) {
	assert.Equal(t, time.Duration(0), RetryDelayFromError(nil))
	assert.Equal(t, 7*time.Second, RetryDelayFromError(errors.New("Too Many Requests: retry after 7")))
	assert.Equal(t, 3*time.Second, RetryDelayFromError(errors.New("Too Many Requests")))
	assert.Equal(t, 2*time.Second, RetryDelayFromError(timeoutErr{}))
	assert.Equal(t, time.Second, RetryDelayFromError(errors.New("bad gateway")))
}

type scriptedUpdater struct {
	offsets []int
	steps   []func() ([]tgbotapi.Update, error)
}

func (s *scriptedUpdater) GetUpdates(cfg tgbotapi.UpdateConfig) ([]tgbotapi.Update, error) {
	s.offsets = append(s.offsets, cfg.Offset)
	i := len(s.offsets) - 1
	if i < len(s.steps) {
		return s.steps[i]()
	}
	return nil, nil
}

func TestPoller_Run(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	up := &scriptedUpdater{}
	up.steps = []func() ([]tgbotapi.Update, error){
		func() ([]tgbotapi.Update, error) { return nil, errors.New("bad gateway") },
		func() ([]tgbotapi.Update, error) {
			return []tgbotapi.Update{{UpdateID: 5}, {UpdateID: 6}}, nil
		},
		func() ([]tgbotapi.Update, error) { cancel(); return nil, nil },
	}

	p := NewPoller(up)
	p.BaseDelay = time.Millisecond
	p.MaxDelay = time.Millisecond
	p.Idle = time.Millisecond

	var got []int
	done := make(chan struct{})
	go func() {
		p.Run(ctx, func(u tgbotapi.Update) { got = append(got, u.UpdateID) })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop after cancel")
	}

	assert.Equal(t, []int{5, 6}, got)
	require.Len(t, up.offsets, 3)
	assert.Equal(t, []int{0, 0, 7}, up.offsets)
}

func TestWebhookPath(t *testing.T) {
	a := WebhookPath("123:abc")
	assert.Equal(t, a, WebhookPath("123:abc"))
	assert.NotEqual(t, a, WebhookPath("123:abd"))
	assert.Regexp(t, `^/webhook/[0-9a-f]+$`, a)
}
