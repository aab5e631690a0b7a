// Package notify delivers operator alerts from the sync daemon and the health report.
package notify

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	logx "taskdeck/pkg/logx"
)

// Config points the notifier at one Telegram chat (optionally a forum topic).
type Config struct {
	Token    string
	ChatID   int64
	ThreadID int
	// APIURL overrides https://api.telegram.org.
	APIURL  string
	Timeout time.Duration
}

// Telegram sends plain-text alerts through the Bot API. It never polls for updates.
type Telegram struct {
	bot     *tele.Bot
	chat    tele.ChatID
	thread  int
	limiter *rate.Limiter
	log     logx.Logger
}

func NewTelegram(cfg Config, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	// Offline skips the getMe call so construction never touches the network.
	b, err := tele.NewBot(tele.Settings{
		Token:   strings.TrimSpace(cfg.Token),
		URL:     strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"),
		Client:  &http.Client{Timeout: timeout},
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	return &Telegram{
		bot:    b,
		chat:   tele.ChatID(cfg.ChatID),
		thread: cfg.ThreadID,
		// Telegram allows about one message per second into a chat.
		limiter: rate.NewLimiter(rate.Every(time.Second), 3),
		log:     log.With(logx.String("component", "notify")),
	}, nil
}

// Alert sends text. Long messages are cut to the Bot API limit.
func (t *Telegram) Alert(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	msg, err := t.bot.Send(t.chat, clip(text, maxMessage), &tele.SendOptions{
		ThreadID:              t.thread,
		DisableWebPagePreview: true,
	})
	if err != nil {
		t.log.Warn("telegram send failed", logx.Err(err))
		return err
	}
	t.log.Debug("telegram alert sent", logx.Int("message_id", msg.ID))
	return nil
}

const maxMessage = 4096

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
