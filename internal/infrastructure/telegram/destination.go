package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"SubmissionRelay/internal/domain"
	"SubmissionRelay/internal/ports"
)

// Config describes the bot used for delivery.
type Config struct {
	Token string
	// APIURL overrides the Bot API endpoint; empty means the public one.
	APIURL string
	Client *http.Client
}

// chat addresses a chat by numeric id or @username.
type chat string

func (c chat) Recipient() string { return string(c) }

// Destination posts submissions to one Telegram chat.
type Destination struct {
	bot  *tele.Bot
	chat chat
	now  func() time.Time
}

var _ ports.Destination = (*Destination)(nil)

// Deliver sends the thumbnail as a photo with an HTML caption, or a text
// message when there is no thumbnail.
func (d *Destination) Deliver(ctx context.Context, payload domain.Payload) (domain.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return domain.Delivery{}, &domain.DeliveryError{Err: err}
	}

	caption := Caption(payload)
	opts := &tele.SendOptions{ParseMode: tele.ModeHTML}

	var what interface{} = caption
	if payload.ThumbnailURL != "" {
		what = &tele.Photo{File: tele.FromURL(payload.ThumbnailURL), Caption: caption}
	}

	msg, err := d.bot.Send(d.chat, what, opts)
	if err != nil {
		return domain.Delivery{}, d.deliveryError(err)
	}

	return domain.Delivery{MessageID: int64(msg.ID)}, nil
}

func (d *Destination) deliveryError(err error) error {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		rl := domain.RateLimit{
			Remaining: 0,
			Reset:     d.now().Add(time.Duration(flood.RetryAfter) * time.Second),
		}
		return &domain.DeliveryError{Status: http.StatusTooManyRequests, RateLimit: &rl, Err: err}
	}

	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return &domain.DeliveryError{Status: apiErr.Code, Err: err}
	}
	return &domain.DeliveryError{Err: fmt.Errorf("send: %w", err)}
}

// Caption renders the payload as Telegram HTML.
func Caption(p domain.Payload) string {
	var b strings.Builder
	title := html.EscapeString(p.Title)
	if p.URL != "" {
		fmt.Fprintf(&b, `<b><a href="%s">%s</a></b>`, html.EscapeString(p.URL), title)
	} else {
		fmt.Fprintf(&b, "<b>%s</b>", title)
	}
	if p.AuthorName != "" {
		b.WriteString("\n")
		if p.AuthorURL != "" {
			fmt.Fprintf(&b, `<a href="%s">u/%s</a>`, html.EscapeString(p.AuthorURL), html.EscapeString(p.AuthorName))
		} else {
			fmt.Fprintf(&b, "u/%s", html.EscapeString(p.AuthorName))
		}
	}
	return b.String()
}

// Resolver hands out destinations sharing one bot, keyed by chat id.
type Resolver struct {
	bot *tele.Bot
	now func() time.Time

	mu    sync.Mutex
	cache map[string]*Destination
}

var _ ports.DestinationResolver = (*Resolver)(nil)

// NewResolver builds an offline bot; no request is made until the first delivery.
func NewResolver(cfg Config) (*Resolver, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	bot, err := tele.NewBot(tele.Settings{
		URL:     cfg.APIURL,
		Token:   cfg.Token,
		Client:  client,
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("new bot: %w", err)
	}

	return &Resolver{bot: bot, now: time.Now, cache: map[string]*Destination{}}, nil
}

// Resolve returns the destination for chat channelID.
func (r *Resolver) Resolve(channelID string) (ports.Destination, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return nil, errors.New("telegram chat id is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if dest, ok := r.cache[channelID]; ok {
		return dest, nil
	}
	dest := &Destination{bot: r.bot, chat: chat(channelID), now: r.now}
	r.cache[channelID] = dest
	return dest, nil
}
