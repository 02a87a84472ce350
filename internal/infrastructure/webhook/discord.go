package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"SubmissionRelay/internal/domain"
	"SubmissionRelay/internal/ports"
)

// DefaultBaseURL is the Discord webhook endpoint root.
const DefaultBaseURL = "https://discord.com/api/webhooks"

const (
	headerLimit     = "X-RateLimit-Limit"
	headerRemaining = "X-RateLimit-Remaining"
	headerReset     = "X-RateLimit-Reset"
)

// Destination posts embeds to a single Discord webhook.
type Destination struct {
	endpoint string
	client   *http.Client
}

var _ ports.Destination = (*Destination)(nil)

// NewDestination builds a destination for webhook id/token under baseURL.
func NewDestination(client *http.Client, baseURL, id, token string) (*Destination, error) {
	if strings.TrimSpace(id) == "" || strings.TrimSpace(token) == "" {
		return nil, errors.New("discord webhook id and token are required")
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	endpoint := fmt.Sprintf("%s/%s/%s?wait=true", strings.TrimSuffix(baseURL, "/"), id, token)
	return &Destination{endpoint: endpoint, client: client}, nil
}

type embedImage struct {
	URL string `json:"url"`
}

type embedAuthor struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

type embed struct {
	Title     string       `json:"title"`
	URL       string       `json:"url,omitempty"`
	Color     int          `json:"color"`
	Timestamp string       `json:"timestamp,omitempty"`
	Thumbnail *embedImage  `json:"thumbnail,omitempty"`
	Author    *embedAuthor `json:"author,omitempty"`
}

type executeRequest struct {
	Embeds []embed `json:"embeds"`
}

type executeResponse struct {
	ID string `json:"id"`
}

// Deliver executes the webhook and returns the created message id with the
// rate-limit headers of the response.
func (d *Destination) Deliver(ctx context.Context, payload domain.Payload) (domain.Delivery, error) {
	body, err := json.Marshal(executeRequest{Embeds: []embed{toEmbed(payload)}})
	if err != nil {
		return domain.Delivery{}, &domain.DeliveryError{Err: fmt.Errorf("encode payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.Delivery{}, &domain.DeliveryError{Err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return domain.Delivery{}, &domain.DeliveryError{Err: fmt.Errorf("do request: %w", err)}
	}
	defer resp.Body.Close()

	rl := ParseRateLimit(resp.Header)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		derr := &domain.DeliveryError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("webhook returned %s: %s", resp.Status, strings.TrimSpace(string(data))),
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			derr.RateLimit = &rl
		}
		return domain.Delivery{}, derr
	}

	var out executeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		return domain.Delivery{}, &domain.DeliveryError{Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}

	var messageID int64
	if out.ID != "" {
		messageID, err = strconv.ParseInt(out.ID, 10, 64)
		if err != nil {
			return domain.Delivery{}, &domain.DeliveryError{Status: resp.StatusCode, Err: fmt.Errorf("parse message id %q: %w", out.ID, err)}
		}
	}

	return domain.Delivery{MessageID: messageID, RateLimit: rl}, nil
}

func toEmbed(p domain.Payload) embed {
	e := embed{
		Title:     p.Title,
		URL:       p.URL,
		Color:     p.Color,
		Timestamp: p.Timestamp,
	}
	if p.ThumbnailURL != "" {
		e.Thumbnail = &embedImage{URL: p.ThumbnailURL}
	}
	if p.AuthorName != "" {
		e.Author = &embedAuthor{Name: p.AuthorName, URL: p.AuthorURL}
	}
	return e
}

// ParseRateLimit reads the rate-limit headers; absent or malformed values are zero.
func ParseRateLimit(h http.Header) domain.RateLimit {
	var rl domain.RateLimit
	rl.Limit, _ = strconv.Atoi(strings.TrimSpace(h.Get(headerLimit)))
	rl.Remaining, _ = strconv.Atoi(strings.TrimSpace(h.Get(headerRemaining)))

	if raw := strings.TrimSpace(h.Get(headerReset)); raw != "" {
		if secs, err := strconv.ParseFloat(raw, 64); err == nil && secs > 0 {
			whole, frac := math.Modf(secs)
			rl.Reset = time.Unix(int64(whole), int64(math.Round(frac*1e9))).UTC()
		}
	}
	return rl
}
