package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"SubmissionRelay/internal/domain"
	"SubmissionRelay/internal/scanner"
)

const defaultAPIURL = "https://www.reddit.com"

// deletedAuthor is what the listing reports for removed accounts.
const deletedAuthor = "[deleted]"

// RedditJSON reads the newest submissions from the JSON listing API.
type RedditJSON struct {
	fetcher *Fetcher
	baseURL string
}

// NewRedditJSON builds the "json" strategy; an empty baseURL means reddit.com.
func NewRedditJSON(fetcher *Fetcher, baseURL string) *RedditJSON {
	if baseURL == "" {
		baseURL = defaultAPIURL
	}
	return &RedditJSON{fetcher: fetcher, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Name identifies the strategy inside the registry.
func (r *RedditJSON) Name() string {
	return "json"
}

type listingResponse struct {
	Data struct {
		Children []struct {
			Kind string      `json:"kind"`
			Data listingPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type listingPost struct {
	ID            string  `json:"id"`
	Subreddit     string  `json:"subreddit"`
	Title         string  `json:"title"`
	Author        string  `json:"author"`
	CreatedUTC    float64 `json:"created_utc"`
	LinkFlairText *string `json:"link_flair_text"`
	Permalink     string  `json:"permalink"`
	Thumbnail     string  `json:"thumbnail"`
}

// Scan returns up to req.Count entries in listing order (newest first).
func (r *RedditJSON) Scan(ctx context.Context, req scanner.Request) ([]domain.RawSubmission, error) {
	pageURL, err := r.pageURL(req.Scope, req.Count)
	if err != nil {
		return nil, &domain.SourceFetchError{Scope: req.Scope, Err: err}
	}

	body, err := r.fetcher.Get(ctx, req.Scope, pageURL, "application/json")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var listing listingResponse
	if err := json.NewDecoder(body).Decode(&listing); err != nil {
		return nil, &domain.SourceFetchError{Scope: req.Scope, Err: fmt.Errorf("decode listing: %w", err)}
	}

	results := make([]domain.RawSubmission, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		if child.Kind != "" && child.Kind != "t3" {
			continue
		}
		results = append(results, child.Data.toRaw(req.Scope))
		if req.Count > 0 && len(results) >= req.Count {
			break
		}
	}

	return results, nil
}

func (p listingPost) toRaw(scope string) domain.RawSubmission {
	author := p.Author
	if author == deletedAuthor {
		author = ""
	}
	if p.Subreddit != "" {
		scope = p.Subreddit
	}
	return domain.RawSubmission{
		ID:        p.ID,
		Scope:     scope,
		Title:     p.Title,
		Author:    author,
		CreatedAt: int64(p.CreatedUTC),
		Flair:     p.LinkFlairText,
		Permalink: p.Permalink,
		Thumbnail: p.Thumbnail,
	}
}

func (r *RedditJSON) pageURL(scope string, count int) (string, error) {
	parsed, err := url.Parse(r.baseURL + "/r/" + url.PathEscape(scope) + "/new.json")
	if err != nil {
		return "", fmt.Errorf("invalid listing url for %s: %w", scope, err)
	}

	query := parsed.Query()
	if count > 0 {
		query.Set("limit", strconv.Itoa(count))
	}
	query.Set("raw_json", "1")
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
