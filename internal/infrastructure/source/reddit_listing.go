package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"SubmissionRelay/internal/domain"
	"SubmissionRelay/internal/scanner"
)

const defaultListingURL = "https://old.reddit.com"

// thumbnailClasses are set on the thumbnail anchor when there is no image.
var thumbnailClasses = []string{"self", "default", "spoiler", "nsfw", "image"}

// RedditListing scrapes the server-rendered "new" listing page.
type RedditListing struct {
	fetcher *Fetcher
	baseURL string
}

// NewRedditListing builds the "html" strategy; an empty baseURL means old.reddit.com.
func NewRedditListing(fetcher *Fetcher, baseURL string) *RedditListing {
	if baseURL == "" {
		baseURL = defaultListingURL
	}
	return &RedditListing{fetcher: fetcher, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Name identifies the strategy inside the registry.
func (r *RedditListing) Name() string {
	return "html"
}

// Scan walks the listing rows and returns up to req.Count entries.
func (r *RedditListing) Scan(ctx context.Context, req scanner.Request) ([]domain.RawSubmission, error) {
	pageURL, err := buildPageURL(r.baseURL, req.Scope, req.Count)
	if err != nil {
		return nil, &domain.SourceFetchError{Scope: req.Scope, Err: err}
	}

	body, err := r.fetcher.Get(ctx, req.Scope, pageURL, "text/html")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, &domain.SourceFetchError{Scope: req.Scope, Err: fmt.Errorf("parse document: %w", err)}
	}

	return extractSubmissions(doc, req.Scope, req.Count), nil
}

func extractSubmissions(doc *goquery.Document, scope string, count int) []domain.RawSubmission {
	var collected []domain.RawSubmission

	doc.Find("div.thing[data-fullname]").EachWithBreak(func(i int, thing *goquery.Selection) bool {
		if count > 0 && len(collected) >= count {
			return false
		}
		if thing.HasClass("promoted") || thing.AttrOr("data-promoted", "") == "true" {
			return true
		}

		entry, err := parseThing(thing, scope)
		if err != nil {
			return true
		}
		collected = append(collected, entry)
		return true
	})

	return collected
}

func parseThing(thing *goquery.Selection, scope string) (domain.RawSubmission, error) {
	id := strings.TrimPrefix(thing.AttrOr("data-fullname", ""), "t3_")
	if id == "" {
		return domain.RawSubmission{}, errors.New("listing row without id")
	}

	if sub := thing.AttrOr("data-subreddit", ""); sub != "" {
		scope = sub
	}

	author := thing.AttrOr("data-author", "")
	if author == deletedAuthor {
		author = ""
	}

	var createdAt int64
	if ms, err := strconv.ParseInt(thing.AttrOr("data-timestamp", ""), 10, 64); err == nil {
		createdAt = ms / 1000
	}

	var flair *string
	if label := thing.Find("span.linkflairlabel").First(); label.Length() > 0 {
		text := strings.TrimSpace(label.AttrOr("title", ""))
		if text == "" {
			text = strings.TrimSpace(label.Text())
		}
		if text != "" {
			flair = &text
		}
	}

	return domain.RawSubmission{
		ID:        id,
		Scope:     scope,
		Title:     strings.TrimSpace(thing.Find("a.title").First().Text()),
		Author:    author,
		CreatedAt: createdAt,
		Flair:     flair,
		Permalink: thing.AttrOr("data-permalink", ""),
		Thumbnail: parseThumbnail(thing.Find("a.thumbnail").First()),
	}, nil
}

func parseThumbnail(anchor *goquery.Selection) string {
	if anchor.Length() == 0 {
		return ""
	}
	if src, ok := anchor.Find("img").First().Attr("src"); ok && src != "" {
		if strings.HasPrefix(src, "//") {
			src = "https:" + src
		}
		return src
	}
	for _, class := range thumbnailClasses {
		if anchor.HasClass(class) {
			return class
		}
	}
	return ""
}

func buildPageURL(base, scope string, count int) (string, error) {
	parsed, err := url.Parse(base + "/r/" + url.PathEscape(scope) + "/new/")
	if err != nil {
		return "", fmt.Errorf("invalid listing url for %s: %w", scope, err)
	}

	query := parsed.Query()
	if count > 0 {
		query.Set("limit", strconv.Itoa(count))
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
