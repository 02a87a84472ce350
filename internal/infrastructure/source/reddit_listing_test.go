package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SubmissionRelay/internal/domain"
	"SubmissionRelay/internal/scanner"
)

const listingPage = `
<div id="siteTable">
  <div class="thing link promoted" data-fullname="t3_ad1" data-author="advertiser" data-promoted="true">
    <a class="title" href="/ad">Buy things</a>
  </div>
  <div class="thing link" data-fullname="t3_abc123" data-subreddit="newzealand" data-author="kiwi"
       data-timestamp="1700000000123" data-permalink="/r/newzealand/comments/abc123/fresh/">
    <a class="thumbnail" href="/r/newzealand/comments/abc123/fresh/"><img src="//b.thumbs.redditmedia.com/x.jpg"></a>
    <a class="title" href="/r/newzealand/comments/abc123/fresh/">Fresh story</a>
    <span class="linkflairlabel" title="Politics">Politics</span>
  </div>
  <div class="thing link" data-fullname="t3_def456" data-subreddit="newzealand" data-author="[deleted]"
       data-timestamp="1699999000000" data-permalink="/r/newzealand/comments/def456/older/">
    <a class="thumbnail self" href="/r/newzealand/comments/def456/older/"></a>
    <a class="title" href="/r/newzealand/comments/def456/older/"> Older story </a>
  </div>
</div>`

func TestBuildPageURL(t *testing.T) {
	t.Parallel()

	u, err := buildPageURL("https://old.reddit.com", "newzealand", 25)
	require.NoError(t, err)

	parsed, err := url.Parse(u)
	require.NoError(t, err)

	assert.Equal(t, "old.reddit.com", parsed.Host)
	assert.Equal(t, "/r/newzealand/new/", parsed.Path)
	assert.Equal(t, "25", parsed.Query().Get("limit"))
}

func TestParseThing(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(listingPage))
	require.NoError(t, err)

	entries := extractSubmissions(doc, "fallback", 0)
	require.Len(t, entries, 2)

	first := entries[0]
	assert.Equal(t, "abc123", first.ID)
	assert.Equal(t, "newzealand", first.Scope)
	assert.Equal(t, "Fresh story", first.Title)
	assert.Equal(t, "kiwi", first.Author)
	assert.Equal(t, int64(1700000000), first.CreatedAt)
	require.NotNil(t, first.Flair)
	assert.Equal(t, "Politics", *first.Flair)
	assert.Equal(t, "/r/newzealand/comments/abc123/fresh/", first.Permalink)
	assert.Equal(t, "https://b.thumbs.redditmedia.com/x.jpg", first.Thumbnail)

	second := entries[1]
	assert.Equal(t, "def456", second.ID)
	assert.Equal(t, "Older story", second.Title)
	assert.Empty(t, second.Author)
	assert.Nil(t, second.Flair)
	assert.Equal(t, "self", second.Thumbnail)
}

func TestRedditListingScan(t *testing.T) {
	t.Parallel()

	var gotPath, gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(listingPage))
	}))
	defer server.Close()

	sc := NewRedditListing(NewFetcher(server.Client(), "relay-test/1.0", 0), server.URL)
	assert.Equal(t, "html", sc.Name())

	entries, err := sc.Scan(context.Background(), scanner.Request{Scope: "newzealand", Count: 1})
	require.NoError(t, err)

	assert.Equal(t, "/r/newzealand/new/", gotPath)
	assert.Equal(t, "relay-test/1.0", gotUA)
	require.Len(t, entries, 1)
	assert.Equal(t, "abc123", entries[0].ID)
}

func TestRedditListingScanStatusError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	sc := NewRedditListing(NewFetcher(server.Client(), "", 0), server.URL)
	_, err := sc.Scan(context.Background(), scanner.Request{Scope: "private", Count: 10})
	require.Error(t, err)

	var fetchErr *domain.SourceFetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, "private", fetchErr.Scope)
	assert.Equal(t, http.StatusForbidden, fetchErr.Status)
}
