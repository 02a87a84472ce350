package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SubmissionRelay/internal/domain"
	"SubmissionRelay/internal/scanner"
)

const listingJSON = `{
  "kind": "Listing",
  "data": {
    "children": [
      {"kind": "t3", "data": {
        "id": "n1", "subreddit": "newzealand", "title": "Newest & best", "author": "kiwi",
        "created_utc": 1700000100.0, "link_flair_text": "News",
        "permalink": "/r/newzealand/comments/n1/newest/", "thumbnail": "https://example.com/n1.jpg"}},
      {"kind": "t3", "data": {
        "id": "n2", "subreddit": "newzealand", "title": "Second", "author": "[deleted]",
        "created_utc": 1700000000.0, "link_flair_text": null,
        "permalink": "/r/newzealand/comments/n2/second/", "thumbnail": "self"}},
      {"kind": "t3", "data": {
        "id": "n3", "subreddit": "newzealand", "title": "Third", "author": "tui",
        "created_utc": 1699999000.0, "permalink": "/r/newzealand/comments/n3/third/", "thumbnail": ""}}
    ]
  }
}`

func TestRedditJSONScan(t *testing.T) {
	t.Parallel()

	var gotPath, gotLimit, gotRaw string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotLimit = r.URL.Query().Get("limit")
		gotRaw = r.URL.Query().Get("raw_json")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(listingJSON))
	}))
	defer server.Close()

	sc := NewRedditJSON(NewFetcher(server.Client(), "relay-test/1.0", 0), server.URL)
	assert.Equal(t, "json", sc.Name())

	entries, err := sc.Scan(context.Background(), scanner.Request{Scope: "newzealand", Count: 2})
	require.NoError(t, err)

	assert.Equal(t, "/r/newzealand/new.json", gotPath)
	assert.Equal(t, "2", gotLimit)
	assert.Equal(t, "1", gotRaw)

	require.Len(t, entries, 2)
	assert.Equal(t, "n1", entries[0].ID)
	assert.Equal(t, "Newest & best", entries[0].Title)
	assert.Equal(t, int64(1700000100), entries[0].CreatedAt)
	require.NotNil(t, entries[0].Flair)
	assert.Equal(t, "News", *entries[0].Flair)

	assert.Equal(t, "n2", entries[1].ID)
	assert.Empty(t, entries[1].Author)
	assert.Nil(t, entries[1].Flair)
	assert.Equal(t, "self", entries[1].Thumbnail)
}

func TestRedditJSONScanMalformedBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": [`))
	}))
	defer server.Close()

	sc := NewRedditJSON(NewFetcher(server.Client(), "", 0), server.URL)
	_, err := sc.Scan(context.Background(), scanner.Request{Scope: "newzealand", Count: 5})

	var fetchErr *domain.SourceFetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, "newzealand", fetchErr.Scope)
	assert.Zero(t, fetchErr.Status)
}

func TestStrategySourceFetchNewest(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(listingJSON))
	}))
	defer server.Close()

	reg := scanner.NewRegistry()
	reg.Register(NewRedditJSON(NewFetcher(server.Client(), "", 0), server.URL))

	src := NewStrategySource(reg, "json", nil)
	entries, err := src.FetchNewest(context.Background(), "newzealand", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	_, err = NewStrategySource(reg, "html", nil).FetchNewest(context.Background(), "newzealand", 10)
	var fetchErr *domain.SourceFetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Contains(t, fetchErr.Error(), "not registered")
}
