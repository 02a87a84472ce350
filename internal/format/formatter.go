package format

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"SubmissionRelay/internal/domain"
)

const (
	// MaxTitleRunes is the destination's embed title limit.
	MaxTitleRunes = 256
	ellipsis      = "..."
)

// Options configures the colour table and link templates.
type Options struct {
	SiteURL       string
	Colours       map[string]string // category -> hex colour
	DefaultColour string
}

// Formatter maps submissions to destination payloads.
type Formatter struct {
	siteURL       string
	colours       map[string]int
	defaultColour int
}

// New parses the hex colour table once; keys are normalised like lookups.
func New(opts Options) (*Formatter, error) {
	def, err := parseHex(opts.DefaultColour)
	if err != nil {
		return nil, fmt.Errorf("default colour: %w", err)
	}

	colours := make(map[string]int, len(opts.Colours))
	for category, hex := range opts.Colours {
		v, err := parseHex(hex)
		if err != nil {
			return nil, fmt.Errorf("colour for %q: %w", category, err)
		}
		colours[NormalizeCategory(category)] = v
	}

	return &Formatter{
		siteURL:       strings.TrimSuffix(opts.SiteURL, "/"),
		colours:       colours,
		defaultColour: def,
	}, nil
}

// Format renders one submission.
func (f *Formatter) Format(s domain.Submission) domain.Payload {
	return domain.Payload{
		Title:        Truncate(fmt.Sprintf("[%s] %s", s.Category, s.Title), MaxTitleRunes),
		URL:          f.siteURL + s.Permalink,
		Color:        f.Colour(s.Category),
		Timestamp:    s.Created().Format(time.RFC3339),
		ThumbnailURL: s.ThumbnailURL,
		AuthorName:   s.Author,
		AuthorURL:    fmt.Sprintf("%s/u/%s", f.siteURL, s.Author),
	}
}

// Colour resolves a category, falling back to the default colour.
func (f *Formatter) Colour(category string) int {
	if v, ok := f.colours[NormalizeCategory(category)]; ok {
		return v
	}
	return f.defaultColour
}

// NormalizeCategory lower-cases and strips diacritics ("Māoritanga" -> "maoritanga").
func NormalizeCategory(category string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, category)
	if err != nil {
		out = category
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// Truncate cuts s to max runes, ending in an ellipsis when it had to cut.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	keep := max - utf8.RuneCountInString(ellipsis)
	if keep < 0 {
		keep = 0
	}
	r := []rune(s)
	return string(r[:keep]) + ellipsis
}

func parseHex(v string) (int, error) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "#")
	n, err := strconv.ParseInt(v, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid hex colour %q: %w", v, err)
	}
	return int(n), nil
}
