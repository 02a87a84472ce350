package webhook

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"SubmissionRelay/internal/ports"
)

// Resolver maps channel identifiers onto webhook destinations. A channel id
// of the form "<id>/<token>" addresses its own webhook; any other id uses the
// default webhook.
type Resolver struct {
	client       *http.Client
	baseURL      string
	defaultID    string
	defaultToken string

	mu    sync.Mutex
	cache map[string]*Destination
}

var _ ports.DestinationResolver = (*Resolver)(nil)

// NewResolver wires the shared client and default credentials.
func NewResolver(client *http.Client, baseURL, defaultID, defaultToken string) *Resolver {
	return &Resolver{
		client:       client,
		baseURL:      baseURL,
		defaultID:    defaultID,
		defaultToken: defaultToken,
		cache:        map[string]*Destination{},
	}
}

// Resolve returns the destination for channelID.
func (r *Resolver) Resolve(channelID string) (ports.Destination, error) {
	id, token := r.defaultID, r.defaultToken
	if own, secret, ok := strings.Cut(channelID, "/"); ok {
		id, token = own, secret
	}
	key := id + "/" + token

	r.mu.Lock()
	defer r.mu.Unlock()

	if dest, ok := r.cache[key]; ok {
		return dest, nil
	}
	dest, err := NewDestination(r.client, r.baseURL, id, token)
	if err != nil {
		return nil, fmt.Errorf("resolve channel %s: %w", channelID, err)
	}
	r.cache[key] = dest
	return dest, nil
}
