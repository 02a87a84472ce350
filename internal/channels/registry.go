package channels

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"SubmissionRelay/internal/ports"
)

// ErrUnknownScope is returned when assigning a scope the registry does not track.
var ErrUnknownScope = errors.New("unknown scope")

// Assignment binds a scope to one destination channel.
type Assignment struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// Entry is one row of the assignment table; Assignment is nil when unassigned.
type Entry struct {
	Scope      string      `json:"scope"`
	Assignment *Assignment `json:"assignment"`
}

// Registry is the scope to channel table, persisted as a YAML mapping where
// a null value marks an unassigned scope.
type Registry struct {
	path   string
	logger *slog.Logger

	mu     sync.Mutex
	order  []string
	table  map[string]*Assignment
	cycle  []string
	cursor int
}

var _ ports.ScopeSelector = (*Registry)(nil)

// NewRegistry tracks the given scopes, all unassigned, persisted at path.
// An empty path keeps the table in memory only.
func NewRegistry(path string, scopes []string, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	r := &Registry{path: path, logger: log, table: map[string]*Assignment{}}
	for _, scope := range scopes {
		r.track(normalizeScope(scope))
	}
	return r
}

func normalizeScope(scope string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(scope), "r/"))
}

func (r *Registry) track(scope string) {
	if scope == "" {
		return
	}
	if _, ok := r.table[scope]; ok {
		return
	}
	r.order = append(r.order, scope)
	r.table[scope] = nil
}

// Load merges the persisted table over the tracked scopes. Scopes absent from
// the file become unassigned. A missing file is not an error.
func (r *Registry) Load() error {
	if r.path == "" {
		return nil
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.logger.Info("assignment file not found", "path", r.path)
			return nil
		}
		return fmt.Errorf("read assignments: %w", err)
	}

	parsed := map[string]*Assignment{}
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse assignments %s: %w", r.path, err)
	}

	loaded := make([]string, 0, len(parsed))
	for scope := range parsed {
		loaded = append(loaded, scope)
	}
	sort.Strings(loaded)

	r.mu.Lock()
	defer r.mu.Unlock()

	present := make(map[string]bool, len(loaded))
	for _, raw := range loaded {
		present[normalizeScope(raw)] = true
	}
	// the file is authoritative: scopes dropped from it lose their channel
	for scope := range r.table {
		if !present[scope] {
			r.table[scope] = nil
		}
	}

	for _, raw := range loaded {
		scope := normalizeScope(raw)
		r.track(scope)
		if a := parsed[raw]; a != nil && strings.TrimSpace(a.ID) != "" {
			copied := *a
			r.table[scope] = &copied
		} else {
			r.table[scope] = nil
		}
	}
	return nil
}

// Save writes the table to disk via a temporary file and rename.
func (r *Registry) Save() error {
	if r.path == "" {
		return nil
	}

	r.mu.Lock()
	snapshot := make(map[string]*Assignment, len(r.table))
	for scope, a := range r.table {
		snapshot[scope] = a
	}
	r.mu.Unlock()

	data, err := yaml.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode assignments: %w", err)
	}

	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, ".assignments-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write assignments: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close assignments: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace assignments: %w", err)
	}
	return nil
}

// Assign binds scope to a channel, replacing any previous binding.
func (r *Registry) Assign(scope string, a Assignment) error {
	scope = normalizeScope(scope)
	if strings.TrimSpace(a.ID) == "" {
		return errors.New("channel id is empty")
	}

	r.mu.Lock()
	if _, ok := r.table[scope]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("assign %s: %w", scope, ErrUnknownScope)
	}
	r.table[scope] = &a
	r.mu.Unlock()

	r.logger.Info("scope assigned", "scope", scope, "channel", a.ID)
	return r.Save()
}

// Unassign clears the scope bound to channelID and reports which one it was.
func (r *Registry) Unassign(channelID string) (string, bool, error) {
	r.mu.Lock()
	scope, ok := r.findLocked(channelID)
	if ok {
		r.table[scope] = nil
	}
	r.mu.Unlock()

	if !ok {
		return "", false, nil
	}
	r.logger.Info("scope unassigned", "scope", scope, "channel", channelID)
	return scope, true, r.Save()
}

// FindByChannel returns the scope bound to channelID.
func (r *Registry) FindByChannel(channelID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findLocked(channelID)
}

func (r *Registry) findLocked(channelID string) (string, bool) {
	for _, scope := range r.order {
		if a := r.table[scope]; a != nil && a.ID == channelID {
			return scope, true
		}
	}
	return "", false
}

// Lookup returns the assignment of scope.
func (r *Registry) Lookup(scope string) (Assignment, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.table[normalizeScope(scope)]
	if a == nil {
		return Assignment{}, false
	}
	return *a, true
}

// Entries lists every tracked scope sorted by name.
func (r *Registry) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, 0, len(r.table))
	for scope, a := range r.table {
		e := Entry{Scope: scope}
		if a != nil {
			copied := *a
			e.Assignment = &copied
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Scope < out[j].Scope })
	return out
}

// Next yields assigned scopes round-robin. Once a pass is exhausted the next
// pass is rebuilt from the current table; ok is false when nothing is assigned.
func (r *Registry) Next() (string, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for attempt := 0; attempt < 2; attempt++ {
		for r.cursor < len(r.cycle) {
			scope := r.cycle[r.cursor]
			r.cursor++
			if a := r.table[scope]; a != nil {
				return scope, a.ID, true
			}
			r.logger.Info("scope has not been assigned a channel", "scope", scope)
		}
		r.rebuildLocked()
	}
	return "", "", false
}

func (r *Registry) rebuildLocked() {
	r.cycle = r.cycle[:0]
	for _, scope := range r.order {
		if r.table[scope] != nil {
			r.cycle = append(r.cycle, scope)
		}
	}
	r.cursor = 0
}
