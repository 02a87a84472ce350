package storage

import (
	"context"
	"sort"
	"sync"

	"SubmissionRelay/internal/domain"
	"SubmissionRelay/internal/ports"
)

// MemoryRepository is a process-local store with the same semantics as SQLRepository.
type MemoryRepository struct {
	mu    sync.Mutex
	items map[string]domain.Submission
}

var _ ports.SubmissionStore = (*MemoryRepository)(nil)

// NewMemoryRepository builds an empty store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: map[string]domain.Submission{}}
}

func (m *MemoryRepository) Upsert(ctx context.Context, s domain.Submission) (domain.State, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.items[s.ExternalID]
	if !ok {
		s.State = domain.StateInitial
		s.MessageID = nil
		m.items[s.ExternalID] = s
		return s.State, nil
	}

	existing.Category = s.Category
	if existing.State == domain.StateInitial {
		existing.State = domain.StateReady
	}
	m.items[s.ExternalID] = existing
	return existing.State, nil
}

func (m *MemoryRepository) QueryByState(ctx context.Context, q domain.Query) ([]domain.Submission, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []domain.Submission
	for _, s := range m.items {
		if s.State != q.State {
			continue
		}
		if q.Scope != "" && s.Scope != q.Scope {
			continue
		}
		result = append(result, cloneSubmission(s))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt > result[j].CreatedAt
		}
		return result[i].ExternalID > result[j].ExternalID
	})

	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result, nil
}

func (m *MemoryRepository) MarkDelivered(ctx context.Context, externalID string, messageID int64) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.items[externalID]
	if !ok {
		return &domain.NotFoundError{ExternalID: externalID}
	}

	switch s.State {
	case domain.StateDelivered:
		return nil
	case domain.StateReady:
		id := messageID
		s.MessageID = &id
		s.State = domain.StateDelivered
		m.items[externalID] = s
		return nil
	default:
		return &domain.InvalidStateError{ExternalID: externalID, From: s.State, To: domain.StateDelivered}
	}
}

func (m *MemoryRepository) Get(ctx context.Context, externalID string) (domain.Submission, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.items[externalID]
	if !ok {
		return domain.Submission{}, &domain.NotFoundError{ExternalID: externalID}
	}
	return cloneSubmission(s), nil
}

func (m *MemoryRepository) LatestDaily(ctx context.Context, scope string) (domain.Submission, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		latest domain.Submission
		found  bool
	)
	for _, s := range m.items {
		if !s.IsDaily || s.Scope != scope {
			continue
		}
		if !found || s.CreatedAt > latest.CreatedAt {
			latest, found = s, true
		}
	}
	if !found {
		return domain.Submission{}, &domain.NotFoundError{ExternalID: "daily:" + scope}
	}
	return cloneSubmission(latest), nil
}

func (m *MemoryRepository) CountByState(ctx context.Context, scope string) (domain.StateCounts, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := domain.StateCounts{}
	for _, s := range m.items {
		if scope != "" && s.Scope != scope {
			continue
		}
		counts[s.State]++
	}
	return counts, nil
}

func (m *MemoryRepository) Close() error { return nil }

func cloneSubmission(s domain.Submission) domain.Submission {
	if s.MessageID != nil {
		id := *s.MessageID
		s.MessageID = &id
	}
	return s
}
