package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"SubmissionRelay/internal/domain"
	"SubmissionRelay/internal/ports"
	"SubmissionRelay/internal/scanner"
)

// StrategySource implements SubmissionSource via a registered scanner strategy.
type StrategySource struct {
	registry *scanner.Registry
	strategy string
	logger   *slog.Logger
}

var _ ports.SubmissionSource = (*StrategySource)(nil)

// NewStrategySource wires the scanner registry with the configured strategy name.
func NewStrategySource(reg *scanner.Registry, strategy string, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		strategy: strategy,
		logger:   log,
	}
}

// FetchNewest executes the configured scanner for one scope.
func (s *StrategySource) FetchNewest(ctx context.Context, scope string, count int) ([]domain.RawSubmission, error) {
	if s.registry == nil {
		return nil, &domain.SourceFetchError{Scope: scope, Err: errors.New("scanner registry is not configured")}
	}

	strategy, err := s.registry.Resolve(s.strategy)
	if err != nil {
		return nil, &domain.SourceFetchError{Scope: scope, Err: err}
	}

	s.debug("fetch newest", "scope", scope, "scanner", s.strategy, "count", count)
	results, err := strategy.Scan(ctx, scanner.Request{Scope: scope, Count: count})
	if err != nil {
		var fetchErr *domain.SourceFetchError
		if errors.As(err, &fetchErr) {
			return nil, err
		}
		return nil, &domain.SourceFetchError{Scope: scope, Err: fmt.Errorf("scan: %w", err)}
	}

	s.debug("scope produced submissions", "scope", scope, "count", len(results))
	return results, nil
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
