package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"SubmissionRelay/internal/domain"
	"SubmissionRelay/internal/ports"
)

const submissionsTable = "submissions"

var submissionColumns = []string{
	"external_id",
	"scope",
	"title",
	"author",
	"created_at",
	"category",
	"permalink",
	"thumbnail_url",
	"is_daily",
	"message_id",
	"state",
}

// SQLRepository persists submissions in sqlite or Postgres.
type SQLRepository struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

var _ ports.SubmissionStore = (*SQLRepository)(nil)

// NewSQLRepository wires a sql.DB; placeholders select the SQL dialect.
func NewSQLRepository(db *sql.DB, placeholders sq.PlaceholderFormat) *SQLRepository {
	return &SQLRepository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(placeholders),
	}
}

// Migrate creates the schema if it does not exist yet.
func (r *SQLRepository) Migrate(ctx context.Context) error {
	schema, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, string(schema)); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Upsert inserts a new row in INITIAL or refreshes an existing one.
// A refresh only touches category and advances INITIAL to READY.
func (r *SQLRepository) Upsert(ctx context.Context, s domain.Submission) (domain.State, error) {
	query, args, err := r.builder.Insert(submissionsTable).
		Columns(submissionColumns...).
		Values(
			s.ExternalID,
			s.Scope,
			s.Title,
			s.Author,
			s.CreatedAt,
			s.Category,
			s.Permalink,
			s.ThumbnailURL,
			s.IsDaily,
			nil,
			int(domain.StateInitial),
		).
		Suffix(`ON CONFLICT (external_id) DO UPDATE
              SET category = excluded.category,
                  state = CASE WHEN submissions.state = ? THEN ? ELSE submissions.state END
              RETURNING state`, int(domain.StateInitial), int(domain.StateReady)).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build upsert: %w", err)
	}

	var state int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&state); err != nil {
		return 0, fmt.Errorf("upsert submission %s: %w", s.ExternalID, err)
	}

	return domain.State(state), nil
}

// QueryByState returns up to q.Limit rows in q.State, newest first.
func (r *SQLRepository) QueryByState(ctx context.Context, q domain.Query) ([]domain.Submission, error) {
	builder := r.builder.Select(submissionColumns...).
		From(submissionsTable).
		Where(sq.Eq{"state": int(q.State)}).
		OrderBy("created_at DESC", "external_id DESC")
	if q.Scope != "" {
		builder = builder.Where(sq.Eq{"scope": q.Scope})
	}
	if q.Limit > 0 {
		builder = builder.Limit(uint64(q.Limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query by state: %w", err)
	}

	var result []domain.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		result = append(result, s)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}

// MarkDelivered moves a READY row to DELIVERED and records the message id.
// Repeating the call on a DELIVERED row is a no-op.
func (r *SQLRepository) MarkDelivered(ctx context.Context, externalID string, messageID int64) error {
	query, args, err := r.builder.Update(submissionsTable).
		Set("state", int(domain.StateDelivered)).
		Set("message_id", messageID).
		Where(sq.Eq{"external_id": externalID, "state": int(domain.StateReady)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark delivered: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("mark delivered %s: %w", externalID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark delivered %s: %w", externalID, err)
	}
	if affected == 1 {
		return nil
	}

	current, err := r.Get(ctx, externalID)
	if err != nil {
		return err
	}
	if current.State == domain.StateDelivered {
		return nil
	}
	return &domain.InvalidStateError{ExternalID: externalID, From: current.State, To: domain.StateDelivered}
}

// Get loads a single row by external id.
func (r *SQLRepository) Get(ctx context.Context, externalID string) (domain.Submission, error) {
	query, args, err := r.builder.Select(submissionColumns...).
		From(submissionsTable).
		Where(sq.Eq{"external_id": externalID}).
		ToSql()
	if err != nil {
		return domain.Submission{}, fmt.Errorf("build get: %w", err)
	}

	s, err := scanSubmission(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Submission{}, &domain.NotFoundError{ExternalID: externalID}
	}
	return s, err
}

// LatestDaily returns the newest daily thread seen for scope.
func (r *SQLRepository) LatestDaily(ctx context.Context, scope string) (domain.Submission, error) {
	query, args, err := r.builder.Select(submissionColumns...).
		From(submissionsTable).
		Where(sq.Eq{"scope": scope, "is_daily": true}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return domain.Submission{}, fmt.Errorf("build latest daily: %w", err)
	}

	s, err := scanSubmission(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Submission{}, &domain.NotFoundError{ExternalID: "daily:" + scope}
	}
	return s, err
}

// CountByState tallies rows per state; an empty scope counts everything.
func (r *SQLRepository) CountByState(ctx context.Context, scope string) (domain.StateCounts, error) {
	builder := r.builder.Select("state", "COUNT(*)").
		From(submissionsTable).
		GroupBy("state")
	if scope != "" {
		builder = builder.Where(sq.Eq{"scope": scope})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build count: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count by state: %w", err)
	}
	defer rows.Close()

	counts := domain.StateCounts{}
	for rows.Next() {
		var state, n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[domain.State(state)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return counts, nil
}

// Close releases the underlying connection pool.
func (r *SQLRepository) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (domain.Submission, error) {
	var (
		s         domain.Submission
		messageID sql.NullInt64
		state     int
	)

	err := row.Scan(
		&s.ExternalID,
		&s.Scope,
		&s.Title,
		&s.Author,
		&s.CreatedAt,
		&s.Category,
		&s.Permalink,
		&s.ThumbnailURL,
		&s.IsDaily,
		&messageID,
		&state,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Submission{}, err
	}
	if err != nil {
		return domain.Submission{}, fmt.Errorf("scan submission: %w", err)
	}

	if messageID.Valid {
		id := messageID.Int64
		s.MessageID = &id
	}
	s.State = domain.State(state)

	return s, nil
}
