// Package postgres provides a PostgreSQL implementation of
// transport.ExecutionStore using pgx/v5 connection pooling.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/vizlaunch/pkg/api"
	"github.com/rhuss/vizlaunch/pkg/storage"
	"github.com/rhuss/vizlaunch/pkg/transport"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100

	selectColumns = `id, language, output_mode, status, exit_code, output,
		error, format, duration_ms, created_at, completed_at`
)

// Store is a PostgreSQL-backed ExecutionStore.
type Store struct {
	pool *pgxpool.Pool
}

var _ transport.ExecutionStore = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// SaveExecution inserts a new execution owned by the tenant in ctx.
func (s *Store) SaveExecution(ctx context.Context, exec *api.Execution) error {
	errorJSON, err := marshalError(exec.Error)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO executions (
			id, tenant_id, language, output_mode, status, exit_code, output,
			error, format, duration_ms, created_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		exec.ID, storage.GetTenant(ctx), exec.Language, exec.OutputMode, string(exec.Status),
		exec.ExitCode, exec.Output, errorJSON, string(exec.Format), exec.DurationMs,
		exec.CreatedAt, exec.CompletedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting execution: %w", err)
	}
	return nil
}

// UpdateExecution overwrites the mutable columns of an execution.
func (s *Store) UpdateExecution(ctx context.Context, exec *api.Execution) error {
	errorJSON, err := marshalError(exec.Error)
	if err != nil {
		return err
	}

	query := `
		UPDATE executions
		SET status = $2, exit_code = $3, output = $4, error = $5,
		    format = $6, duration_ms = $7, completed_at = $8
		WHERE id = $1`
	args := []any{
		exec.ID, string(exec.Status), exec.ExitCode, exec.Output, errorJSON,
		string(exec.Format), exec.DurationMs, exec.CompletedAt,
	}
	if tenantID := storage.GetTenant(ctx); tenantID != "" {
		query += " AND tenant_id = $9"
		args = append(args, tenantID)
	}

	result, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating execution: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetExecution retrieves an execution by ID, scoped by tenant.
func (s *Store) GetExecution(ctx context.Context, id string) (*api.Execution, error) {
	query := "SELECT " + selectColumns + " FROM executions WHERE id = $1"
	args := []any{id}
	if tenantID := storage.GetTenant(ctx); tenantID != "" {
		query += " AND tenant_id = $2"
		args = append(args, tenantID)
	}

	exec, err := scanExecution(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying execution: %w", err)
	}
	return exec, nil
}

// DeleteExecution removes an execution.
func (s *Store) DeleteExecution(ctx context.Context, id string) error {
	query := "DELETE FROM executions WHERE id = $1"
	args := []any{id}
	if tenantID := storage.GetTenant(ctx); tenantID != "" {
		query += " AND tenant_id = $2"
		args = append(args, tenantID)
	}

	result, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting execution: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListExecutions returns a page of executions with cursor pagination.
// A cursor that does not exist yields an empty page.
func (s *Store) ListExecutions(ctx context.Context, opts transport.ListOptions) (*transport.ExecutionList, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if tenantID := storage.GetTenant(ctx); tenantID != "" {
		where = append(where, "tenant_id = "+arg(tenantID))
	}
	if opts.Language != "" {
		where = append(where, "lower(language) = lower("+arg(opts.Language)+")")
	}
	if opts.Status != "" {
		where = append(where, "status = "+arg(string(opts.Status)))
	}

	asc := opts.Order == "asc"
	dir := "DESC"
	if asc {
		dir = "ASC"
	}

	// after moves forward in the chosen order, before moves backward.
	if opts.After != "" || opts.Before != "" {
		cursor, forward := opts.After, true
		if cursor == "" {
			cursor, forward = opts.Before, false
		}
		op := "<"
		if asc == forward {
			op = ">"
		}
		where = append(where, fmt.Sprintf(
			"(created_at, id) %s (SELECT created_at, id FROM executions WHERE id = %s)", op, arg(cursor)))
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := "SELECT " + selectColumns + " FROM executions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at %s, id %s LIMIT %s", dir, dir, arg(limit+1))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing executions: %w", err)
	}
	defer rows.Close()

	result := &transport.ExecutionList{Object: "list", Data: []*api.Execution{}}
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning execution: %w", err)
		}
		result.Data = append(result.Data, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing executions: %w", err)
	}

	if len(result.Data) > limit {
		result.Data = result.Data[:limit]
		result.HasMore = true
	}
	if n := len(result.Data); n > 0 {
		result.FirstID = result.Data[0].ID
		result.LastID = result.Data[n-1].ID
	}
	return result, nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanExecution(row pgx.Row) (*api.Execution, error) {
	var (
		exec      api.Execution
		status    string
		format    string
		errorJSON []byte
	)
	err := row.Scan(
		&exec.ID, &exec.Language, &exec.OutputMode, &status, &exec.ExitCode, &exec.Output,
		&errorJSON, &format, &exec.DurationMs, &exec.CreatedAt, &exec.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	exec.Object = "execution"
	exec.Status = api.ExecutionStatus(status)
	exec.Format = api.VisualizationFormat(format)
	if len(errorJSON) > 0 {
		var apiErr api.APIError
		if err := json.Unmarshal(errorJSON, &apiErr); err == nil {
			exec.Error = &apiErr
		}
	}
	return &exec, nil
}

// marshalError encodes an APIError for the nullable JSONB column.
func marshalError(e *api.APIError) ([]byte, error) {
	if e == nil {
		return nil, nil
	}
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshaling error: %w", err)
	}
	return b, nil
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
