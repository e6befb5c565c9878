package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aegis-secops/aegis/internal/scoring"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresStore persists mitigation records to PostgreSQL. Actions and
// results are stored as JSONB so the full audit detail survives round
// trips without schema churn.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// Insert implements Store.
func (s *PostgresStore) Insert(ctx context.Context, r *Record) error {
	actions, err := json.Marshal(r.Actions)
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}
	results, err := json.Marshal(r.Results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO mitigations (threat_id, threat_type, risk_score, severity, actions, results, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ThreatID, r.ThreatType, r.RiskScore, string(r.Severity),
		actions, results, r.Status, r.Timestamp,
	); err != nil {
		return fmt.Errorf("insert mitigation record: %w", err)
	}

	s.logger.Debug("mitigation record persisted",
		zap.String("threat_id", r.ThreatID),
		zap.String("severity", string(r.Severity)),
	)
	return nil
}

// Query implements Store. Filters are conjunctive and results come back
// newest first.
func (s *PostgresStore) Query(ctx context.Context, f Filter) ([]*Record, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultHistoryLimit
	}

	query := `SELECT threat_id, threat_type, risk_score, severity, actions, results, status, created_at
	          FROM mitigations`
	var (
		clauses []string
		args    []any
	)
	if f.ThreatType != "" {
		args = append(args, f.ThreatType)
		clauses = append(clauses, fmt.Sprintf("threat_type = $%d", len(args)))
	}
	if f.Severity != "" {
		args = append(args, string(f.Severity))
		clauses = append(clauses, fmt.Sprintf("severity = $%d", len(args)))
	}
	for i, c := range clauses {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	args = append(args, f.Limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query mitigations: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var (
			r        Record
			severity string
			actions  []byte
			results  []byte
		)
		if err := rows.Scan(
			&r.ThreatID, &r.ThreatType, &r.RiskScore, &severity,
			&actions, &results, &r.Status, &r.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan mitigation row: %w", err)
		}
		r.Severity = scoring.Severity(severity)
		if err := json.Unmarshal(actions, &r.Actions); err != nil {
			return nil, fmt.Errorf("unmarshal actions: %w", err)
		}
		if err := json.Unmarshal(results, &r.Results); err != nil {
			return nil, fmt.Errorf("unmarshal results: %w", err)
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}
