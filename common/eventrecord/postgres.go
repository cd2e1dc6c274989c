package eventrecord

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gagps/ecommerce-cx/common/audit"
	"github.com/gagps/ecommerce-cx/common/database"
)

// PostgresStore keeps records in the event_records table and signs each one.
type PostgresStore struct {
	pool   *pgxpool.Pool
	signer *audit.Signer
	logger *slog.Logger
}

// NewPostgresStore creates a store over pool.
func NewPostgresStore(pool *pgxpool.Pool, signer *audit.Signer, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{
		pool:   pool,
		signer: signer,
		logger: logger.With(slog.String("component", "eventrecord")),
	}
}

// signedPayload is the byte form covered by the signature.
func signedPayload(r *Record) ([]byte, error) {
	return json.Marshal(struct {
		Email     string         `json:"email"`
		RequestID string         `json:"requestId"`
		Info      map[string]any `json:"info"`
	}{r.Email, r.RequestID, r.Info})
}

// Put inserts or replaces r, filling in its signature.
func (s *PostgresStore) Put(ctx context.Context, r *Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	// timestamptz keeps microseconds
	r.CreatedAt = r.CreatedAt.UTC().Truncate(time.Microsecond)
	r.ExpiresAt = r.ExpiresAt.UTC().Truncate(time.Microsecond)

	payload, err := signedPayload(r)
	if err != nil {
		return fmt.Errorf("marshal record payload: %w", err)
	}
	info, err := json.Marshal(r.Info)
	if err != nil {
		return fmt.Errorf("marshal record info: %w", err)
	}
	r.Signature = s.signer.Sign(r.PK, r.SK, r.EventType, r.CreatedAt, payload)

	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	_, err = s.pool.Exec(ctx, `
		INSERT INTO event_records (pk, sk, event_type, email, request_id, info, signature, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (pk, sk) DO UPDATE SET
			event_type = EXCLUDED.event_type,
			email = EXCLUDED.email,
			request_id = EXCLUDED.request_id,
			info = EXCLUDED.info,
			signature = EXCLUDED.signature,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at`,
		r.PK, r.SK, r.EventType, r.Email, r.RequestID, info, r.Signature, r.CreatedAt, r.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert event record %s/%s: %w", r.PK, r.SK, err)
	}
	return nil
}

// QueryByEmail implements Store. Records whose signature does not verify are
// dropped and logged.
func (s *PostgresStore) QueryByEmail(ctx context.Context, email, skPrefix string) ([]*Record, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT pk, sk, event_type, email, request_id, info, signature, created_at, expires_at
		FROM event_records
		WHERE email = $1 AND sk LIKE $2 || '%' AND expires_at > now()
		ORDER BY sk DESC`, email, skPrefix)
	if err != nil {
		return nil, fmt.Errorf("query event records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var (
			r    Record
			info []byte
		)
		if err := rows.Scan(&r.PK, &r.SK, &r.EventType, &r.Email, &r.RequestID, &info, &r.Signature, &r.CreatedAt, &r.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan event record: %w", err)
		}
		if err := json.Unmarshal(info, &r.Info); err != nil {
			return nil, fmt.Errorf("decode event record info: %w", err)
		}
		if !s.Verify(&r) {
			s.logger.WarnContext(ctx, "event record signature mismatch",
				slog.String("pk", r.PK), slog.String("sk", r.SK))
			continue
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}

// Verify checks r's signature.
func (s *PostgresStore) Verify(r *Record) bool {
	payload, err := signedPayload(r)
	if err != nil {
		return false
	}
	return s.signer.Verify(r.PK, r.SK, r.EventType, r.CreatedAt, payload, r.Signature)
}

// PurgeExpired implements Store.
func (s *PostgresStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := database.BulkContext(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM event_records WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge expired event records: %w", err)
	}
	return tag.RowsAffected(), nil
}
