package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// APIKey mirrors the api_keys table row.
type APIKey struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	KeyHash     string
	KeyPrefix   string
	Role        string
	Scopes      []string
	CreatedAt   time.Time
	ExpiresAt   *time.Time
	LastUsedAt  *time.Time
	RevokedAt   *time.Time
}

type CreateAPIKeyParams struct {
	TenantID  uuid.UUID
	KeyHash   string
	KeyPrefix string
	Role      string
	Scopes    []string
	ExpiresAt *time.Time
}

func (q *Queries) CreateAPIKey(ctx context.Context, arg CreateAPIKeyParams) (APIKey, error) {
	var k APIKey
	row := q.db.QueryRow(ctx, `
		INSERT INTO api_keys (id, tenant_id, key_hash, key_prefix, role, scopes, created_at, expires_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, now(), $6)
		RETURNING id, tenant_id, key_hash, key_prefix, role, scopes, created_at, expires_at, last_used_at, revoked_at
	`, arg.TenantID, arg.KeyHash, arg.KeyPrefix, arg.Role, arg.Scopes, arg.ExpiresAt)
	if err := scanAPIKey(row, &k); err != nil {
		return APIKey{}, fmt.Errorf("inserting api key: %w", err)
	}
	return k, nil
}

// GetAPIKeyByHash looks up a live (non-revoked) key by its hash.
func (q *Queries) GetAPIKeyByHash(ctx context.Context, hash string) (APIKey, error) {
	var k APIKey
	row := q.db.QueryRow(ctx, `
		SELECT id, tenant_id, key_hash, key_prefix, role, scopes, created_at, expires_at, last_used_at, revoked_at
		FROM api_keys WHERE key_hash = $1 AND revoked_at IS NULL
	`, hash)
	if err := scanAPIKey(row, &k); err != nil {
		return APIKey{}, fmt.Errorf("querying api key by hash: %w", err)
	}
	return k, nil
}

func (q *Queries) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `UPDATE api_keys SET last_used_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("updating api key last_used_at: %w", err)
	}
	return nil
}

func (q *Queries) RevokeAPIKey(ctx context.Context, tenantID, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `
		UPDATE api_keys SET revoked_at = now() WHERE tenant_id = $1 AND id = $2 AND revoked_at IS NULL
	`, tenantID, id)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	return nil
}

func (q *Queries) ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]APIKey, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, tenant_id, key_hash, key_prefix, role, scopes, created_at, expires_at, last_used_at, revoked_at
		FROM api_keys WHERE tenant_id = $1 ORDER BY created_at DESC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()
	var out []APIKey
	for rows.Next() {
		var k APIKey
		if err := scanAPIKey(rows, &k); err != nil {
			return nil, fmt.Errorf("scanning api key row: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func scanAPIKey(row interface{ Scan(dest ...any) error }, k *APIKey) error {
	return row.Scan(&k.ID, &k.TenantID, &k.KeyHash, &k.KeyPrefix, &k.Role, &k.Scopes,
		&k.CreatedAt, &k.ExpiresAt, &k.LastUsedAt, &k.RevokedAt)
}
