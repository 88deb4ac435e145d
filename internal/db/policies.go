package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Policy mirrors the policies table row: a pure rule (condition ->
// action) evaluated by pkg/policy against scan results.
type Policy struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	Name       string
	Condition  json.RawMessage
	ActionKind string
	ActionArgs json.RawMessage
	Enabled    bool
	CreatedAt  time.Time
}

type UpsertPolicyParams struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	Name       string
	Condition  json.RawMessage
	ActionKind string
	ActionArgs json.RawMessage
	Enabled    bool
}

func (q *Queries) UpsertPolicy(ctx context.Context, arg UpsertPolicyParams) (Policy, error) {
	id := arg.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	var p Policy
	row := q.db.QueryRow(ctx, `
		INSERT INTO policies (id, tenant_id, name, condition, action_kind, action_args, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			condition = EXCLUDED.condition,
			action_kind = EXCLUDED.action_kind,
			action_args = EXCLUDED.action_args,
			enabled = EXCLUDED.enabled
		RETURNING id, tenant_id, name, condition, action_kind, action_args, enabled, created_at
	`, id, arg.TenantID, arg.Name, arg.Condition, arg.ActionKind, arg.ActionArgs, arg.Enabled)
	if err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.Condition, &p.ActionKind, &p.ActionArgs, &p.Enabled, &p.CreatedAt); err != nil {
		return Policy{}, fmt.Errorf("upserting policy: %w", err)
	}
	return p, nil
}

func (q *Queries) ListEnabledPolicies(ctx context.Context, tenantID uuid.UUID) ([]Policy, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, tenant_id, name, condition, action_kind, action_args, enabled, created_at
		FROM policies WHERE tenant_id = $1 AND enabled = true
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing enabled policies: %w", err)
	}
	defer rows.Close()
	var out []Policy
	for rows.Next() {
		var p Policy
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.Condition, &p.ActionKind, &p.ActionArgs, &p.Enabled, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning policy row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q *Queries) DeletePolicy(ctx context.Context, tenantID, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM policies WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("deleting policy: %w", err)
	}
	return nil
}

// RemediationAction mirrors the remediation_actions table row: actions
// triggered by policy matches (quarantine, notify, label, delete).
type RemediationAction struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	ScanResultID uuid.UUID
	Kind         string
	Status       string
	Detail       json.RawMessage
	CreatedAt    time.Time
	AppliedAt    *time.Time
}

type CreateRemediationActionParams struct {
	TenantID     uuid.UUID
	ScanResultID uuid.UUID
	Kind         string
	Detail       json.RawMessage
}

func (q *Queries) CreateRemediationAction(ctx context.Context, arg CreateRemediationActionParams) (RemediationAction, error) {
	var a RemediationAction
	row := q.db.QueryRow(ctx, `
		INSERT INTO remediation_actions (id, tenant_id, scan_result_id, kind, status, detail, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, 'pending', $4, now())
		RETURNING id, tenant_id, scan_result_id, kind, status, detail, created_at, applied_at
	`, arg.TenantID, arg.ScanResultID, arg.Kind, arg.Detail)
	if err := row.Scan(&a.ID, &a.TenantID, &a.ScanResultID, &a.Kind, &a.Status, &a.Detail, &a.CreatedAt, &a.AppliedAt); err != nil {
		return RemediationAction{}, fmt.Errorf("inserting remediation action: %w", err)
	}
	return a, nil
}

// GetRemediationAction fetches one pending action by ID, used by the
// remediation dispatcher after it's popped off the queue as a
// "remediate" task payload.
func (q *Queries) GetRemediationAction(ctx context.Context, tenantID, id uuid.UUID) (RemediationAction, error) {
	var a RemediationAction
	row := q.db.QueryRow(ctx, `
		SELECT id, tenant_id, scan_result_id, kind, status, detail, created_at, applied_at
		FROM remediation_actions WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)
	if err := row.Scan(&a.ID, &a.TenantID, &a.ScanResultID, &a.Kind, &a.Status, &a.Detail, &a.CreatedAt, &a.AppliedAt); err != nil {
		return RemediationAction{}, fmt.Errorf("fetching remediation action: %w", err)
	}
	return a, nil
}

func (q *Queries) CompleteRemediationAction(ctx context.Context, id uuid.UUID, status string, detail json.RawMessage) error {
	_, err := q.db.Exec(ctx, `
		UPDATE remediation_actions SET status = $2, detail = $3, applied_at = now() WHERE id = $1
	`, id, status, detail)
	if err != nil {
		return fmt.Errorf("completing remediation action: %w", err)
	}
	return nil
}

// ListStalledRemediationActions returns pending actions older than
// cutoff, whose "remediate" queue job was presumably lost (a worker
// crash between row creation and enqueue, or a job that exhausted its
// retries). The label-sync loop re-enqueues them.
func (q *Queries) ListStalledRemediationActions(ctx context.Context, cutoff time.Time, limit int32) ([]RemediationAction, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, tenant_id, scan_result_id, kind, status, detail, created_at, applied_at
		FROM remediation_actions
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("listing stalled remediation actions: %w", err)
	}
	defer rows.Close()
	var out []RemediationAction
	for rows.Next() {
		var a RemediationAction
		if err := rows.Scan(&a.ID, &a.TenantID, &a.ScanResultID, &a.Kind, &a.Status, &a.Detail, &a.CreatedAt, &a.AppliedAt); err != nil {
			return nil, fmt.Errorf("scanning remediation action row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// RemediationActionsSince supports the catalog writer's incremental
// flush across all tenants, ordered so the cursor can advance to the
// last row's created_at.
func (q *Queries) RemediationActionsSince(ctx context.Context, since time.Time, limit int32) ([]RemediationAction, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, tenant_id, scan_result_id, kind, status, detail, created_at, applied_at
		FROM remediation_actions
		WHERE created_at > $1
		ORDER BY created_at ASC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("listing remediation actions since cursor: %w", err)
	}
	defer rows.Close()
	var out []RemediationAction
	for rows.Next() {
		var a RemediationAction
		if err := rows.Scan(&a.ID, &a.TenantID, &a.ScanResultID, &a.Kind, &a.Status, &a.Detail, &a.CreatedAt, &a.AppliedAt); err != nil {
			return nil, fmt.Errorf("scanning remediation action row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (q *Queries) ListRemediationActions(ctx context.Context, tenantID uuid.UUID, limit, offset int32) ([]RemediationAction, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, tenant_id, scan_result_id, kind, status, detail, created_at, applied_at
		FROM remediation_actions WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing remediation actions: %w", err)
	}
	defer rows.Close()
	var out []RemediationAction
	for rows.Next() {
		var a RemediationAction
		if err := rows.Scan(&a.ID, &a.TenantID, &a.ScanResultID, &a.Kind, &a.Status, &a.Detail, &a.CreatedAt, &a.AppliedAt); err != nil {
			return nil, fmt.Errorf("scanning remediation action row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
