// Package remediate consumes pending remediation_actions rows created by
// pkg/scan's policy evaluation and carries out the action a matched
// policy requested: applying a sensitivity label, quarantining a file,
// or notifying an owner. It is the consumer side of the "remediate"
// queue task type; pkg/scan only creates the row and enqueues the job.
package remediate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/chillbot-io/openlabels/internal/db"
	"github.com/chillbot-io/openlabels/internal/telemetry"
	"github.com/chillbot-io/openlabels/pkg/apierrors"
	"github.com/chillbot-io/openlabels/pkg/label"
	"github.com/chillbot-io/openlabels/pkg/queue"
)

// Registrar is the subset of pkg/queue.Dispatcher the dispatcher needs.
type Registrar interface {
	Register(taskType string, h queue.Handler)
}

// Dispatcher applies pending remediation actions.
type Dispatcher struct {
	q          *db.Queries
	applicator label.Applicator
	logger     *slog.Logger
}

// New builds a Dispatcher and registers its "remediate" task handler on
// dispatch. applicator may be nil to use label.New() (the platform
// default, which always returns label.ErrUnsupported off Windows).
func New(q *db.Queries, dispatch Registrar, applicator label.Applicator, logger *slog.Logger) *Dispatcher {
	if applicator == nil {
		applicator = label.New()
	}
	d := &Dispatcher{q: q, applicator: applicator, logger: logger}
	dispatch.Register("remediate", d.handle)
	return d
}

// actionPayload mirrors pkg/scan's remediateActionPayload; the two
// packages don't import each other, so each defines its own matching
// JSON shape.
type actionPayload struct {
	TenantID uuid.UUID `json:"tenant_id"`
	ActionID uuid.UUID `json:"action_id"`
}

// labelActionArgs is the expected shape of a "label" action's Detail
// column: the label name a policy wants applied.
type labelActionArgs struct {
	LabelName string `json:"label_name"`
	Reason    string `json:"reason"`
}

func (d *Dispatcher) handle(ctx context.Context, job db.QueuedJob) error {
	var p actionPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return apierrors.Permanent("decoding remediation action payload", err)
	}

	action, err := d.q.GetRemediationAction(ctx, p.TenantID, p.ActionID)
	if err != nil {
		return fmt.Errorf("loading remediation action: %w", err)
	}
	if action.Status != "pending" {
		// Already completed by a prior delivery of this job; nothing to
		// do. The queue's at-least-once delivery means this is routine,
		// not an error.
		return nil
	}

	result, err := d.q.GetScanResult(ctx, p.TenantID, action.ScanResultID)
	if err != nil {
		return fmt.Errorf("loading scan result for remediation target: %w", err)
	}

	status, detail := d.apply(ctx, action, result.FilePath)
	telemetry.RemediationActionsTotal.WithLabelValues(action.Kind, status).Inc()

	if err := d.q.CompleteRemediationAction(ctx, action.ID, status, detail); err != nil {
		return fmt.Errorf("recording remediation outcome: %w", err)
	}
	return nil
}

// apply dispatches on the action's kind and returns the terminal status
// ("applied", "skipped", or "failed") plus a JSON detail blob describing
// the outcome. It never returns an error: every outcome, including an
// unsupported platform or an unknown kind, is recorded on the row rather
// than retried, since retrying cannot change the result.
func (d *Dispatcher) apply(_ context.Context, action db.RemediationAction, filePath string) (string, json.RawMessage) {
	switch action.Kind {
	case "label":
		return d.applyLabel(action, filePath)
	case "quarantine":
		return d.applyQuarantine(action, filePath)
	case "notify":
		return d.applyNotify(action, filePath)
	case "delete":
		return d.applyDelete(action, filePath)
	default:
		d.logger.Warn("unknown remediation action kind", "action_id", action.ID, "kind", action.Kind)
		return "failed", detailJSON(map[string]string{"error": "unknown action kind: " + action.Kind})
	}
}

func (d *Dispatcher) applyLabel(action db.RemediationAction, filePath string) (string, json.RawMessage) {
	var args labelActionArgs
	if len(action.Detail) > 0 {
		if err := json.Unmarshal(action.Detail, &args); err != nil {
			d.logger.Error("parsing label action args", "action_id", action.ID, "error", err)
			return "failed", detailJSON(map[string]string{"error": "invalid label action args: " + err.Error()})
		}
	}
	if args.LabelName == "" {
		return "failed", detailJSON(map[string]string{"error": "label action missing label_name"})
	}

	err := d.applicator.Apply(label.Request{FilePath: filePath, LabelName: args.LabelName, Reason: args.Reason})
	switch {
	case err == nil:
		return "applied", detailJSON(map[string]string{"label_name": args.LabelName})
	case errors.Is(err, label.ErrUnsupported):
		// Expected on every platform this tree runs on; log once at
		// debug level rather than treating it as a processing failure.
		d.logger.Debug("label application unsupported on this platform", "action_id", action.ID, "file_path", filePath)
		return "skipped", detailJSON(map[string]string{"reason": "label application unsupported on this platform"})
	default:
		d.logger.Error("applying label", "action_id", action.ID, "error", err)
		return "failed", detailJSON(map[string]string{"error": err.Error()})
	}
}

// applyQuarantine records the file as quarantined. There is no
// filesystem-moving quarantine backend in this tree (adapters are
// read-only); this records the decision for an operator or
// downstream automation to act on, the same "observe, don't fabricate"
// posture as label.Applicator.
func (d *Dispatcher) applyQuarantine(action db.RemediationAction, filePath string) (string, json.RawMessage) {
	d.logger.Info("remediation: file flagged for quarantine", "action_id", action.ID, "file_path", filePath)
	return "applied", detailJSON(map[string]string{"note": "quarantine recorded; no write-capable storage adapter is wired in this tree"})
}

// applyNotify logs the notification. There is no outbound messaging
// collaborator in this tree; this records the would-be notification so the
// action still reaches a terminal, auditable state.
func (d *Dispatcher) applyNotify(action db.RemediationAction, filePath string) (string, json.RawMessage) {
	d.logger.Info("remediation: notify owner", "action_id", action.ID, "file_path", filePath)
	return "applied", detailJSON(map[string]string{"note": "notification recorded; no messaging integration is wired in this tree"})
}

// applyDelete refuses to delete anything. Destructive remediation on a
// read-only storage layer has no safe implementation here; recording
// the refusal keeps the action queue from retrying forever.
func (d *Dispatcher) applyDelete(action db.RemediationAction, filePath string) (string, json.RawMessage) {
	d.logger.Warn("remediation: delete action refused, no write-capable adapter", "action_id", action.ID, "file_path", filePath)
	return "skipped", detailJSON(map[string]string{"reason": "delete action refused: no write-capable storage adapter is wired in this tree"})
}

func detailJSON(m map[string]string) json.RawMessage {
	b, err := json.Marshal(m)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}

// Enqueuer is the subset of pkg/queue.Dispatcher ResyncStalled needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, arg db.EnqueueJobParams) (db.QueuedJob, error)
}

// resyncCutoff is how long an action may sit pending before it is
// considered orphaned: long enough that a live "remediate" job with
// normal retry backoff would have completed it already.
const resyncCutoff = time.Hour

// ResyncStalled re-enqueues pending actions whose original queue job
// never completed them, closing the gap left by a worker crash between
// action creation and enqueue. Runs periodically under an advisory
// lock. Returns the number of actions re-enqueued.
func (d *Dispatcher) ResyncStalled(ctx context.Context, enq Enqueuer) (int, error) {
	stalled, err := d.q.ListStalledRemediationActions(ctx, time.Now().Add(-resyncCutoff), 500)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, action := range stalled {
		payload, err := json.Marshal(actionPayload{TenantID: action.TenantID, ActionID: action.ID})
		if err != nil {
			d.logger.Error("marshalling resync payload", "action_id", action.ID, "error", err)
			continue
		}
		if _, err := enq.Enqueue(ctx, db.EnqueueJobParams{
			TenantID: action.TenantID,
			TaskType: "remediate",
			Payload:  payload,
		}); err != nil {
			d.logger.Error("re-enqueuing stalled remediation action", "action_id", action.ID, "error", err)
			continue
		}
		requeued++
	}
	return requeued, nil
}
