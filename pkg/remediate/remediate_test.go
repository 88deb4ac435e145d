package remediate

import (
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/chillbot-io/openlabels/internal/db"
	"github.com/chillbot-io/openlabels/pkg/label"
)

type fakeApplicator struct {
	err error
	got label.Request
}

func (f *fakeApplicator) Apply(req label.Request) error {
	f.got = req
	return f.err
}

func newTestDispatcher(applicator label.Applicator) *Dispatcher {
	return &Dispatcher{q: nil, applicator: applicator, logger: slog.Default()}
}

func TestApplyLabelSuccess(t *testing.T) {
	fa := &fakeApplicator{}
	d := newTestDispatcher(fa)

	detail, _ := json.Marshal(labelActionArgs{LabelName: "Confidential", Reason: "policy match"})
	action := db.RemediationAction{ID: uuid.New(), Kind: "label", Detail: detail}

	status, out := d.apply(nil, action, "/data/report.csv")
	if status != "applied" {
		t.Fatalf("status = %q, want applied", status)
	}
	if fa.got.FilePath != "/data/report.csv" || fa.got.LabelName != "Confidential" {
		t.Fatalf("applicator called with wrong request: %+v", fa.got)
	}
	var m map[string]string
	if err := json.Unmarshal(out, &m); err != nil || m["label_name"] != "Confidential" {
		t.Fatalf("detail = %s", out)
	}
}

func TestApplyLabelUnsupportedIsSkipped(t *testing.T) {
	fa := &fakeApplicator{err: label.ErrUnsupported}
	d := newTestDispatcher(fa)

	detail, _ := json.Marshal(labelActionArgs{LabelName: "Confidential"})
	action := db.RemediationAction{ID: uuid.New(), Kind: "label", Detail: detail}

	status, _ := d.apply(nil, action, "/data/report.csv")
	if status != "skipped" {
		t.Fatalf("status = %q, want skipped", status)
	}
}

func TestApplyLabelOtherErrorFails(t *testing.T) {
	fa := &fakeApplicator{err: errors.New("boom")}
	d := newTestDispatcher(fa)

	detail, _ := json.Marshal(labelActionArgs{LabelName: "Confidential"})
	action := db.RemediationAction{ID: uuid.New(), Kind: "label", Detail: detail}

	status, out := d.apply(nil, action, "/data/report.csv")
	if status != "failed" {
		t.Fatalf("status = %q, want failed", status)
	}
	var m map[string]string
	if err := json.Unmarshal(out, &m); err != nil || m["error"] == "" {
		t.Fatalf("detail = %s", out)
	}
}

func TestApplyLabelMissingNameFails(t *testing.T) {
	d := newTestDispatcher(&fakeApplicator{})
	action := db.RemediationAction{ID: uuid.New(), Kind: "label", Detail: json.RawMessage(`{}`)}

	status, _ := d.apply(nil, action, "/data/report.csv")
	if status != "failed" {
		t.Fatalf("status = %q, want failed", status)
	}
}

func TestApplyQuarantineAndNotifyRecordApplied(t *testing.T) {
	d := newTestDispatcher(&fakeApplicator{})

	status, _ := d.apply(nil, db.RemediationAction{ID: uuid.New(), Kind: "quarantine"}, "/data/report.csv")
	if status != "applied" {
		t.Fatalf("quarantine status = %q, want applied", status)
	}

	status, _ = d.apply(nil, db.RemediationAction{ID: uuid.New(), Kind: "notify"}, "/data/report.csv")
	if status != "applied" {
		t.Fatalf("notify status = %q, want applied", status)
	}
}

func TestApplyDeleteIsRefused(t *testing.T) {
	d := newTestDispatcher(&fakeApplicator{})
	status, _ := d.apply(nil, db.RemediationAction{ID: uuid.New(), Kind: "delete"}, "/data/report.csv")
	if status != "skipped" {
		t.Fatalf("delete status = %q, want skipped", status)
	}
}

func TestApplyUnknownKindFails(t *testing.T) {
	d := newTestDispatcher(&fakeApplicator{})
	status, _ := d.apply(nil, db.RemediationAction{ID: uuid.New(), Kind: "explode"}, "/data/report.csv")
	if status != "failed" {
		t.Fatalf("status = %q, want failed", status)
	}
}
