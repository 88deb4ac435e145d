package label

import (
	"errors"
	"testing"
)

func TestNoopApplicator_AlwaysUnsupported(t *testing.T) {
	a := New()
	err := a.Apply(Request{FilePath: "/tmp/x", LabelName: "Confidential"})
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("Apply() error = %v, want ErrUnsupported", err)
	}
}
