package model

import (
	"encoding/json"
	"testing"
)

func TestJSONBValueAndScan(t *testing.T) {
	original := JSONB{"name": "guidepath", "count": 2}

	value, err := original.Value()
	if err != nil {
		t.Fatalf("Value() error: %v", err)
	}

	data, ok := value.([]byte)
	if !ok {
		t.Fatalf("expected []byte value, got %T", value)
	}

	var scanned JSONB
	if err := scanned.Scan(data); err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if scanned["name"] != "guidepath" {
		t.Fatalf("expected scanned name guidepath, got %v", scanned["name"])
	}

	var fromString JSONB
	if err := fromString.Scan(string(data)); err != nil {
		t.Fatalf("Scan(string) error: %v", err)
	}
	if fromString["count"] != float64(2) {
		t.Fatalf("expected count 2, got %v", fromString["count"])
	}
}

func TestStageRefsRoundTrip(t *testing.T) {
	refs := StageRefs{
		{Stage: "greeting", Config: JSONB{"tone": "warm"}},
		{Stage: "pricing", When: "renewal != nil"},
	}
	value, err := refs.Value()
	if err != nil {
		t.Fatalf("Value() error: %v", err)
	}

	var scanned StageRefs
	if err := scanned.Scan(value); err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if len(scanned) != 2 || scanned[1].When != "renewal != nil" {
		t.Fatalf("unexpected scanned refs: %+v", scanned)
	}

	var nilRefs StageRefs
	empty, _ := nilRefs.Value()
	var decoded []StageRef
	if err := json.Unmarshal(empty.([]byte), &decoded); err != nil || len(decoded) != 0 {
		t.Fatalf("expected empty array for nil refs, got %s", empty)
	}
}

func TestStatusHelpers(t *testing.T) {
	if !ExecutionCompleted.IsTerminal() || !ExecutionSkipped.IsTerminal() {
		t.Fatalf("completed and skipped must be terminal")
	}
	if ExecutionInProgress.IsTerminal() || ExecutionNotStarted.IsTerminal() {
		t.Fatalf("in_progress and not_started must not be terminal")
	}
	if ExecutionStatus("paused").Valid() {
		t.Fatalf("unknown status must be invalid")
	}
	if !StepSkipped.IsTerminal() || StepSnoozed.IsTerminal() {
		t.Fatalf("unexpected step terminal classification")
	}

	execution := &Execution{UserID: "owner"}
	if execution.Assignee() != "owner" {
		t.Fatalf("expected assignee to fall back to owner")
	}
	execution.AssignedTo = "lead"
	if execution.Assignee() != "lead" {
		t.Fatalf("expected explicit assignee")
	}
}
