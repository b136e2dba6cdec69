package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestWriter_Emit(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf, "test-run-1")

	err := tw.Emit(EventStepStart, map[string]any{
		"step":   0,
		"action": "debug",
	})
	if err != nil {
		t.Fatalf("Emit error: %v", err)
	}

	var evt Event
	if err := json.Unmarshal(buf.Bytes(), &evt); err != nil {
		t.Fatalf("JSON unmarshal: %v (raw: %s)", err, buf.String())
	}
	if evt.Type != EventStepStart {
		t.Errorf("type = %q, want step_start", evt.Type)
	}
	if evt.RunID != "test-run-1" {
		t.Errorf("run_id = %q", evt.RunID)
	}
	if evt.Data["action"] != "debug" {
		t.Errorf("action = %v", evt.Data["action"])
	}
}

func TestWriter_EmitStepComplete_WithFailure(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf, "run-1")

	err := tw.EmitStepComplete(3, StatusFailed, nil, 50*time.Millisecond, &Failure{
		Kind: "adapter", Message: "clipboard unavailable",
	})
	if err != nil {
		t.Fatal(err)
	}

	var evt Event
	json.Unmarshal(buf.Bytes(), &evt)
	if evt.Data["status"] != "failed" {
		t.Errorf("status = %v", evt.Data["status"])
	}
	if evt.Data["step"] != float64(3) {
		t.Errorf("step = %v", evt.Data["step"])
	}
	failure, ok := evt.Data["failure"].(map[string]any)
	if !ok {
		t.Fatal("expected failure object")
	}
	if failure["kind"] != "adapter" {
		t.Errorf("failure.kind = %v", failure["kind"])
	}
}

func TestWriter_EmitJump(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf, "run-1")
	tw.EmitJump(4, 2, true)

	var evt Event
	json.Unmarshal(buf.Bytes(), &evt)
	if evt.Type != EventJump || evt.Data["to"] != float64(2) || evt.Data["relative"] != true {
		t.Errorf("jump event = %+v", evt)
	}
}

func TestWriter_HashChaining(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf, "run-1")

	tw.EmitRunStart("loop", 3, map[string]string{"input": "x"}, 0)
	tw.EmitStepStart(0, "debug")
	tw.EmitStepComplete(0, StatusSuccess, nil, 0, nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}

	var first, second Event
	json.Unmarshal([]byte(lines[0]), &first)
	json.Unmarshal([]byte(lines[1]), &second)
	if first.PrevHash != Genesis {
		t.Errorf("first event prev_hash = %q, want 64 zeros", first.PrevHash)
	}
	if second.PrevHash == first.PrevHash || len(second.PrevHash) != 64 {
		t.Errorf("second prev_hash = %q", second.PrevHash)
	}
}

func TestWriter_RunComplete_ChainHash(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf, "run-1")

	tw.EmitStepStart(0, "end_program")
	tw.EmitRunComplete("error", "", 1, time.Second, errors.New("boom"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var evt Event
	json.Unmarshal([]byte(lines[len(lines)-1]), &evt)

	chainHash, ok := evt.Data["chain_hash"].(string)
	if !ok || len(chainHash) != 64 {
		t.Errorf("chain_hash = %v", evt.Data["chain_hash"])
	}
	if evt.Data["error"] != "boom" {
		t.Errorf("error = %v", evt.Data["error"])
	}
}

func TestWriter_RedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf, "run-1")
	tw.SetSecrets("sk-live-123", "")
	tw.EmitRunStart("p", 1, map[string]string{"key": "sk-live-123"}, 0)

	if strings.Contains(buf.String(), "sk-live-123") {
		t.Errorf("secret leaked: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "<REDACTED>") {
		t.Error("expected redaction marker")
	}
	res, err := Verify(&buf, nil)
	if err != nil || !res.Valid {
		t.Errorf("redacted trace should still verify: %+v, %v", res, err)
	}
}

func TestVerify_ValidAndSigned(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf, "run-1")
	tw.SetSigningKey("k1", []byte("secret"))
	tw.EmitRunStart("p", 2, nil, 0)
	tw.EmitStepStart(0, "debug")
	tw.EmitStepComplete(0, StatusSuccess, nil, 0, nil)
	tw.EmitRunComplete("completed", "end_of_program", 1, time.Millisecond, nil)

	data := buf.Bytes()
	res, err := Verify(bytes.NewReader(data), []byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Valid || res.EventCount != 4 || !res.SignatureOK || res.SigningKeyID != "k1" {
		t.Errorf("result = %+v", res)
	}

	res, _ = Verify(bytes.NewReader(data), nil)
	if !res.SignatureNoKey {
		t.Error("expected SignatureNoKey without a key")
	}

	res, _ = Verify(bytes.NewReader(data), []byte("wrong"))
	if res.SignatureOK || !res.Signed {
		t.Errorf("wrong key must not verify: %+v", res)
	}
}

func TestVerify_Tampered(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf, "run-1")
	tw.EmitStepStart(0, "set_variable")
	tw.EmitStepComplete(0, StatusSuccess, map[string]any{"value": "1"}, 0, nil)
	tw.EmitStepStart(1, "end_program")

	tampered := strings.Replace(buf.String(), `"value":"1"`, `"value":"2"`, 1)
	res, err := Verify(strings.NewReader(tampered), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid || res.BrokenAt != 3 {
		t.Errorf("expected break at event 3, got %+v", res)
	}
}

func TestVerify_ForeignRunID(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf, "run-1")
	tw.EmitRunStart("p", 1, nil, 0)
	tw.EmitStepStart(0, "debug")
	tw.EmitStepComplete(0, StatusSuccess, nil, 0, nil)

	spliced := strings.Replace(buf.String(), `"run_id":"run-1"`, `"run_id":"run-2"`, 2)
	spliced = strings.Replace(spliced, `"run_id":"run-2"`, `"run_id":"run-1"`, 1)
	res, err := Verify(strings.NewReader(spliced), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid || res.BrokenAt != 2 || res.RunID != "run-1" {
		t.Errorf("expected break at event 2, got %+v", res)
	}
	if !strings.Contains(res.Error, `run "run-2"`) {
		t.Errorf("error = %q", res.Error)
	}
}
