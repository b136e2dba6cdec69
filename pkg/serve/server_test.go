package serve

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ormasoftchile/keystep/pkg/governance"
	"github.com/ormasoftchile/keystep/pkg/history"
	"github.com/ormasoftchile/keystep/pkg/kernel/engine"
)

const helloProgram = `{
  "apiVersion": "keystep/v0",
  "name": "hello",
  "steps": [
    {"action": "read_clipboard"},
    {"action": "print_console", "content": "Hello {{who}}: {{input}}"},
    {"action": "show_dialog", "title": "Hi", "body": "{{who}}"},
    {"action": "write_clipboard", "content": "done {{who}}"}
  ]
}`

func newServer(t *testing.T, opts Options) *Server {
	t.Helper()
	if opts.History == nil {
		store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
		if err != nil {
			t.Fatalf("history.Open: %v", err)
		}
		t.Cleanup(func() { store.Close() })
		opts.History = store
	}
	return New(opts)
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	s := newServer(t, Options{})
	w := do(t, s, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Errorf("healthz = %d %q", w.Code, w.Body.String())
	}
}

func TestSchema(t *testing.T) {
	s := newServer(t, Options{})
	for _, typ := range []string{"", "program", "shortcut"} {
		w := do(t, s, http.MethodGet, "/v1/schema?type="+typ, "")
		if w.Code != http.StatusOK || !json.Valid(w.Body.Bytes()) {
			t.Errorf("%q: status = %d", typ, w.Code)
		}
	}
	if w := do(t, s, http.MethodGet, "/v1/schema?type=nope", ""); w.Code != http.StatusBadRequest {
		t.Errorf("unknown type status = %d", w.Code)
	}
}

func TestValidate(t *testing.T) {
	s := newServer(t, Options{})

	w := do(t, s, http.MethodPost, "/v1/validate", helloProgram)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	var resp ValidateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Valid || resp.Program != "hello" || resp.Steps != 4 {
		t.Errorf("resp = %+v", resp)
	}

	bad := `{"apiVersion": "keystep/v0", "name": "bad", "steps": [{"action": "teleport"}]}`
	w = do(t, s, http.MethodPost, "/v1/validate", bad)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", w.Code)
	}
	resp = ValidateResponse{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Valid || len(resp.Errors) == 0 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestRunAndHistory(t *testing.T) {
	s := newServer(t, Options{})

	body := fmt.Sprintf(`{"program": %s, "vars": {"who": "Ada"}, "clipboard": "notes"}`, helloProgram)
	w := do(t, s, http.MethodPost, "/v1/runs", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	var run RunResponse
	if err := json.Unmarshal(w.Body.Bytes(), &run); err != nil {
		t.Fatal(err)
	}
	if run.Status != engine.StatusCompleted || run.Reason != engine.ReasonEndOfProgram {
		t.Errorf("run = %+v", run)
	}
	if len(run.Console) != 1 || run.Console[0] != "Hello Ada: notes" {
		t.Errorf("console = %q", run.Console)
	}
	if len(run.Dialogs) != 1 || run.Dialogs[0].Body != "Ada" {
		t.Errorf("dialogs = %+v", run.Dialogs)
	}
	if run.Clipboard != "done Ada" || !strings.HasPrefix(run.RunID, "api-") {
		t.Errorf("run = %+v", run)
	}

	w = do(t, s, http.MethodGet, "/v1/runs/"+run.RunID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var rec history.Run
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Program != "hello" || rec.Source != "api" || rec.Vars["who"] != "Ada" {
		t.Errorf("record = %+v", rec)
	}

	w = do(t, s, http.MethodGet, "/v1/runs?program=hello&limit=5", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), run.RunID) {
		t.Errorf("list = %d %s", w.Code, w.Body.String())
	}
}

func TestRunSpawnRefused(t *testing.T) {
	s := newServer(t, Options{Engine: engine.RunConfig{AdapterPolicy: engine.PolicyHalt}})
	prog := `{"apiVersion": "keystep/v0", "name": "sp", "steps": [{"action": "spawn", "command": "notepad"}]}`
	w := do(t, s, http.MethodPost, "/v1/runs", `{"program": `+prog+`}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var run RunResponse
	if err := json.Unmarshal(w.Body.Bytes(), &run); err != nil {
		t.Fatal(err)
	}
	if run.Status != engine.StatusError || !strings.Contains(run.Error, "notepad") {
		t.Errorf("run = %+v", run)
	}
}

func TestRunBadRequests(t *testing.T) {
	s := newServer(t, Options{})
	cases := map[string]struct {
		body string
		want int
	}{
		"not json":        {`nope`, http.StatusBadRequest},
		"missing program": {`{}`, http.StatusBadRequest},
		"unknown field":   {`{"program": {}, "extra": 1}`, http.StatusBadRequest},
		"invalid program": {`{"program": {"apiVersion": "keystep/v0", "name": "x", "steps": [{"action": "teleport"}]}}`, http.StatusUnprocessableEntity},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if w := do(t, s, http.MethodPost, "/v1/runs", tc.body); w.Code != tc.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestGetRun_NotFound(t *testing.T) {
	s := newServer(t, Options{})
	if w := do(t, s, http.MethodGet, "/v1/runs/missing", ""); w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}
	if w := do(t, s, http.MethodGet, "/v1/runs?limit=x", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", w.Code)
	}
}

func TestHistoryDisabled(t *testing.T) {
	s := New(Options{})
	if w := do(t, s, http.MethodGet, "/v1/runs", ""); w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}
	body := fmt.Sprintf(`{"program": %s}`, helloProgram)
	if w := do(t, s, http.MethodPost, "/v1/runs", body); w.Code != http.StatusOK {
		t.Errorf("run without history status = %d", w.Code)
	}
}

func TestConcurrentRuns(t *testing.T) {
	s := newServer(t, Options{})
	var wg sync.WaitGroup
	errs := make(chan string, 8)
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body := fmt.Sprintf(`{"program": %s, "vars": {"who": "w%d"}}`, helloProgram, i)
			w := do(t, s, http.MethodPost, "/v1/runs", body)
			var run RunResponse
			if err := json.Unmarshal(w.Body.Bytes(), &run); err != nil || run.Clipboard != fmt.Sprintf("done w%d", i) {
				errs <- fmt.Sprintf("run %d: %d %s", i, w.Code, w.Body.String())
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}

	w := do(t, s, http.MethodGet, "/v1/runs?limit=100", "")
	var list struct {
		Runs []history.Run `json:"runs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Runs) != 8 {
		t.Errorf("recorded %d runs, want 8", len(list.Runs))
	}
}

func TestRunUnderGovernance(t *testing.T) {
	s := newServer(t, Options{
		AllowSpawn: true,
		Governance: &governance.Policy{
			AllowedCommands: []string{"notepad"},
			Redact:          []governance.RedactionRule{{Pattern: `sk-\w+`, Replace: "sk-***"}},
		},
	})
	prog := `{"apiVersion": "keystep/v0", "name": "gov", "steps": [
		{"action": "print_console", "content": "key {{key}}"},
		{"action": "spawn", "command": "rm", "args": ["-rf", "/"]}
	]}`
	w := do(t, s, http.MethodPost, "/v1/runs", `{"program": `+prog+`, "vars": {"key": "sk-live1"}}`)
	var run RunResponse
	if err := json.Unmarshal(w.Body.Bytes(), &run); err != nil {
		t.Fatal(err)
	}
	if len(run.Console) != 1 || run.Console[0] != "key sk-***" {
		t.Errorf("console = %q", run.Console)
	}
	if run.Status != engine.StatusError || !strings.Contains(run.Error, "allowlist") {
		t.Errorf("run = %+v", run)
	}
}
