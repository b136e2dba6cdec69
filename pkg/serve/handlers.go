package serve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"

	"github.com/ormasoftchile/keystep/pkg/history"
	"github.com/ormasoftchile/keystep/pkg/kernel/engine"
	"github.com/ormasoftchile/keystep/pkg/kernel/replay"
	"github.com/ormasoftchile/keystep/pkg/kernel/schema"
	"github.com/ormasoftchile/keystep/pkg/kernel/validate"
	"github.com/ormasoftchile/keystep/pkg/providers"
)

// ValidateResponse is the body of POST /v1/validate.
type ValidateResponse struct {
	Valid    bool                        `json:"valid"`
	Program  string                      `json:"program,omitempty"`
	Steps    int                         `json:"steps,omitempty"`
	Errors   []*validate.ValidationError `json:"errors,omitempty"`
	Warnings []*validate.ValidationError `json:"warnings,omitempty"`
}

// RunRequest is the body of POST /v1/runs.
type RunRequest struct {
	Program   json.RawMessage   `json:"program"`
	Vars      map[string]string `json:"vars,omitempty"`
	Clipboard string            `json:"clipboard,omitempty"`
}

// RunResponse is the outcome of POST /v1/runs.
type RunResponse struct {
	RunID      string              `json:"run_id"`
	Status     string              `json:"status"`
	Reason     string              `json:"reason"`
	PC         int                 `json:"pc"`
	Steps      int                 `json:"steps"`
	Vars       map[string]string   `json:"vars"`
	Error      string              `json:"error,omitempty"`
	Console    []string            `json:"console,omitempty"`
	Dialogs    []replay.DialogCall `json:"dialogs,omitempty"`
	Clipboard  string              `json:"clipboard"`
	DurationMS int64               `json:"duration_ms"`
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	var (
		data []byte
		err  error
	)
	switch t := r.URL.Query().Get("type"); t {
	case "", "program":
		data, err = schema.GenerateProgramJSONSchema()
	case "shortcut":
		data, err = schema.GenerateShortcutJSONSchema()
	default:
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("unknown schema type %q", t))
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/schema+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("read body: %w", err))
		return
	}
	prog, errs := validate.ValidateBytes(body)
	resp := ValidateResponse{
		Valid:    !validate.HasErrors(errs),
		Errors:   validate.Errors(errs),
		Warnings: validate.Warnings(errs),
	}
	if prog != nil {
		resp.Program, resp.Steps = prog.Name, prog.Len()
	}
	status := http.StatusOK
	if !resp.Valid {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if len(req.Program) == 0 {
		s.writeError(w, http.StatusBadRequest, errors.New("program is required"))
		return
	}
	prog, errs := validate.ValidateBytes(req.Program)
	if validate.HasErrors(errs) {
		writeJSON(w, http.StatusUnprocessableEntity, ValidateResponse{Errors: validate.Errors(errs)})
		return
	}

	fakes := replay.NewFakes(&replay.Scenario{Clipboard: req.Clipboard})
	adapters := fakes.Adapters()
	adapters.Querier = s.opts.Querier
	adapters.Spawner = providers.DisabledSpawner{}
	if s.opts.AllowSpawn {
		adapters.Spawner = &providers.ProcessSpawner{Logger: s.log}
	}
	adapters, err := s.opts.Governance.Apply(adapters)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	cfg := s.opts.Engine
	cfg.RunID = "api-" + engine.NewRunID()
	cfg.ProgramPath = ""
	cfg.Vars = req.Vars
	cfg.Adapters = adapters
	cfg.Logger = s.log
	cfg.Trace = nil

	ctx := r.Context()
	if s.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RunTimeout)
		defer cancel()
	}
	started := time.Now()
	res := engine.New(prog, cfg).Run(ctx)

	if s.opts.History != nil {
		// The request context may be gone; the record must still land.
		if err := s.opts.History.Record(context.WithoutCancel(ctx), history.FromResult(prog.Name, "api", started, res)); err != nil {
			s.log.Warn("record run", "run_id", res.RunID, "error", err)
		}
	}

	resp := RunResponse{
		RunID:      res.RunID,
		Status:     res.Status,
		Reason:     res.Reason,
		PC:         res.PC,
		Steps:      res.Steps,
		Vars:       res.Vars,
		Console:    fakes.Console.Lines(),
		Dialogs:    fakes.Dialog.Shown(),
		Clipboard:  fakes.Clipboard.Text(),
		DurationMS: res.Duration.Milliseconds(),
	}
	if res.Error != nil {
		resp.Error = res.Error.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		s.writeError(w, http.StatusNotFound, errors.New("run history is disabled"))
		return
	}
	q := r.URL.Query()
	f := history.Filter{Program: q.Get("program"), Status: q.Get("status")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		f.Limit = n
	}
	runs, err := s.opts.History.List(r.Context(), f)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		s.writeError(w, http.StatusNotFound, errors.New("run history is disabled"))
		return
	}
	run, err := s.opts.History.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, history.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
