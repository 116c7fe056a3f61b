package httpapi

import (
	"context"
	"errors"
	"net/http"

	"showcall/lib/control"
	"showcall/lib/macro"
)

type triggerRequest struct {
	Layer  flexInt `json:"layer"`
	Column flexInt `json:"column"`
}

func (s *Server) writeResult(w http.ResponseWriter, res control.Result) {
	status := http.StatusOK
	if errors.Is(res.Err(), control.ErrInvalidInput) {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, res)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if !req.Layer.set || !req.Column.set {
		writeError(w, http.StatusBadRequest, errors.New("Missing layer or column"))
		return
	}
	layer, err := req.Layer.positive("layer")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	column, err := req.Column.positive("column")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeResult(w, s.deps.Dispatcher.TriggerClip(layer, column))
}

func (s *Server) handleTriggerColumn(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if !req.Column.set {
		writeError(w, http.StatusBadRequest, errors.New("Missing column"))
		return
	}
	column, err := req.Column.positive("column")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeResult(w, s.deps.Dispatcher.TriggerColumn(column))
}

func (s *Server) handleCut(w http.ResponseWriter, r *http.Request) {
	s.writeResult(w, s.deps.Dispatcher.Cut())
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.writeResult(w, s.deps.Dispatcher.Clear())
}

type testResponse struct {
	control.Result
	Success    bool   `json:"success"`
	OSCAddress string `json:"oscAddress"`
}

// handleTestTrigger triggers with defaults of layer 1, column 1 and
// echoes the OSC address, for checking the mixer's OSC input.
func (s *Server) handleTestTrigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	layer, column := 1, 1
	if req.Layer.set {
		layer = req.Layer.n
	}
	if req.Column.set {
		column = req.Column.n
	}
	res := s.deps.Dispatcher.TriggerClip(layer, column)
	writeJSON(w, http.StatusOK, testResponse{Result: res, Success: res.OK, OSCAddress: control.ClipAddress(layer, column)})
}

func (s *Server) handleTestColumn(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	column := 1
	if req.Column.set {
		column = req.Column.n
	}
	res := s.deps.Dispatcher.TriggerColumn(column)
	writeJSON(w, http.StatusOK, testResponse{Result: res, Success: res.OK, OSCAddress: control.ColumnAddress(column)})
}

type macroRequest struct {
	Macro []macro.Step `json:"macro"`
	ID    string       `json:"id,omitempty"`
	Name  string       `json:"name,omitempty"`
}

type macroResponse struct {
	OK   bool   `json:"ok"`
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	macro.Report
}

func (s *Server) handleMacro(w http.ResponseWriter, r *http.Request) {
	var req macroRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("Invalid macro"))
		return
	}
	if len(req.Macro) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("Invalid macro"))
		return
	}
	s.log.Info("running macro", "macro", firstNonEmpty(req.Name, req.ID), "steps", len(req.Macro))
	// a dropped client must not cut a running macro short
	rep := s.deps.Executor.Run(context.WithoutCancel(r.Context()), req.Macro)
	writeJSON(w, http.StatusOK, macroResponse{OK: true, ID: req.ID, Name: req.Name, Report: rep})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
