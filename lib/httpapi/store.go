package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"showcall/lib/config"
	"showcall/lib/cuestack"
	"showcall/lib/store"
)

func (s *Server) handleGetPresets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Store.Presets())
}

// handleSavePresets replaces the whole presets document.
func (s *Server) handleSavePresets(w http.ResponseWriter, r *http.Request) {
	var doc store.Presets
	if err := readJSON(w, r, &doc); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if _, err := s.deps.Store.SavePresets(doc); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleUpsertPreset stores the body under {id}. A body carrying a
// different id renames the preset.
func (s *Server) handleUpsertPreset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var p store.Preset
	if err := readJSON(w, r, &p); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if p.ID == "" {
		p.ID = id
	}
	previous := ""
	if _, ok := s.deps.Store.Preset(id); ok {
		previous = id
	}
	saved, err := s.deps.Store.UpsertPreset(p, previous)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "preset": saved})
}

func (s *Server) handleDeletePreset(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeletePreset(chi.URLParam(r, "id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleRunPreset(w http.ResponseWriter, r *http.Request) {
	p, ok := s.deps.Store.Preset(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("preset not found"))
		return
	}
	s.log.Info("running preset", "preset", p.ID, "steps", len(p.Macro))
	rep := s.deps.Executor.Run(context.WithoutCancel(r.Context()), p.Macro)
	writeJSON(w, http.StatusOK, macroResponse{OK: true, ID: p.ID, Name: p.Label, Report: rep})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	cfg := s.config()
	writeJSON(w, http.StatusOK, cfg.Settings())
}

type settingsRequest struct {
	ResolumeHost     string  `json:"resolumeHost"`
	ResolumeRestPort flexInt `json:"resolumeRestPort"`
	ResolumeOSCPort  flexInt `json:"resolumeOscPort"`
	ServerPort       flexInt `json:"serverPort"`
}

// settings checks each field the way the settings form reports them.
// An absent server port keeps the current one.
func (req settingsRequest) settings(current config.Settings) (config.Settings, error) {
	out := config.Settings{ResolumeHost: req.ResolumeHost, ServerPort: current.ServerPort}
	if out.ResolumeHost == "" {
		return out, errors.New("resolumeHost required")
	}
	var ok bool
	if out.ResolumeRestPort, ok = port(req.ResolumeRestPort); !ok {
		return out, errors.New("Invalid REST port")
	}
	if out.ResolumeOSCPort, ok = port(req.ResolumeOSCPort); !ok {
		return out, errors.New("Invalid OSC port")
	}
	if req.ServerPort.set {
		if out.ServerPort, ok = port(req.ServerPort); !ok || out.ServerPort < 1024 {
			return out, errors.New("Invalid server port")
		}
	}
	return out, nil
}

func port(f flexInt) (int, bool) {
	if !f.valid || f.n < 1 || f.n > 65535 {
		return 0, false
	}
	return f.n, true
}

// handleSaveSettings writes the settings to the config file and asks
// the process to restart so the new endpoints take effect.
func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	s.cfgMu.Lock()
	settings, err := req.settings(s.cfg.Settings())
	if err != nil {
		s.cfgMu.Unlock()
		writeError(w, http.StatusBadRequest, err)
		return
	}
	next, err := s.cfg.WithSettings(settings)
	if err != nil {
		s.cfgMu.Unlock()
		writeError(w, statusFor(err), err)
		return
	}
	if s.deps.ConfigPath != "" {
		if err := next.Save(s.deps.ConfigPath); err != nil {
			s.cfgMu.Unlock()
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	s.cfg = next
	s.cfgMu.Unlock()

	s.log.Info("settings saved",
		"host", settings.ResolumeHost,
		"rest_port", settings.ResolumeRestPort,
		"osc_port", settings.ResolumeOSCPort,
		"server_port", settings.ServerPort)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "restarting": s.deps.Restart != nil})

	if s.deps.Restart != nil {
		time.AfterFunc(restartDelay, s.deps.Restart)
	}
}

type cueStackResponse struct {
	Stack cuestack.Stack `json:"stack"`
	State cuestack.State `json:"state"`
}

func (s *Server) handleGetCueStack(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, cueStackResponse{Stack: s.deps.Store.CueStack(), State: s.deps.Cues.State()})
}

func (s *Server) handlePutCueStack(w http.ResponseWriter, r *http.Request) {
	var st cuestack.Stack
	if err := readJSON(w, r, &st); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if err := s.deps.Store.SaveCueStack(st); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.deps.Cues.Refresh()
	writeJSON(w, http.StatusOK, cueStackResponse{Stack: s.deps.Store.CueStack(), State: s.deps.Cues.State()})
}

type outcomeResponse struct {
	OK bool `json:"ok"`
	cuestack.Outcome
	State cuestack.State `json:"state"`
}

// handleGo advances to the next cue and runs it. Running off the end
// of the stack is reported, not treated as a failure.
func (s *Server) handleGo(w http.ResponseWriter, r *http.Request) {
	out, err := s.deps.Cues.Next(context.WithoutCancel(r.Context()))
	s.writeOutcome(w, out, err)
}

func (s *Server) handleRunCue(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, badRequest("cue index must be an integer"))
		return
	}
	out, err := s.deps.Cues.RunCue(context.WithoutCancel(r.Context()), index)
	s.writeOutcome(w, out, err)
}

func (s *Server) writeOutcome(w http.ResponseWriter, out cuestack.Outcome, err error) {
	resp := outcomeResponse{OK: err == nil && out.Error == "", Outcome: out, State: s.deps.Cues.State()}
	switch {
	case err == nil, errors.Is(err, cuestack.ErrComplete), errors.Is(err, cuestack.ErrDanglingPreset):
		if resp.Error == "" && err != nil && !errors.Is(err, cuestack.ErrComplete) {
			resp.Error = err.Error()
		}
		writeJSON(w, http.StatusOK, resp)
	default:
		writeError(w, statusFor(err), err)
	}
}

type jumpRequest struct {
	Index *int `json:"index"`
	Delta *int `json:"delta"`
}

// handleJump moves the pointer to index, or by delta when no index is
// given.
func (s *Server) handleJump(w http.ResponseWriter, r *http.Request) {
	var req jumpRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	var (
		st  cuestack.State
		err error
	)
	switch {
	case req.Index != nil:
		st, err = s.deps.Cues.Jump(*req.Index)
	case req.Delta != nil:
		st, err = s.deps.Cues.Step(*req.Delta)
	default:
		err = badRequest("index or delta required")
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "state": st})
}
