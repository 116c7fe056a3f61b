// Package httpapi is the inbound HTTP API used by the operator UI, the
// CLI and other tools.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"showcall/lib/broadcast"
	"showcall/lib/config"
	"showcall/lib/connstate"
	"showcall/lib/control"
	"showcall/lib/cuestack"
	"showcall/lib/macro"
	"showcall/lib/store"
	"showcall/lib/timecode"
)

const (
	maxBodyBytes = 1 << 20

	restartDelay = 250 * time.Millisecond
)

// Mixer is the read side of the mixer connection.
type Mixer interface {
	Composition(ctx context.Context) ([]byte, error)
	CheckConnection(ctx context.Context) connstate.State
	BaseURL() string
}

// OSC reports the control socket state.
type OSC interface {
	State() connstate.State
}

type Deps struct {
	Config     config.Config
	ConfigPath string

	Mixer       Mixer
	OSC         OSC
	Dispatcher  *control.Dispatcher
	Executor    *macro.Executor
	Store       *store.Store
	Cues        *cuestack.Runner
	Broadcaster *broadcast.Broadcaster
	// Timecode may be nil when disabled.
	Timecode timecode.Source

	// Restart is called shortly after settings are saved so the new
	// values take effect.
	Restart func()
	Logger  *slog.Logger
}

type Server struct {
	deps Deps
	log  *slog.Logger

	cfgMu sync.Mutex
	cfg   config.Config
}

func New(deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		deps: deps,
		log:  log.With(slog.String("component", "http")),
		cfg:  deps.Config,
	}
}

func (s *Server) config() config.Config {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	return s.cfg
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLog)
	r.Use(allowAnyOrigin)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/connection", s.handleConnection)
		r.Get("/composition", s.handleComposition)
		r.Get("/debug", s.handleDebug)
		r.Get("/status", s.handleStatusSSE)
		r.Get("/status/ws", s.handleStatusWS)
		r.Get("/timecode", s.handleTimecode)

		r.Post("/trigger", s.handleTrigger)
		r.Post("/triggerColumn", s.handleTriggerColumn)
		r.Post("/cut", s.handleCut)
		r.Post("/clear", s.handleClear)
		r.Post("/test-trigger", s.handleTestTrigger)
		r.Post("/test-column", s.handleTestColumn)
		r.Post("/macro", s.handleMacro)

		r.Get("/presets", s.handleGetPresets)
		r.Post("/presets", s.handleSavePresets)
		r.Put("/presets/{id}", s.handleUpsertPreset)
		r.Delete("/presets/{id}", s.handleDeletePreset)
		r.Post("/presets/{id}/run", s.handleRunPreset)

		r.Get("/settings", s.handleGetSettings)
		r.Post("/settings", s.handleSaveSettings)

		r.Route("/cuestack", func(r chi.Router) {
			r.Get("/", s.handleGetCueStack)
			r.Put("/", s.handlePutCueStack)
			r.Post("/go", s.handleGo)
			r.Post("/jump", s.handleJump)
			r.Post("/cues/{index}/run", s.handleRunCue)
		})
	})

	if dir := s.config().Server.UIDir; dir != "" {
		r.Handle("/*", spa(dir))
	} else {
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "UI not available", http.StatusNotFound)
		})
	}
	return r
}

// spa serves files from dir and falls back to index.html so client-side
// routes survive a reload.
func spa(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
		if fi, err := os.Stat(p); err != nil || (fi.IsDir() && r.URL.Path != "/") {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
			return
		}
		files.ServeHTTP(w, r)
	})
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func allowAnyOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
