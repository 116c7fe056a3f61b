package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	json "github.com/goccy/go-json"

	"showcall/lib/composition"
	"showcall/lib/connstate"
)

const wsWriteTimeout = 5 * time.Second

// ConnectionInfo is the combined view of both mixer channels.
type ConnectionInfo struct {
	Connected bool   `json:"connected"`
	OSC       bool   `json:"osc"`
	Host      string `json:"host"`
	RestPort  int    `json:"restPort"`
	OSCPort   int    `json:"oscPort"`
	Mock      bool   `json:"mock,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) oscState() connstate.State {
	if s.deps.OSC == nil {
		return connstate.State{}
	}
	return s.deps.OSC.State()
}

func (s *Server) connection(ctx context.Context) ConnectionInfo {
	cfg := s.config()
	rest := s.deps.Mixer.CheckConnection(ctx)
	return ConnectionInfo{
		Connected: rest.Connected,
		OSC:       s.oscState().Connected,
		Host:      cfg.Resolume.Host,
		RestPort:  cfg.Resolume.RestPort,
		OSCPort:   cfg.Resolume.OSCPort,
		Mock:      cfg.Resolume.Mock,
		Error:     rest.LastError,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	conn := s.connection(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"resolume":  conn.Connected,
		"host":      conn.Host,
		"port":      conn.RestPort,
		"timestamp": nowMillis(),
	})
}

func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.connection(r.Context()))
}

func (s *Server) snapshot(ctx context.Context) (composition.Snapshot, error) {
	raw, err := s.deps.Mixer.Composition(ctx)
	if err != nil {
		return composition.Degraded(err), err
	}
	return composition.Normalize(raw), nil
}

func (s *Server) handleComposition(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshot(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"connected": false,
			"error":     err.Error(),
			"timestamp": nowMillis(),
		})
		return
	}
	writeJSON(w, http.StatusOK, snap.Structure())
}

type debugClip struct {
	APIIndex  int    `json:"apiIndex"`
	UIIndex   int    `json:"uiIndex"`
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	IsEmpty   bool   `json:"isEmpty"`
}

type debugLayer struct {
	APIIndex  int         `json:"apiIndex"`
	UIIndex   int         `json:"uiIndex"`
	Name      string      `json:"name"`
	ClipCount int         `json:"clipCount"`
	Clips     []debugClip `json:"clips"`
}

const debugClipLimit = 10

// handleDebug reports how the bridge indexes the composition, both
// zero-based as the mixer API counts and one-based as the UI does.
func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshot(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"connected":   false,
			"error":       err.Error(),
			"resolumeUrl": s.deps.Mixer.BaseURL(),
			"hint":        "Make sure Resolume is running and the REST API is enabled in Preferences > Web Server",
			"timestamp":   nowMillis(),
		})
		return
	}

	layers := make([]debugLayer, 0, len(snap.Layers))
	for i, l := range snap.Layers {
		dl := debugLayer{APIIndex: i, UIIndex: i + 1, Name: l.Name, ClipCount: len(l.Clips), Clips: []debugClip{}}
		for j, c := range l.Clips {
			if j == debugClipLimit {
				break
			}
			dl.Clips = append(dl.Clips, debugClip{
				APIIndex:  j,
				UIIndex:   j + 1,
				Name:      c.Name,
				Connected: c.IsConnected,
				IsEmpty:   c.IsEmpty,
			})
		}
		layers = append(layers, dl)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"connected":       snap.Connected,
		"resolumeUrl":     s.deps.Mixer.BaseURL(),
		"compositionName": snap.CompositionName,
		"layerCount":      len(snap.Layers),
		"layersInfo":      layers,
		"program":         snap.Program,
		"preview":         snap.Preview,
		"bpm":             snap.BPM,
		"timestamp":       nowMillis(),
	})
}

// statusEvent is a snapshot plus the connection details the status
// panel shows alongside it.
func (s *Server) statusEvent(snap composition.Snapshot) ([]byte, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	var ev map[string]any
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, err
	}
	cfg := s.config()
	ev["osc"] = s.oscState().Connected
	ev["host"] = cfg.Resolume.Host
	ev["restPort"] = cfg.Resolume.RestPort
	ev["oscPort"] = cfg.Resolume.OSCPort
	return json.Marshal(ev)
}

// handleStatusSSE streams one event per poll cycle until the client
// goes away.
func (s *Server) handleStatusSSE(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.log.Warn("status stream cannot flush", "error", err)
		return
	}

	viewer, unsubscribe := s.deps.Broadcaster.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-viewer.C:
			if !ok {
				return
			}
			data, err := s.statusEvent(snap)
			if err != nil {
				s.log.Warn("status encode failed", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// handleStatusWS pushes the same events as handleStatusSSE over a
// WebSocket. Incoming messages are ignored.
func (s *Server) handleStatusWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.log.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	ctx := conn.CloseRead(r.Context())

	viewer, unsubscribe := s.deps.Broadcaster.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-viewer.C:
			if !ok {
				return
			}
			data, err := s.statusEvent(snap)
			if err != nil {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err = conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (s *Server) handleTimecode(w http.ResponseWriter, r *http.Request) {
	if s.deps.Timecode == nil {
		writeJSON(w, http.StatusOK, map[string]any{"connected": false, "enabled": false})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Timecode.Latest())
}
