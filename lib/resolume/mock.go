package resolume

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
)

// MockServer serves a mutable composition document over the mixer's REST
// path. Connect/Disconnect mirror what the OSC commands do on a real
// mixer, so a mock OSC receiver can drive it.
type MockServer struct {
	listener net.Listener
	server   *http.Server

	mu          sync.Mutex
	composition map[string]any
	// Status, when non-zero, is returned instead of the composition.
	Status   int
	requests int
}

func NewMockServer(composition map[string]any) (*MockServer, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	if composition == nil {
		composition = MockComposition()
	}
	m := &MockServer{listener: ln, composition: composition}

	mux := http.NewServeMux()
	mux.HandleFunc(CompositionPath, m.handleComposition)
	m.server = &http.Server{Handler: mux}
	go m.server.Serve(ln)
	return m, nil
}

func (m *MockServer) Port() int {
	return m.listener.Addr().(*net.TCPAddr).Port
}

func (m *MockServer) Host() string {
	return "127.0.0.1"
}

func (m *MockServer) Close() error {
	return m.server.Close()
}

// Requests returns how many composition requests were served.
func (m *MockServer) Requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests
}

func (m *MockServer) SetStatus(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Status = code
}

func (m *MockServer) SetComposition(doc map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.composition = doc
}

func (m *MockServer) handleComposition(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests++

	if m.Status != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(m.Status)
		json.NewEncoder(w).Encode(map[string]string{"error": http.StatusText(m.Status)})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m.composition)
}

// ConnectClip makes the clip at the 1-based position the only live clip
// on its layer.
func (m *MockServer) ConnectClip(layer, column int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clips := m.layerClips(layer)
	for i, c := range clips {
		setConnected(c, i == column-1)
	}
}

// ConnectColumn connects the clip at column on every layer.
func (m *MockServer) ConnectColumn(column int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	layers, _ := m.composition["layers"].([]any)
	for l := range layers {
		clips := m.layerClips(l + 1)
		for i, c := range clips {
			setConnected(c, i == column-1)
		}
	}
}

func (m *MockServer) DisconnectAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	layers, _ := m.composition["layers"].([]any)
	for l := range layers {
		for _, c := range m.layerClips(l + 1) {
			setConnected(c, false)
		}
	}
}

func (m *MockServer) layerClips(layer int) []any {
	layers, _ := m.composition["layers"].([]any)
	if layer < 1 || layer > len(layers) {
		return nil
	}
	l, _ := layers[layer-1].(map[string]any)
	clips, _ := l["clips"].([]any)
	return clips
}

func setConnected(clip any, on bool) {
	c, ok := clip.(map[string]any)
	if !ok {
		return
	}
	v := 0.0
	if on {
		v = 1
	}
	c["connected"] = map[string]any{"value": v}
}

// Apply mutates the composition the way the mixer reacts to an OSC
// command address. Unknown addresses are ignored and reported as false.
func (m *MockServer) Apply(addr string) bool {
	parts := strings.Split(strings.Trim(addr, "/"), "/")
	switch {
	case len(parts) == 2 && parts[0] == "composition" && parts[1] == "disconnectall":
		m.DisconnectAll()
		return true
	case len(parts) == 6 && parts[0] == "composition" && parts[1] == "layers" && parts[3] == "clips" && parts[5] == "connect":
		l, err1 := strconv.Atoi(parts[2])
		c, err2 := strconv.Atoi(parts[4])
		if err1 != nil || err2 != nil {
			return false
		}
		m.ConnectClip(l, c)
		return true
	case len(parts) == 4 && parts[0] == "composition" && parts[1] == "columns" && parts[3] == "connect":
		c, err := strconv.Atoi(parts[2])
		if err != nil {
			return false
		}
		m.ConnectColumn(c)
		return true
	}
	return false
}
