package osc

import (
	"net"
	"sync"
	"time"
)

// MockServer is a UDP receiver standing in for the mixer's OSC input.
type MockServer struct {
	conn *net.UDPConn

	mu       sync.Mutex
	messages []Message
	handler  func(Message)
	notify   chan struct{}
}

func NewMockServer() (*MockServer, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		return nil, err
	}
	m := &MockServer{
		conn:   conn,
		notify: make(chan struct{}, 1),
	}
	go m.serve()
	return m, nil
}

func (m *MockServer) Port() int {
	return m.conn.LocalAddr().(*net.UDPAddr).Port
}

func (m *MockServer) Close() error {
	return m.conn.Close()
}

func (m *MockServer) serve() {
	buf := make([]byte, 65536)
	for {
		n, _, err := m.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		msg, err := Decode(buf[:n])
		if err != nil {
			continue
		}
		m.mu.Lock()
		m.messages = append(m.messages, msg)
		handler := m.handler
		m.mu.Unlock()
		if handler != nil {
			handler(msg)
		}
		select {
		case m.notify <- struct{}{}:
		default:
		}
	}
}

// HandleFunc registers fn to be called for every received message.
func (m *MockServer) HandleFunc(fn func(Message)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = fn
}

func (m *MockServer) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// WaitFor blocks until at least n messages arrived or the timeout passes,
// and returns what was received.
func (m *MockServer) WaitFor(n int, timeout time.Duration) []Message {
	deadline := time.After(timeout)
	for {
		msgs := m.Messages()
		if len(msgs) >= n {
			return msgs
		}
		select {
		case <-m.notify:
		case <-deadline:
			return m.Messages()
		}
	}
}
