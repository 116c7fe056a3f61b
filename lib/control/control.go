// Package control turns operator intents into OSC commands for the mixer.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	AddrCut   = "/composition/tempocontroller/resync"
	AddrClear = "/composition/disconnectall"

	MethodOSC = "osc"
)

const (
	ActionTrigger       = "trigger"
	ActionTriggerColumn = "triggerColumn"
	ActionCut           = "cut"
	ActionClear         = "clear"
)

var ErrInvalidInput = errors.New("invalid input")

// Sender delivers a single-int OSC message. *osc.Client satisfies it.
type Sender interface {
	SendInt(addr string, v int32) error
}

func ClipAddress(layer, column int) string {
	return fmt.Sprintf("/composition/layers/%d/clips/%d/connect", layer, column)
}

func ColumnAddress(column int) string {
	return fmt.Sprintf("/composition/columns/%d/connect", column)
}

// Result is the outcome of one control action. It is returned by value
// and serialized as-is by the HTTP API.
type Result struct {
	OK     bool   `json:"ok"`
	Action string `json:"action"`
	Layer  int    `json:"layer,omitempty"`
	Column int    `json:"column,omitempty"`
	Method string `json:"method,omitempty"`
	Error  string `json:"error,omitempty"`

	err error
}

// Err returns the underlying failure, or nil when OK.
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	if r.err != nil {
		return r.err
	}
	return errors.New(r.Error)
}

func failed(r Result, err error) Result {
	r.OK = false
	r.Method = ""
	r.Error = err.Error()
	r.err = err
	return r
}

type Dispatcher struct {
	sender Sender
	log    *slog.Logger
}

func NewDispatcher(sender Sender, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{sender: sender, log: log}
}

func (d *Dispatcher) TriggerClip(layer, column int) Result {
	r := Result{Action: ActionTrigger, Layer: layer, Column: column}
	if layer < 1 || column < 1 {
		return failed(r, fmt.Errorf("%w: layer and column must be positive", ErrInvalidInput))
	}
	return d.send(r, ClipAddress(layer, column))
}

func (d *Dispatcher) TriggerColumn(column int) Result {
	r := Result{Action: ActionTriggerColumn, Column: column}
	if column < 1 {
		return failed(r, fmt.Errorf("%w: column must be positive", ErrInvalidInput))
	}
	return d.send(r, ColumnAddress(column))
}

func (d *Dispatcher) Cut() Result {
	return d.send(Result{Action: ActionCut}, AddrCut)
}

func (d *Dispatcher) Clear() Result {
	return d.send(Result{Action: ActionClear}, AddrClear)
}

func (d *Dispatcher) send(r Result, addr string) Result {
	if d.sender == nil {
		return failed(r, errors.New("osc not initialized"))
	}
	if err := d.sender.SendInt(addr, 1); err != nil {
		d.log.Warn("control send failed", "action", r.Action, "address", addr, "error", err)
		return failed(r, err)
	}
	d.log.Info("control sent", "action", r.Action, "address", addr)
	r.OK = true
	r.Method = MethodOSC
	return r
}

// MockSender accepts every message without a network. It backs tests
// and mock mode without a local receiver.
type MockSender struct {
	Log *slog.Logger

	mu   sync.Mutex
	sent []string
	err  error
}

func (m *MockSender) SendInt(addr string, v int32) error {
	if m.Log != nil {
		m.Log.Info("mock osc", "address", addr, "value", v)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, addr)
	return nil
}

// FailWith makes subsequent sends return err. Nil restores success.
func (m *MockSender) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockSender) Sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

// VerifyClip polls connected until the clip reports connected or ctx
// ends. It returns false on timeout.
func VerifyClip(ctx context.Context, interval time.Duration, connected func(ctx context.Context, layer, column int) (bool, error), layer, column int) bool {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if ok, err := connected(ctx, layer, column); err == nil && ok {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
		}
	}
}
