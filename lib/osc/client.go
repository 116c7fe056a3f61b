package osc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"showcall/lib/connstate"
)

const (
	DefaultLocalPort = 57121

	maxReopenInterval = 30 * time.Second
)

var ErrNotOpen = errors.New("osc: socket not open")

type Options struct {
	Host string
	Port int
	// LocalPort is the UDP port the socket binds to. Zero picks an
	// ephemeral port.
	LocalPort int
	Logger    *slog.Logger
}

// Client sends OSC messages over UDP. Sends are fire-and-forget: a nil
// error means the datagram was handed to the socket, not that the mixer
// acted on it.
type Client struct {
	opts  Options
	log   *slog.Logger
	state *connstate.Tracker

	mu   sync.Mutex
	conn *net.UDPConn
	dst  *net.UDPAddr

	reopening atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// Dial opens the socket. A socket that cannot be opened yet is not
// fatal: the client reports the error through State and keeps retrying
// in the background until Close.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.Port < 1 || opts.Port > 65535 {
		return nil, fmt.Errorf("osc: invalid port %d", opts.Port)
	}
	if opts.LocalPort < 0 || opts.LocalPort > 65535 {
		return nil, fmt.Errorf("osc: invalid local port %d", opts.LocalPort)
	}
	if opts.Host == "" {
		opts.Host = "localhost"
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	c := &Client{
		opts:  opts,
		log:   log.With(slog.String("component", "osc")),
		state: connstate.NewTracker(),
	}
	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.open(); err != nil {
		c.state.MarkFailed(err)
		c.log.Warn("osc socket unavailable", slog.String("error", err.Error()))
		c.scheduleReopen()
	}
	return c, nil
}

func (c *Client) Target() string {
	return net.JoinHostPort(c.opts.Host, strconv.Itoa(c.opts.Port))
}

// State reports socket health for display. It says nothing about whether
// the far end is listening.
func (c *Client) State() connstate.State {
	return c.state.Snapshot()
}

func (c *Client) open() error {
	dst, err := net.ResolveUDPAddr("udp", c.Target())
	if err != nil {
		return fmt.Errorf("osc: resolve %s: %w", c.Target(), err)
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: c.opts.LocalPort})
	if err != nil {
		return fmt.Errorf("osc: bind :%d: %w", c.opts.LocalPort, err)
	}

	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.dst = dst
	c.mu.Unlock()
	if old != nil {
		old.Close()
	}

	c.state.MarkOK()
	c.log.Info("osc ready", slog.String("target", c.Target()), slog.String("local", conn.LocalAddr().String()))
	return nil
}

func (c *Client) scheduleReopen() {
	if !c.reopening.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer c.reopening.Store(false)

		b := backoff.NewExponentialBackOff()
		b.MaxInterval = maxReopenInterval
		for {
			sleep := b.NextBackOff()
			if sleep == backoff.Stop {
				sleep = maxReopenInterval
			}
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(sleep):
			}
			err := c.open()
			if err == nil {
				return
			}
			c.state.MarkFailed(err)
			c.log.Debug("osc reopen failed", slog.String("error", err.Error()), slog.Duration("retry", sleep))
		}
	}()
}

// Send writes one message. It is attempted even when State reports an
// error, since the flag may be stale.
func (c *Client) Send(addr string, args ...any) error {
	msg, err := Encode(addr, args...)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn, dst := c.conn, c.dst
	c.mu.Unlock()
	if conn == nil {
		return ErrNotOpen
	}

	if _, err := conn.WriteToUDP(msg, dst); err != nil {
		err = fmt.Errorf("osc: send %s: %w", addr, err)
		c.state.MarkFailed(err)
		c.log.Error("osc send failed", slog.String("address", addr), slog.String("error", err.Error()))
		c.scheduleReopen()
		return err
	}
	c.log.Debug("osc sent", slog.String("address", addr), slog.Any("args", args))
	return nil
}

// SendInt sends the single-integer form used by every mixer command.
func (c *Client) SendInt(addr string, v int32) error {
	return c.Send(addr, v)
}

func (c *Client) Close() error {
	c.cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
