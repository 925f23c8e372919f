// Package ipc hands the transfer object to the cold-update helper over a
// single-shot local channel: one listener, one client, one payload.
package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/alexisbeaulieu97/feedupdate/internal/logger"
	feederrors "github.com/alexisbeaulieu97/feedupdate/pkg/errors"
)

// ChannelFlag is the helper flag carrying the channel name.
const ChannelFlag = "--channel"

// DefaultConnectTimeout bounds the wait for the helper to connect.
const DefaultConnectTimeout = 30 * time.Second

var (
	// ErrChildExited is returned when the helper exits before connecting.
	ErrChildExited = errors.New("helper exited before connecting")
	// ErrElevationDeclined is returned when the user refuses elevation.
	ErrElevationDeclined = errors.New("elevation was declined")
)

// Listener is a local channel accepting exactly one client.
type Listener interface {
	Name() string
	Accept(ctx context.Context) (net.Conn, error)
	Close() error
}

// Request describes one handoff.
type Request struct {
	// Channel names the local channel, normally derived from the update
	// process name and the host pid.
	Channel string
	Process ProcessSpec
	Payload []byte
}

// Handoff delivers a payload to a freshly started helper.
type Handoff interface {
	Send(ctx context.Context, req Request) error
}

// LocalHandoff creates the channel, starts the helper with the channel name
// appended to its arguments, waits for it to connect, writes the payload and
// tears the channel down.
type LocalHandoff struct {
	Launcher       Launcher
	ConnectTimeout time.Duration
	Logger         *logger.Logger
	listen         func(name string) (Listener, error)
}

// NewHandoff returns a handoff using launcher.
func NewHandoff(launcher Launcher, connectTimeout time.Duration, log *logger.Logger) *LocalHandoff {
	return &LocalHandoff{Launcher: launcher, ConnectTimeout: connectTimeout, Logger: log}
}

func (h *LocalHandoff) Send(ctx context.Context, req Request) error {
	if req.Channel == "" {
		return feederrors.NewHandoffError("listen", errors.New("channel name is required"))
	}
	if h.Launcher == nil {
		return feederrors.NewHandoffError("start", errors.New("no launcher configured"))
	}

	listen := h.listen
	if listen == nil {
		listen = Listen
	}
	ln, err := listen(req.Channel)
	if err != nil {
		return feederrors.NewHandoffError("listen", err)
	}
	defer ln.Close()

	spec := req.Process
	spec.Args = append(append([]string(nil), spec.Args...), ChannelFlag, ln.Name())
	proc, err := h.Launcher.Start(ctx, spec)
	if err != nil {
		return feederrors.NewHandoffError("start", err)
	}
	h.Logger.WithFields(map[string]any{
		"channel":  ln.Name(),
		"pid":      proc.Pid(),
		"elevated": spec.Elevated,
	}).Debug("helper started")

	timeout := h.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	acceptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	go func() {
		select {
		case <-proc.Done():
			cancel()
		case <-acceptCtx.Done():
		}
	}()

	conn, err := ln.Accept(acceptCtx)
	if err != nil {
		if exited(proc) {
			return feederrors.NewHandoffError("connect", ErrChildExited)
		}
		return feederrors.NewHandoffError("connect", err)
	}
	defer conn.Close()

	if _, err := conn.Write(req.Payload); err != nil {
		return feederrors.NewHandoffError("write", err)
	}
	return nil
}

func exited(p Process) bool {
	select {
	case <-p.Done():
		return true
	default:
		return false
	}
}

// Receive connects to the named channel and reads the whole payload.
func Receive(ctx context.Context, name string) ([]byte, error) {
	conn, err := Dial(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", name, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	data, err := io.ReadAll(conn)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return data, nil
}

// acceptOnce runs accept in the background so ctx can abort it by closing
// the listener.
func acceptOnce(ctx context.Context, accept func() (net.Conn, error), closeFn func() error) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := accept()
		ch <- result{conn, err}
	}()

	select {
	case r := <-ch:
		return r.conn, r.err
	case <-ctx.Done():
		_ = closeFn()
		if r := <-ch; r.conn != nil {
			_ = r.conn.Close()
		}
		return nil, ctx.Err()
	}
}
