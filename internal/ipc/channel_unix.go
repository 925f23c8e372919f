//go:build !windows

package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
)

type unixListener struct {
	name string
	path string
	ln   *net.UnixListener
	once sync.Once
	used bool
	mu   sync.Mutex
}

// SocketPath is where the channel name lives on the filesystem.
func SocketPath(name string) string {
	return filepath.Join(os.TempDir(), name+".sock")
}

// Listen creates the named channel as a Unix domain socket.
func Listen(name string) (Listener, error) {
	path := SocketPath(name)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}
	ln.SetUnlinkOnClose(true)
	return &unixListener{name: name, path: path, ln: ln}, nil
}

func (l *unixListener) Name() string { return l.name }

func (l *unixListener) Accept(ctx context.Context) (net.Conn, error) {
	l.mu.Lock()
	if l.used {
		l.mu.Unlock()
		return nil, errors.New("channel already accepted a client")
	}
	l.used = true
	l.mu.Unlock()

	conn, err := acceptOnce(ctx, func() (net.Conn, error) { return l.ln.Accept() }, l.Close)
	if err != nil {
		return nil, err
	}
	// Single client: stop listening as soon as it arrived.
	_ = l.Close()
	return conn, nil
}

func (l *unixListener) Close() error {
	var err error
	l.once.Do(func() { err = l.ln.Close() })
	return err
}

// Dial connects to the named channel.
func Dial(ctx context.Context, name string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", SocketPath(name))
}
