//go:build windows

package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/Microsoft/go-winio"
)

const pipePrefix = `\\.\pipe\`

type pipeListener struct {
	name string
	ln   net.Listener
	once sync.Once
	mu   sync.Mutex
	used bool
}

// PipePath is the named pipe backing a channel name.
func PipePath(name string) string {
	return pipePrefix + name
}

// Listen creates the named channel as a Windows named pipe.
func Listen(name string) (Listener, error) {
	ln, err := winio.ListenPipe(PipePath(name), &winio.PipeConfig{
		InputBufferSize:  4096,
		OutputBufferSize: 64 * 1024,
	})
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", PipePath(name), err)
	}
	return &pipeListener{name: name, ln: ln}, nil
}

func (l *pipeListener) Name() string { return l.name }

func (l *pipeListener) Accept(ctx context.Context) (net.Conn, error) {
	l.mu.Lock()
	if l.used {
		l.mu.Unlock()
		return nil, errors.New("channel already accepted a client")
	}
	l.used = true
	l.mu.Unlock()

	conn, err := acceptOnce(ctx, l.ln.Accept, l.Close)
	if err != nil {
		return nil, err
	}
	_ = l.Close()
	return conn, nil
}

func (l *pipeListener) Close() error {
	var err error
	l.once.Do(func() { err = l.ln.Close() })
	return err
}

// Dial connects to the named channel.
func Dial(ctx context.Context, name string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, PipePath(name))
}
