// Package sender delivers one framed batch per TCP connection.
package sender

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Sender dials the listener, writes a payload and closes the connection.
type Sender struct {
	addr         string
	dialer       net.Dialer
	writeTimeout time.Duration
}

// New creates a Sender for addr. Zero timeouts disable the respective deadline.
func New(addr string, dialTimeout, writeTimeout time.Duration) *Sender {
	return &Sender{
		addr:         addr,
		dialer:       net.Dialer{Timeout: dialTimeout},
		writeTimeout: writeTimeout,
	}
}

// Addr returns the listener address.
func (s *Sender) Addr() string {
	return s.addr
}

// Send opens a connection, writes payload in full and closes the write side
// so the listener sees EOF after the last batch.
func (s *Sender) Send(ctx context.Context, payload []byte) error {
	conn, err := s.dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.addr, err)
	}
	defer conn.Close()

	if s.writeTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}

	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("write %d bytes to %s: %w", len(payload), s.addr, err)
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.CloseWrite(); err != nil {
			return fmt.Errorf("close write: %w", err)
		}
	}
	return nil
}
