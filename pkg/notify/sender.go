package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// DefaultAddress is the local monitoring client's socket.
const DefaultAddress = "127.0.0.1:3030"

// Sender delivers a notification payload.
type Sender interface {
	Send(ctx context.Context, payload map[string]interface{}) error
}

// TCPSender writes each payload as one JSON line to a TCP listener and closes
// the connection without waiting for a reply.
type TCPSender struct {
	Address string
	Timeout time.Duration
}

// NewTCPSender returns a sender for address, falling back to DefaultAddress.
func NewTCPSender(address string, timeout time.Duration) *TCPSender {
	address = strings.TrimSpace(address)
	if address == "" {
		address = DefaultAddress
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &TCPSender{Address: address, Timeout: timeout}
}

// Send implements Sender.
func (s *TCPSender) Send(ctx context.Context, payload map[string]interface{}) error {
	if s == nil {
		return errors.New("tcp sender is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	body = append(body, '\n')

	address := s.Address
	if address == "" {
		address = DefaultAddress
	}
	dialer := net.Dialer{Timeout: s.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", address, err)
	}
	defer conn.Close()

	if s.Timeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.Timeout))
	}
	if _, err := conn.Write(body); err != nil {
		return fmt.Errorf("write notification to %s: %w", address, err)
	}
	return nil
}

// Discard drops every payload. It backs the notify.disabled setting.
type Discard struct{}

// Send implements Sender.
func (Discard) Send(context.Context, map[string]interface{}) error { return nil }

var (
	_ Sender = (*TCPSender)(nil)
	_ Sender = Discard{}
)
