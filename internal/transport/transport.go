// Package transport carries link node updates to the central node over UDP.
package transport

// Datagram transport for update/mitigation exchanges

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	lnerrors "github.com/tturner/linknode/internal/errors"
)

// UDPTransport sends updates from an unconnected local socket and reads the
// mitigation reply on the same socket.
type UDPTransport struct {
	conn    *net.UDPConn
	addr    *net.UDPAddr
	timeout time.Duration
	connMu  sync.RWMutex
}

// NewUDPTransport creates a transport. A zero timeout blocks on receive until
// a reply arrives or the context is cancelled.
func NewUDPTransport(timeout time.Duration) *UDPTransport {
	return &UDPTransport{timeout: timeout}
}

// Connect binds a local UDP socket and resolves the central node address.
func (t *UDPTransport) Connect(ctx context.Context, addr string) error {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if t.conn != nil {
		return fmt.Errorf("already connected")
	}

	var resolver net.Resolver
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("split address %q: %w", addr, err)
	}
	ips, err := resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("resolve UDP address: %w", err)
	}
	udpAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(pickIPv4(ips).String(), port))
	if err != nil {
		return fmt.Errorf("resolve UDP address: %w", err)
	}

	// Bind to local address (use :0 to let OS choose port)
	localAddr, err := net.ResolveUDPAddr("udp", ":0")
	if err != nil {
		return fmt.Errorf("resolve local UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", localAddr)
	if err != nil {
		return fmt.Errorf("listen UDP: %w", err)
	}

	t.conn = conn
	t.addr = udpAddr

	return nil
}

func pickIPv4(ips []net.IPAddr) net.IP {
	for _, ip := range ips {
		if v4 := ip.IP.To4(); v4 != nil {
			return v4
		}
	}
	return ips[0].IP
}

// Disconnect closes the UDP socket
func (t *UDPTransport) Disconnect() error {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if t.conn == nil {
		return nil
	}

	err := t.conn.Close()
	t.conn = nil
	t.addr = nil

	return err
}

// Send writes one datagram to the central node
func (t *UDPTransport) Send(ctx context.Context, data []byte) error {
	t.connMu.RLock()
	defer t.connMu.RUnlock()

	if t.conn == nil || t.addr == nil {
		return fmt.Errorf("not connected")
	}

	deadline := time.Time{}
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	if _, err := t.conn.WriteToUDP(data, t.addr); err != nil {
		return fmt.Errorf("write UDP: %w", err)
	}
	return nil
}

// Receive reads one datagram of at most size bytes. Longer datagrams are truncated.
func (t *UDPTransport) Receive(ctx context.Context, size int) ([]byte, error) {
	t.connMu.RLock()
	defer t.connMu.RUnlock()

	if t.conn == nil {
		return nil, fmt.Errorf("not connected")
	}

	deadline := time.Time{}
	if t.timeout > 0 {
		deadline = time.Now().Add(t.timeout)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok && (deadline.IsZero() || ctxDeadline.Before(deadline)) {
		deadline = ctxDeadline
	}
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}

	// Unblock the read when the run is interrupted.
	done := make(chan struct{})
	defer close(done)
	go func(conn *net.UDPConn) {
		select {
		case <-ctx.Done():
			_ = conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}(t.conn)

	buffer := make([]byte, size)
	n, _, err := t.conn.ReadFromUDP(buffer)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("read UDP: %w", err)
	}

	return buffer[:n], nil
}

// Exchange sends one update and waits for a reply of at most size bytes.
// A failed send is reported as ErrNotSent.
func (t *UDPTransport) Exchange(ctx context.Context, payload []byte, size int) ([]byte, error) {
	if err := t.Send(ctx, payload); err != nil {
		return nil, fmt.Errorf("%w: %w", lnerrors.ErrNotSent, err)
	}
	reply, err := t.Receive(ctx, size)
	if err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("receive mitigation: %w", err)
	}
	return reply, err
}

// IsConnected returns whether the transport is connected
func (t *UDPTransport) IsConnected() bool {
	t.connMu.RLock()
	defer t.connMu.RUnlock()
	return t.conn != nil
}

// LocalAddr returns the bound local address, or nil when disconnected.
func (t *UDPTransport) LocalAddr() *net.UDPAddr {
	t.connMu.RLock()
	defer t.connMu.RUnlock()
	if t.conn == nil {
		return nil
	}
	addr, _ := t.conn.LocalAddr().(*net.UDPAddr)
	return addr
}

// RemoteAddr returns the resolved central node address.
func (t *UDPTransport) RemoteAddr() *net.UDPAddr {
	t.connMu.RLock()
	defer t.connMu.RUnlock()
	return t.addr
}
