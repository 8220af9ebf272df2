package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	lnerrors "github.com/tturner/linknode/internal/errors"
)

// startReplyServer answers every datagram with reply.
func startReplyServer(t *testing.T, reply []byte) (*net.UDPConn, <-chan []byte) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	got := make(chan []byte, 8)
	go func() {
		buf := make([]byte, 65535)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			got <- append([]byte(nil), buf[:n]...)
			if reply != nil {
				_, _ = conn.WriteToUDP(reply, addr)
			}
		}
	}()
	return conn, got
}

func TestUDPTransportExchange(t *testing.T) {
	server, got := startReplyServer(t, []byte{0x21, 0x43, 0, 0, 0, 0, 0, 0})

	tr := NewUDPTransport(2 * time.Second)
	ctx := context.Background()
	if err := tr.Connect(ctx, server.LocalAddr().String()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer tr.Disconnect()

	if !tr.IsConnected() {
		t.Fatal("transport should be connected")
	}
	if tr.LocalAddr() == nil || tr.RemoteAddr() == nil {
		t.Fatal("addresses should be set after Connect")
	}

	payload := bytes.Repeat([]byte{0xAB}, 64)
	reply, err := tr.Exchange(ctx, payload, 8)
	if err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}
	if len(reply) != 8 || reply[0] != 0x21 || reply[1] != 0x43 {
		t.Errorf("reply = %x", reply)
	}

	select {
	case sent := <-got:
		if !bytes.Equal(sent, payload) {
			t.Errorf("server received %d bytes, want the 64-byte payload", len(sent))
		}
	case <-time.After(time.Second):
		t.Fatal("server did not receive the update")
	}
}

func TestUDPTransportTimeout(t *testing.T) {
	server, _ := startReplyServer(t, nil)

	tr := NewUDPTransport(50 * time.Millisecond)
	ctx := context.Background()
	if err := tr.Connect(ctx, server.LocalAddr().String()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer tr.Disconnect()

	_, err := tr.Exchange(ctx, []byte{1}, 8)
	if err == nil {
		t.Fatal("Exchange should time out without a reply")
	}
	if errors.Is(err, lnerrors.ErrNotSent) {
		t.Errorf("timeout after a send must not be ErrNotSent: %v", err)
	}
	if !strings.Contains(err.Error(), "receive mitigation") {
		t.Errorf("error should name the receive step: %v", err)
	}
}

func TestUDPTransportCancel(t *testing.T) {
	server, _ := startReplyServer(t, nil)

	tr := NewUDPTransport(0)
	if err := tr.Connect(context.Background(), server.LocalAddr().String()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer tr.Disconnect()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := tr.Exchange(ctx, []byte{1}, 8)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Exchange err = %v, want context.Canceled", err)
	}
}

func TestUDPTransportDoubleConnect(t *testing.T) {
	tr := NewUDPTransport(0)
	ctx := context.Background()

	if err := tr.Connect(ctx, "127.0.0.1:4356"); err != nil {
		t.Fatalf("first Connect failed: %v", err)
	}
	if err := tr.Connect(ctx, "127.0.0.1:4356"); err == nil {
		t.Error("second Connect should fail with 'already connected'")
	}

	if err := tr.Disconnect(); err != nil {
		t.Errorf("Disconnect failed: %v", err)
	}
	if tr.IsConnected() {
		t.Error("Transport should not be connected after Disconnect()")
	}
}

func TestUDPTransportNotConnected(t *testing.T) {
	tr := NewUDPTransport(0)
	ctx := context.Background()
	if err := tr.Send(ctx, []byte{1}); err == nil {
		t.Error("Send before Connect should fail")
	}
	if _, err := tr.Receive(ctx, 8); err == nil {
		t.Error("Receive before Connect should fail")
	}
	if _, err := tr.Exchange(ctx, []byte{1}, 8); !errors.Is(err, lnerrors.ErrNotSent) {
		t.Errorf("Exchange before Connect = %v, want ErrNotSent", err)
	}
	if err := tr.Connect(ctx, "no-port"); err == nil {
		t.Error("Connect without port should fail")
	}
}
