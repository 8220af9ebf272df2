// Package capture records harness datagrams to a pcap file.
//
// No live capture is involved: each update and mitigation reply is wrapped in
// synthesized Ethernet/IPv4/UDP headers so the file opens in Wireshark and
// can be fed back to `linknode replay`.
package capture

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	lnerrors "github.com/tturner/linknode/internal/errors"
)

// Direction of a recorded datagram relative to the link node.
type Direction int

const (
	Outbound Direction = iota
	Inbound
)

var (
	linkNodeMAC    = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	centralNodeMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

// Exchanger is the subset of the transport the recorder wraps.
type Exchanger interface {
	Exchange(ctx context.Context, payload []byte, size int) ([]byte, error)
}

// Recorder writes datagrams between one local and one remote endpoint.
type Recorder struct {
	mu      sync.Mutex
	file    *os.File
	writer  *pcapgo.Writer
	local   *net.UDPAddr
	remote  *net.UDPAddr
	packets int
	ipID    uint16
}

// NewRecorder creates path and writes the pcap file header.
func NewRecorder(path string, local, remote *net.UDPAddr) (*Recorder, error) {
	if local == nil || remote == nil {
		return nil, fmt.Errorf("recorder needs local and remote addresses")
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create pcap file: %w", err)
	}

	writer := pcapgo.NewWriter(file)
	if err := writer.WriteFileHeader(65535, layers.LinkTypeEthernet); err != nil {
		file.Close()
		return nil, fmt.Errorf("write pcap header: %w", err)
	}

	return &Recorder{
		file:   file,
		writer: writer,
		local:  local,
		remote: remote,
	}, nil
}

// Record appends one datagram to the capture.
func (r *Recorder) Record(dir Direction, payload []byte, ts time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.writer == nil {
		return fmt.Errorf("recorder closed")
	}

	src, dst := r.local, r.remote
	srcMAC, dstMAC := linkNodeMAC, centralNodeMAC
	if dir == Inbound {
		src, dst = dst, src
		srcMAC, dstMAC = dstMAC, srcMAC
	}

	r.ipID++
	frame, err := buildFrame(srcMAC, dstMAC, src, dst, r.ipID, payload)
	if err != nil {
		return err
	}

	if err := r.writer.WritePacket(gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: len(frame),
		Length:        len(frame),
	}, frame); err != nil {
		return fmt.Errorf("write packet: %w", err)
	}
	r.packets++
	return nil
}

func buildFrame(srcMAC, dstMAC net.HardwareAddr, src, dst *net.UDPAddr, id uint16, payload []byte) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Id:       id,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    ipv4(src.IP),
		DstIP:    ipv4(dst.IP),
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(src.Port),
		DstPort: layers.UDPPort(dst.Port),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, fmt.Errorf("set checksum layer: %w", err)
	}

	buffer := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buffer, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("serialize packet: %w", err)
	}
	return buffer.Bytes(), nil
}

// ipv4 maps unspecified or IPv6 addresses onto an IPv4 placeholder.
func ipv4(ip net.IP) net.IP {
	if v4 := ip.To4(); v4 != nil && !v4.IsUnspecified() {
		return v4
	}
	return net.IPv4(127, 0, 0, 1).To4()
}

// Wrap returns an Exchanger that records every datagram passed through next.
func (r *Recorder) Wrap(next Exchanger) Exchanger {
	return &recordingExchanger{rec: r, next: next}
}

type recordingExchanger struct {
	rec  *Recorder
	next Exchanger
}

func (e *recordingExchanger) Exchange(ctx context.Context, payload []byte, size int) ([]byte, error) {
	sentAt := time.Now()
	reply, err := e.next.Exchange(ctx, payload, size)
	if errors.Is(err, lnerrors.ErrNotSent) {
		return nil, err
	}
	if recErr := e.rec.Record(Outbound, payload, sentAt); recErr != nil {
		return nil, recErr
	}
	if err != nil {
		return nil, err
	}
	if err := e.rec.Record(Inbound, reply, time.Now()); err != nil {
		return nil, err
	}
	return reply, nil
}

// PacketCount returns the number of datagrams written so far.
func (r *Recorder) PacketCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.packets
}

// Close closes the pcap file (idempotent)
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.writer = nil
	return err
}
