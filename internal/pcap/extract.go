package pcap

// Extraction of update/mitigation datagrams from capture files

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Datagram is one UDP payload exchanged with the central node.
type Datagram struct {
	Timestamp time.Time
	SrcPort   uint16
	DstPort   uint16
	Payload   []byte
	// ToServer is true for updates sent to the central node port.
	ToServer bool
}

// Exchange pairs a captured update with the reply that followed it, if any.
type Exchange struct {
	Update Datagram
	Reply  *Datagram
}

type packetSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

func openSource(path string) (packetSource, *os.File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open pcap file: %w", err)
	}

	if r, err := pcapgo.NewReader(file); err == nil {
		return r, file, nil
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("rewind pcap file: %w", err)
	}
	ng, err := pcapgo.NewNgReader(file, pcapgo.DefaultNgReaderOptions)
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("read pcap header: %w", err)
	}
	return ng, file, nil
}

// ExtractDatagrams returns every UDP datagram to or from port, in file order.
func ExtractDatagrams(path string, port uint16) ([]Datagram, error) {
	source, file, err := openSource(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var out []Datagram
	for {
		data, ci, err := source.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return out, fmt.Errorf("read packet %d: %w", len(out)+1, err)
		}

		packet := gopacket.NewPacket(data, source.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, _ := udpLayer.(*layers.UDP)
		src, dst := uint16(udp.SrcPort), uint16(udp.DstPort)
		if src != port && dst != port {
			continue
		}
		out = append(out, Datagram{
			Timestamp: ci.Timestamp,
			SrcPort:   src,
			DstPort:   dst,
			Payload:   append([]byte(nil), udp.Payload...),
			ToServer:  dst == port,
		})
	}
	return out, nil
}

// ExtractExchanges pairs each update sent to port with the next reply from it.
func ExtractExchanges(path string, port uint16) ([]Exchange, error) {
	datagrams, err := ExtractDatagrams(path, port)
	if err != nil {
		return nil, err
	}

	var out []Exchange
	for i := 0; i < len(datagrams); i++ {
		d := datagrams[i]
		if !d.ToServer {
			continue
		}
		ex := Exchange{Update: d}
		if i+1 < len(datagrams) && !datagrams[i+1].ToServer {
			reply := datagrams[i+1]
			ex.Reply = &reply
			i++
		}
		out = append(out, ex)
	}
	return out, nil
}
