package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/lcalzada-xor/edgewatch/internal/core/domain"
	"github.com/lcalzada-xor/edgewatch/internal/core/ports"
)

// PcapSource replays a capture file as TrafficSamples, one per IPv4
// packet. It uses the pure-Go pcap reader so no libpcap is needed on
// the edge device. At end of file the source is exhausted and Next
// keeps returning nil.
type PcapSource struct {
	file   *os.File
	reader *pcapgo.Reader
	done   bool
}

var _ ports.SampleSource = (*PcapSource)(nil)

func OpenPcap(path string) (*PcapSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read capture header: %w", err)
	}
	return &PcapSource{file: f, reader: r}, nil
}

// Next returns the next IPv4 packet as a TrafficSample, skipping
// anything the decoder cannot shape into one.
func (p *PcapSource) Next(ctx context.Context) (domain.Sample, error) {
	if p.done {
		return nil, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, ci, err := p.reader.ReadPacketData()
		if err == io.EOF {
			p.done = true
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read packet: %w", err)
		}

		packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Lazy)
		ipLayer := packet.Layer(layers.LayerTypeIPv4)
		if ipLayer == nil {
			continue
		}
		ip := ipLayer.(*layers.IPv4)

		protocol := "other"
		port := 0
		if tcpLayer := packet.Layer(layers.LayerTypeTCP); tcpLayer != nil {
			tcp := tcpLayer.(*layers.TCP)
			protocol = "tcp"
			port = int(tcp.DstPort)
		} else if udpLayer := packet.Layer(layers.LayerTypeUDP); udpLayer != nil {
			udp := udpLayer.(*layers.UDP)
			protocol = "udp"
			port = int(udp.DstPort)
		} else if ip.Protocol == layers.IPProtocolICMPv4 {
			protocol = "icmp"
		} else {
			protocol = strconv.Itoa(int(ip.Protocol))
		}

		sample, err := domain.NewTrafficSample(
			ip.SrcIP.String(),
			ip.DstIP.String(),
			protocol,
			port,
			1,
			int64(ci.Length),
			ci.Timestamp,
		)
		if err != nil {
			continue
		}
		return sample, nil
	}
}

// Exhausted reports whether the capture has been fully replayed.
func (p *PcapSource) Exhausted() bool { return p.done }

func (p *PcapSource) Close() error {
	p.done = true
	return p.file.Close()
}
