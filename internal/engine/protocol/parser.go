package protocol

import (
	"errors"
	"time"

	"Go2NetSketch/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var (
	ErrNotIP        = errors.New("not an IPv4 or IPv6 packet")
	ErrNotTransport = errors.New("not a TCP or UDP packet")
)

// ParsePacket extracts the five-tuple and wire length from a decoded packet.
func ParsePacket(packet gopacket.Packet) (*model.PacketInfo, error) {
	info := &model.PacketInfo{
		Timestamp: time.Now(), // Default to now, overwritten by capture metadata if available
		Length:    len(packet.Data()),
	}
	if meta := packet.Metadata(); meta != nil {
		if !meta.Timestamp.IsZero() {
			info.Timestamp = meta.Timestamp
		}
		if meta.Length > 0 {
			info.Length = meta.Length
		}
	}

	ft := &info.FiveTuple
	if l, ok := packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4); ok {
		ft.SrcIP = l.SrcIP
		ft.DstIP = l.DstIP
		ft.Protocol = uint8(l.Protocol)
	} else if l, ok := packet.Layer(layers.LayerTypeIPv6).(*layers.IPv6); ok {
		ft.SrcIP = l.SrcIP
		ft.DstIP = l.DstIP
		ft.Protocol = uint8(l.NextHeader)
	} else {
		return nil, ErrNotIP
	}

	if l, ok := packet.Layer(layers.LayerTypeTCP).(*layers.TCP); ok {
		ft.SrcPort = uint16(l.SrcPort)
		ft.DstPort = uint16(l.DstPort)
	} else if l, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP); ok {
		ft.SrcPort = uint16(l.SrcPort)
		ft.DstPort = uint16(l.DstPort)
	} else {
		return nil, ErrNotTransport
	}

	return info, nil
}

// ParseEthernet decodes raw Ethernet frame bytes and parses them.
func ParseEthernet(data []byte) (*model.PacketInfo, error) {
	return ParsePacket(gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default))
}
