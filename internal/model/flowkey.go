package model

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"strings"

	"Go2NetSketch/internal/config"
)

const (
	IPByteSize    = 16
	PortByteSize  = 2
	ProtoByteSize = 1

	MaxFlowSize = 37 // IPv6(16) + IPv6(16) + Port(2) + Port(2) + Proto(1) = 37
)

var zeroIP = make(net.IP, IPByteSize)

// FieldByteSize returns the encoded width of a flow field, or 0 if unknown.
func FieldByteSize(field string) int {
	switch field {
	case config.FieldSrcIP, config.FieldDstIP:
		return IPByteSize
	case config.FieldSrcPort, config.FieldDstPort:
		return PortByteSize
	case config.FieldProtocol:
		return ProtoByteSize
	default:
		return 0
	}
}

// FlowSize returns the encoded width of a flow key made of fields.
func FlowSize(fields []string) int {
	n := 0
	for _, f := range fields {
		n += FieldByteSize(f)
	}
	return n
}

// EncodeFlow appends the binary flow key for ft to buf. IPs are stored in
// 16-byte form, ports big-endian.
func EncodeFlow(buf []byte, fields []string, ft *FiveTuple) []byte {
	for _, f := range fields {
		switch f {
		case config.FieldSrcIP:
			buf = append(buf, ip16(ft.SrcIP)...)
		case config.FieldDstIP:
			buf = append(buf, ip16(ft.DstIP)...)
		case config.FieldSrcPort:
			buf = binary.BigEndian.AppendUint16(buf, ft.SrcPort)
		case config.FieldDstPort:
			buf = binary.BigEndian.AppendUint16(buf, ft.DstPort)
		case config.FieldProtocol:
			buf = append(buf, ft.Protocol)
		}
	}
	return buf
}

// DecodeFlow renders a binary flow key as space-separated text.
func DecodeFlow(flow []byte, fields []string) string {
	if len(flow) < FlowSize(fields) {
		return fmt.Sprintf("%x", flow)
	}
	parts := make([]string, 0, len(fields))
	offset := 0
	for _, f := range fields {
		switch f {
		case config.FieldSrcIP, config.FieldDstIP:
			parts = append(parts, net.IP(flow[offset:offset+IPByteSize]).String())
			offset += IPByteSize
		case config.FieldSrcPort, config.FieldDstPort:
			parts = append(parts, strconv.Itoa(int(binary.BigEndian.Uint16(flow[offset:]))))
			offset += PortByteSize
		case config.FieldProtocol:
			parts = append(parts, strconv.Itoa(int(flow[offset])))
			offset += ProtoByteSize
		}
	}
	return strings.Join(parts, " ")
}

// ParseFlow is the inverse of DecodeFlow.
func ParseFlow(text string, fields []string) ([]byte, error) {
	parts := strings.Fields(text)
	if len(parts) != len(fields) {
		return nil, fmt.Errorf("flow %q: expected %d fields %v, got %d", text, len(fields), fields, len(parts))
	}
	buf := make([]byte, 0, FlowSize(fields))
	for i, f := range fields {
		switch f {
		case config.FieldSrcIP, config.FieldDstIP:
			ip := net.ParseIP(parts[i])
			if ip == nil {
				return nil, fmt.Errorf("flow %q: invalid %s %q", text, f, parts[i])
			}
			buf = append(buf, ip.To16()...)
		case config.FieldSrcPort, config.FieldDstPort:
			port, err := strconv.ParseUint(parts[i], 10, 16)
			if err != nil {
				return nil, fmt.Errorf("flow %q: invalid %s: %w", text, f, err)
			}
			buf = binary.BigEndian.AppendUint16(buf, uint16(port))
		case config.FieldProtocol:
			proto, err := strconv.ParseUint(parts[i], 10, 8)
			if err != nil {
				return nil, fmt.Errorf("flow %q: invalid %s: %w", text, f, err)
			}
			buf = append(buf, byte(proto))
		default:
			return nil, fmt.Errorf("unknown flow field %q", f)
		}
	}
	return buf, nil
}

func ip16(ip net.IP) net.IP {
	if v := ip.To16(); v != nil {
		return v
	}
	return zeroIP
}
