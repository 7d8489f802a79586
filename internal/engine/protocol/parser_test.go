package protocol

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	return buf.Bytes()
}

func ethernet(ethType layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
		EthernetType: ethType,
	}
}

func TestParseEthernet_IPv4TCP(t *testing.T) {
	ip := &layers.IPv4{
		Version: 4, TTL: 64, Protocol: layers.IPProtocolTCP,
		SrcIP: net.IPv4(10, 0, 0, 1), DstIP: net.IPv4(10, 0, 0, 2),
	}
	tcp := &layers.TCP{SrcPort: 40000, DstPort: 80, SYN: true}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	data := serialize(t, ethernet(layers.EthernetTypeIPv4), ip, tcp, gopacket.Payload("hello"))

	info, err := ParseEthernet(data)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", info.FiveTuple.SrcIP.String())
	assert.Equal(t, "10.0.0.2", info.FiveTuple.DstIP.String())
	assert.Equal(t, uint16(40000), info.FiveTuple.SrcPort)
	assert.Equal(t, uint16(80), info.FiveTuple.DstPort)
	assert.Equal(t, uint8(6), info.FiveTuple.Protocol)
	assert.Equal(t, len(data), info.Length)
}

func TestParseEthernet_IPv6UDP(t *testing.T) {
	ip := &layers.IPv6{
		Version: 6, HopLimit: 64, NextHeader: layers.IPProtocolUDP,
		SrcIP: net.ParseIP("2001:db8::1"), DstIP: net.ParseIP("2001:db8::2"),
	}
	udp := &layers.UDP{SrcPort: 5353, DstPort: 53}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	data := serialize(t, ethernet(layers.EthernetTypeIPv6), ip, udp, gopacket.Payload("q"))

	info, err := ParseEthernet(data)
	require.NoError(t, err)
	assert.Equal(t, "2001:db8::1", info.FiveTuple.SrcIP.String())
	assert.Equal(t, uint16(53), info.FiveTuple.DstPort)
	assert.Equal(t, uint8(17), info.FiveTuple.Protocol)
}

func TestParseEthernet_Rejects(t *testing.T) {
	arp := &layers.ARP{
		AddrType: layers.LinkTypeEthernet, Protocol: layers.EthernetTypeIPv4,
		HwAddressSize: 6, ProtAddressSize: 4, Operation: layers.ARPRequest,
		SourceHwAddress: []byte{0, 1, 2, 3, 4, 5}, SourceProtAddress: []byte{10, 0, 0, 1},
		DstHwAddress: []byte{0, 0, 0, 0, 0, 0}, DstProtAddress: []byte{10, 0, 0, 2},
	}
	_, err := ParseEthernet(serialize(t, ethernet(layers.EthernetTypeARP), arp))
	assert.ErrorIs(t, err, ErrNotIP)

	icmp := &layers.IPv4{
		Version: 4, TTL: 64, Protocol: layers.IPProtocolICMPv4,
		SrcIP: net.IPv4(10, 0, 0, 1), DstIP: net.IPv4(10, 0, 0, 2),
	}
	echo := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0)}
	_, err = ParseEthernet(serialize(t, ethernet(layers.EthernetTypeIPv4), icmp, echo))
	assert.ErrorIs(t, err, ErrNotTransport)
}
