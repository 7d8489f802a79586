package main

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestAddCheckRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.cms")

	out, err := run(t, "add", path, "alpha", "beta", "--width", "1000", "--depth", "5")
	require.NoError(t, err)
	assert.Equal(t, "alpha\t1\nbeta\t1\n", out)

	out, err = run(t, "add", path, "alpha", "-n", "4")
	require.NoError(t, err)
	assert.Equal(t, "alpha\t5\n", out)

	out, err = run(t, "check", path, "alpha", "beta", "gamma")
	require.NoError(t, err)
	assert.Equal(t, "alpha\t5\nbeta\t1\ngamma\t0\n", out)

	out, err = run(t, "remove", path, "alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha\t4\n", out)

	out, err = run(t, "check", path, "alpha", "--strategy", "mean")
	require.NoError(t, err)
	assert.Equal(t, "alpha\t4\n", out)
}

func TestRemove_MissingFile(t *testing.T) {
	_, err := run(t, "remove", filepath.Join(t.TempDir(), "none.cms"), "alpha")
	assert.Error(t, err)
}

func TestCheck_UnknownStrategy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.cms")
	_, err := run(t, "add", path, "alpha")
	require.NoError(t, err)
	_, err = run(t, "check", path, "alpha", "--strategy", "max")
	assert.Error(t, err)
}

func TestMergeAndInfo(t *testing.T) {
	dir := t.TempDir()
	a, b, merged := filepath.Join(dir, "a.cms"), filepath.Join(dir, "b.cms"), filepath.Join(dir, "ab.cms")

	_, err := run(t, "add", a, "alpha", "-n", "3", "--width", "1000", "--depth", "5")
	require.NoError(t, err)
	_, err = run(t, "add", b, "alpha", "gamma", "-n", "2", "--width", "1000", "--depth", "5")
	require.NoError(t, err)

	out, err := run(t, "merge", merged, a, b)
	require.NoError(t, err)
	assert.Contains(t, out, "merged 2 sketches")

	out, err = run(t, "check", merged, "alpha", "gamma")
	require.NoError(t, err)
	assert.Equal(t, "alpha\t5\ngamma\t2\n", out)

	out, err = run(t, "info", merged)
	require.NoError(t, err)
	assert.Contains(t, out, "width:          1,000")
	assert.Contains(t, out, "depth:          5")
	assert.Contains(t, out, "elements added: 7")
	assert.Contains(t, out, "size:           20 KiB")

	other := filepath.Join(dir, "other.cms")
	_, err = run(t, "add", other, "alpha", "--width", "10", "--depth", "5")
	require.NoError(t, err)
	_, err = run(t, "merge", filepath.Join(dir, "bad.cms"), a, other)
	assert.Error(t, err)
}

func udpFrame(t *testing.T, srcPort uint16) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolUDP,
		SrcIP: net.IPv4(192, 168, 1, 10), DstIP: net.IPv4(192, 168, 1, 1)}
	udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: 53}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload("x")))
	return buf.Bytes()
}

func TestPcap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	for i, port := range []uint16{1000, 1000, 1001, 1000} {
		data := udpFrame(t, port)
		ci := gopacket.CaptureInfo{Timestamp: time.Unix(1700000000+int64(i), 0), CaptureLength: len(data), Length: len(data)}
		require.NoError(t, w.WritePacket(ci, data))
	}
	require.NoError(t, f.Close())

	exportDir := filepath.Join(dir, "export")
	out, err := run(t, "pcap", path, "--fields", "SrcPort", "--top", "2", "--threshold", "2", "--export", exportDir)
	require.NoError(t, err)
	assert.Contains(t, out, "4 packets, 4 elements added (metric count)")
	assert.Regexp(t, `1\. 1000\s+3`, out)
	assert.Regexp(t, `2\. 1001\s+1`, out)
	assert.Contains(t, out, "over 2:")

	summaries, err := filepath.Glob(filepath.Join(exportDir, "*", "pcap", "summary.json"))
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
}

func TestPcap_UnknownField(t *testing.T) {
	_, err := run(t, "pcap", "unused.pcap", "--fields", "VLAN")
	assert.ErrorContains(t, err, "unknown flow field")
}
