package model

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allFields = []string{"SrcIP", "DstIP", "SrcPort", "DstPort", "Protocol"}

func TestEncodeDecodeFlow(t *testing.T) {
	ft := &FiveTuple{
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.ParseIP("2001:db8::1"),
		SrcPort:  51234,
		DstPort:  443,
		Protocol: 6,
	}
	key := EncodeFlow(nil, allFields, ft)
	require.Len(t, key, MaxFlowSize)
	assert.Equal(t, MaxFlowSize, FlowSize(allFields))

	text := DecodeFlow(key, allFields)
	assert.Equal(t, "10.0.0.1 2001:db8::1 51234 443 6", text)

	back, err := ParseFlow(text, allFields)
	require.NoError(t, err)
	assert.Equal(t, key, back)
}

func TestEncodeFlow_SubsetAndMissingIP(t *testing.T) {
	fields := []string{"DstPort", "SrcIP"}
	key := EncodeFlow(make([]byte, 0, 8), fields, &FiveTuple{DstPort: 53})
	assert.Equal(t, 18, len(key))
	assert.Equal(t, "53 ::", DecodeFlow(key, fields))
}

func TestParseFlow_Errors(t *testing.T) {
	cases := map[string][]string{
		"10.0.0.1 80": {"SrcIP"},
		"nonsense":    {"SrcIP"},
		"70000":       {"SrcPort"},
		"300":         {"Protocol"},
		"10.0.0.1":    {"VLAN"},
	}
	for text, fields := range cases {
		_, err := ParseFlow(text, fields)
		assert.Error(t, err, text)
	}
}

func TestDecodeFlow_Short(t *testing.T) {
	assert.Equal(t, "0102", DecodeFlow([]byte{1, 2}, allFields))
}
