// Command pcapgen writes a capture file whose source addresses follow a Zipf
// distribution, so a few sources dominate and heavy hitters are known.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"math/rand"
	"net"
	"os"
	"sort"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	outputFile := flag.String("o", "test.pcap", "Output pcap file path")
	packetCount := flag.Int("c", 100000, "Number of packets to generate")
	sources := flag.Uint64("sources", 10000, "Number of distinct source addresses")
	skew := flag.Float64("s", 1.2, "Zipf exponent, must be > 1")
	seed := flag.Int64("seed", 1, "Random seed")
	top := flag.Int("top", 10, "Print the true top sources")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	f, err := os.Create(*outputFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create output file")
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		log.Fatal().Err(err).Msg("failed to write pcap header")
	}

	rng := rand.New(rand.NewSource(*seed))
	zipf := rand.NewZipf(rng, *skew, 1, *sources-1)
	if zipf == nil {
		log.Fatal().Msgf("invalid Zipf parameters s=%g sources=%d", *skew, *sources)
	}

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA},
		EthernetType: layers.EthernetTypeIPv4,
	}
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	buf := gopacket.NewSerializeBuffer()
	start := time.Now()
	truth := make(map[uint64]int)

	log.Info().Msgf("generating %d packets from %d sources into %s", *packetCount, *sources, *outputFile)
	for i := 0; i < *packetCount; i++ {
		rank := zipf.Uint64()
		truth[rank]++

		ip := &layers.IPv4{
			SrcIP:    sourceIP(rank),
			DstIP:    net.IP{192, 168, 0, byte(rng.Intn(254) + 1)},
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
		}
		udp := &layers.UDP{
			SrcPort: layers.UDPPort(rng.Intn(65535-1024) + 1024),
			DstPort: layers.UDPPort([]int{53, 123, 443}[rng.Intn(3)]),
		}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			log.Fatal().Err(err).Msg("failed to set checksum layer")
		}
		payload := make([]byte, rng.Intn(1400)+50)
		rng.Read(payload)

		if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
			log.Fatal().Err(err).Msg("failed to serialize layers")
		}
		ci := gopacket.CaptureInfo{
			Timestamp:     start.Add(time.Duration(i) * time.Microsecond),
			CaptureLength: len(buf.Bytes()),
			Length:        len(buf.Bytes()),
		}
		if err := w.WritePacket(ci, buf.Bytes()); err != nil {
			log.Fatal().Err(err).Msg("failed to write packet")
		}
	}
	log.Info().Msgf("generated %d packets into %s", *packetCount, *outputFile)

	ranks := make([]uint64, 0, len(truth))
	for r := range truth {
		ranks = append(ranks, r)
	}
	sort.Slice(ranks, func(i, j int) bool { return truth[ranks[i]] > truth[ranks[j]] })
	for i := 0; i < *top && i < len(ranks); i++ {
		fmt.Printf("%2d. %-15s %d\n", i+1, sourceIP(ranks[i]), truth[ranks[i]])
	}
}

// sourceIP maps a Zipf rank to an address in 10.0.0.0/8.
func sourceIP(rank uint64) net.IP {
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, 10<<24|uint32(rank+1)&0xffffff)
	return ip
}
