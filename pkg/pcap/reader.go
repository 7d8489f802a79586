// Package pcap reads capture files and turns them into parsed packets.
package pcap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"Go2NetSketch/internal/engine/protocol"
	"Go2NetSketch/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"
	"github.com/rs/zerolog/log"
)

// Reader reads packets from a pcap file.
type Reader struct {
	file   *os.File
	source *gopacket.PacketSource
}

// NewReader opens filePath for reading.
func NewReader(filePath string) (*Reader, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap file: %w", err)
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read pcap header: %w", err)
	}
	return &Reader{file: f, source: gopacket.NewPacketSource(r, r.LinkType())}, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// ReadPackets sends every parseable packet to out and closes out when the
// file is exhausted or ctx is cancelled. Packets that are not TCP/UDP over
// IP are skipped. It returns the number of packets sent.
func (r *Reader) ReadPackets(ctx context.Context, out chan<- *model.PacketInfo) (int, error) {
	defer close(out)

	sent, skipped := 0, 0
	for {
		packet, err := r.source.NextPacket()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return sent, fmt.Errorf("failed to read packet: %w", err)
		}
		info, err := protocol.ParsePacket(packet)
		if err != nil {
			skipped++
			continue
		}
		select {
		case out <- info:
			sent++
		case <-ctx.Done():
			return sent, ctx.Err()
		}
	}
	if skipped > 0 {
		log.Debug().Msgf("[pcap] skipped %d non TCP/UDP packets", skipped)
	}
	return sent, nil
}
