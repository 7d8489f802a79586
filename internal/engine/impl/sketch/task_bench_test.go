package sketch

import (
	"math/rand"
	"net"
	"testing"

	"Go2NetSketch/internal/config"
	"Go2NetSketch/internal/model"
)

func benchPackets(n int) []*model.PacketInfo {
	rng := rand.New(rand.NewSource(1))
	zipf := rand.NewZipf(rng, 1.2, 1, 1<<16)
	packets := make([]*model.PacketInfo, n)
	for i := range packets {
		r := zipf.Uint64()
		packets[i] = &model.PacketInfo{
			FiveTuple: model.FiveTuple{
				SrcIP:    net.IPv4(10, byte(r>>16), byte(r>>8), byte(r)),
				DstIP:    net.IPv4(192, 168, 0, byte(rng.Intn(254)+1)),
				SrcPort:  uint16(rng.Intn(65535)),
				DstPort:  443,
				Protocol: 6,
			},
			Length: 64 + rng.Intn(1400),
		}
	}
	return packets
}

func BenchmarkTask_ProcessPacket(b *testing.B) {
	packets := benchPackets(1 << 14)
	defs := map[string]config.SketchTaskDef{
		"src_min":        {FlowFields: []string{config.FieldSrcIP}, Width: 1 << 13, Depth: 4, TopK: 20},
		"five_tuple_xxh": {FlowFields: []string{"SrcIP", "DstIP", "SrcPort", "DstPort", "Protocol"}, Width: 1 << 14, Depth: 5, Hash: "xxh3", TopK: 20, Threshold: 100},
	}
	for name, def := range defs {
		def.Name = "bench_" + name
		task, err := New(def)
		if err != nil {
			b.Fatal(err)
		}
		b.Run(name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				task.ProcessPacket(packets[i%len(packets)])
			}
		})
		b.Run(name+"_parallel", func(b *testing.B) {
			b.RunParallel(func(pb *testing.PB) {
				i := 0
				for pb.Next() {
					task.ProcessPacket(packets[i%len(packets)])
					i++
				}
			})
		})
	}
}
