package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"Go2NetSketch/internal/config"
	"Go2NetSketch/internal/engine/impl/sketch"
	"Go2NetSketch/internal/model"
	"Go2NetSketch/internal/pkg/logger"
	"Go2NetSketch/pkg/countmin"
	"Go2NetSketch/pkg/pcap"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

type options struct {
	hash     string
	logLevel string
}

func (o *options) hasher() (countmin.Hasher, error) {
	return countmin.HasherByName(o.hash)
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "cms",
		Short:        "Count-min sketch toolkit",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			_, err := logger.Setup(config.LogConfig{Level: opts.logLevel, Format: "console"})
			return err
		},
	}
	root.PersistentFlags().StringVar(&opts.hash, "hash", countmin.HashFNV1a, "hash family (fnv1a, xxhash, xxh3, murmur3)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level")

	root.AddCommand(
		newAddCmd(opts),
		newRemoveCmd(opts),
		newCheckCmd(opts),
		newMergeCmd(opts),
		newInfoCmd(opts),
		newPcapCmd(opts),
	)
	return root
}

// sizing holds the dimensions used when a command creates a new sketch file.
type sizing struct {
	width, depth          uint32
	errorRate, confidence float64
}

func (sz *sizing) register(cmd *cobra.Command) {
	cmd.Flags().Uint32Var(&sz.width, "width", 2000, "width of a new sketch")
	cmd.Flags().Uint32Var(&sz.depth, "depth", 7, "depth of a new sketch")
	cmd.Flags().Float64Var(&sz.errorRate, "error-rate", 0, "size a new sketch from an error rate instead of width")
	cmd.Flags().Float64Var(&sz.confidence, "confidence", 0, "size a new sketch from a confidence instead of depth")
}

func (sz *sizing) create(hasher countmin.Hasher) (*countmin.Sketch, error) {
	if sz.errorRate > 0 || sz.confidence > 0 {
		return countmin.NewOptimalWithHasher(sz.errorRate, sz.confidence, hasher)
	}
	return countmin.NewWithHasher(sz.width, sz.depth, hasher)
}

// openOrCreate loads path, or creates an empty sketch when it does not
// exist yet.
func openOrCreate(path string, hasher countmin.Hasher, sz *sizing) (*countmin.Sketch, error) {
	s, err := sketch.ReadSketchFile(path, hasher)
	if err == nil {
		return s, nil
	}
	if _, statErr := os.Stat(path); !errors.Is(statErr, os.ErrNotExist) {
		return nil, err
	}
	return sz.create(hasher)
}

func newAddCmd(opts *options) *cobra.Command {
	var (
		inc uint32
		sz  sizing
	)
	cmd := &cobra.Command{
		Use:   "add FILE KEY...",
		Short: "Add keys to a sketch file, creating it if needed",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return update(cmd.OutOrStdout(), opts, &sz, args[0], args[1:], func(s *countmin.Sketch, key []byte) (int32, error) {
				return s.AddInc(key, inc)
			})
		},
	}
	cmd.Flags().Uint32VarP(&inc, "inc", "n", 1, "amount added per key")
	sz.register(cmd)
	return cmd
}

func newRemoveCmd(opts *options) *cobra.Command {
	var inc uint32
	cmd := &cobra.Command{
		Use:   "remove FILE KEY...",
		Short: "Remove keys from a sketch file",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return update(cmd.OutOrStdout(), opts, nil, args[0], args[1:], func(s *countmin.Sketch, key []byte) (int32, error) {
				return s.RemoveInc(key, inc)
			})
		},
	}
	cmd.Flags().Uint32VarP(&inc, "inc", "n", 1, "amount removed per key")
	return cmd
}

func update(out io.Writer, opts *options, sz *sizing, path string, keys []string, op func(*countmin.Sketch, []byte) (int32, error)) error {
	hasher, err := opts.hasher()
	if err != nil {
		return err
	}
	var s *countmin.Sketch
	if sz != nil {
		s, err = openOrCreate(path, hasher, sz)
	} else {
		s, err = sketch.ReadSketchFile(path, hasher)
	}
	if err != nil {
		return err
	}
	for _, key := range keys {
		res, err := op(s, []byte(key))
		if err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
		fmt.Fprintf(out, "%s\t%d\n", key, res)
	}
	return s.Export(path)
}

func newCheckCmd(opts *options) *cobra.Command {
	var strategy string
	cmd := &cobra.Command{
		Use:   "check FILE KEY...",
		Short: "Estimate key counts",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := countmin.ParseStrategy(strategy)
			if err != nil {
				return err
			}
			hasher, err := opts.hasher()
			if err != nil {
				return err
			}
			s, err := sketch.ReadSketchFile(args[0], hasher)
			if err != nil {
				return err
			}
			for _, key := range args[1:] {
				n, err := s.Estimate([]byte(key), q)
				if err != nil {
					return fmt.Errorf("key %q: %w", key, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", key, n)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&strategy, "strategy", "s", "min", "estimator (min, mean, mean_min)")
	return cmd
}

func newMergeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "merge OUT IN...",
		Short: "Sum sketches of equal dimensions into OUT",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			hasher, err := opts.hasher()
			if err != nil {
				return err
			}
			inputs := make([]*countmin.Sketch, 0, len(args)-1)
			for _, path := range args[1:] {
				s, err := sketch.ReadSketchFile(path, hasher)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				inputs = append(inputs, s)
			}
			merged, err := countmin.Merge(inputs)
			if err != nil {
				return err
			}
			if err := merged.Export(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "merged %d sketches into %s (%s elements)\n",
				len(inputs), args[0], humanize.Comma(merged.ElementsAdded()))
			return nil
		},
	}
}

func newInfoCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "info FILE...",
		Short: "Print sketch dimensions and accuracy",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hasher, err := opts.hasher()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, path := range args {
				s, err := sketch.ReadSketchFile(path, hasher)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				info := s.Info()
				fmt.Fprintf(out, "%s\n", path)
				fmt.Fprintf(out, "  width:          %s\n", humanize.Comma(int64(info.Width)))
				fmt.Fprintf(out, "  depth:          %d\n", info.Depth)
				fmt.Fprintf(out, "  error rate:     %g\n", info.ErrorRate)
				fmt.Fprintf(out, "  confidence:     %g\n", info.Confidence)
				fmt.Fprintf(out, "  elements added: %s\n", humanize.Comma(info.ElementsAdded))
				fmt.Fprintf(out, "  size:           %s\n", humanize.IBytes(info.Bytes))
			}
			return nil
		},
	}
}

func newPcapCmd(opts *options) *cobra.Command {
	var (
		def       config.SketchTaskDef
		fields    string
		exportDir string
		compress  bool
	)
	cmd := &cobra.Command{
		Use:   "pcap FILE",
		Short: "Build a sketch of the flows in a capture file and print its heavy hitters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def.Name = "pcap"
			def.FlowFields = strings.Split(fields, ",")
			def.Hash = opts.hash
			cfg := &config.Config{Aggregator: config.AggregatorConfig{
				Sketch: config.SketchConfig{Tasks: []config.SketchTaskDef{def}},
			}}
			if err := cfg.Validate(); err != nil {
				return err
			}
			def = cfg.Aggregator.Sketch.Tasks[0]
			task, err := sketch.New(def)
			if err != nil {
				return err
			}
			n, err := ingest(cmd.Context(), args[0], task)
			if err != nil {
				return err
			}

			snap := task.Snapshot()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s packets, %s elements added (metric %s)\n",
				humanize.Comma(int64(n)), humanize.Comma(snap.Info.ElementsAdded), def.Metric)
			printHitters(out, "heavy hitters", snap.HeavyHitters)
			if snap.Threshold > 0 {
				printHitters(out, fmt.Sprintf("over %d", snap.Threshold), snap.OverThreshold)
			}

			if exportDir != "" {
				w := sketch.NewExportWriter(exportDir, compress, 0)
				if err := w.Write(snap, time.Now().Format(sketch.TimestampLayout)); err != nil {
					return err
				}
				fmt.Fprintf(out, "exported to %s\n", exportDir)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&fields, "fields", config.FieldSrcIP, "comma separated flow fields")
	f.Uint32Var(&def.Width, "width", 2048, "sketch width")
	f.Uint32Var(&def.Depth, "depth", 5, "sketch depth")
	f.Float64Var(&def.ErrorRate, "error-rate", 0, "size from an error rate instead of width")
	f.Float64Var(&def.Confidence, "confidence", 0, "size from a confidence instead of depth")
	f.StringVar(&def.Metric, "metric", config.MetricCount, "count or bytes")
	f.StringVar(&def.Strategy, "strategy", "min", "default estimator")
	f.IntVar(&def.TopK, "top", 10, "number of heavy hitters")
	f.Int32Var(&def.Threshold, "threshold", 0, "also list every flow at or above this count")
	f.StringVar(&exportDir, "export", "", "write the sketch and a summary under this directory")
	f.BoolVar(&compress, "gzip", false, "gzip the exported sketch")
	return cmd
}

func ingest(ctx context.Context, path string, task model.Task) (int, error) {
	r, err := pcap.NewReader(path)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	packets := make(chan *model.PacketInfo, 256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range packets {
			task.ProcessPacket(p)
		}
	}()
	n, err := r.ReadPackets(ctx, packets)
	<-done
	return n, err
}

func printHitters(out io.Writer, title string, hs []countmin.Hitter) {
	fmt.Fprintf(out, "%s:\n", title)
	for i, h := range hs {
		fmt.Fprintf(out, "  %2d. %-48s %s\n", i+1, h.Key, humanize.Comma(int64(h.Count)))
	}
}
