package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"Go2NetSketch/pkg/countmin"

	"gopkg.in/yaml.v3"
)

// Flow key fields accepted in a task's flow_fields list.
const (
	FieldSrcIP    = "SrcIP"
	FieldDstIP    = "DstIP"
	FieldSrcPort  = "SrcPort"
	FieldDstPort  = "DstPort"
	FieldProtocol = "Protocol"
)

// Task metrics: count adds one per packet, bytes adds the packet length.
const (
	MetricCount = "count"
	MetricBytes = "bytes"
)

// Alerter rule metrics.
const (
	RuleHeavyHitter   = "heavy_hitter"
	RuleOverThreshold = "over_threshold"
)

// LogConfig controls the global logger.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // console or json
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// SourceConfig selects where packets come from. PcapFile wins over Interface.
type SourceConfig struct {
	PcapFile    string `yaml:"pcap_file"`
	Interface   string `yaml:"interface"`
	SnapLen     int32  `yaml:"snap_len"`
	Promiscuous bool   `yaml:"promiscuous"`
}

// SketchTaskDef defines a single count-min task from the config file.
// Sizing is either width/depth or error_rate/confidence.
type SketchTaskDef struct {
	Name       string   `yaml:"name"`
	FlowFields []string `yaml:"flow_fields"`
	Width      uint32   `yaml:"width"`
	Depth      uint32   `yaml:"depth"`
	ErrorRate  float64  `yaml:"error_rate"`
	Confidence float64  `yaml:"confidence"`
	Hash       string   `yaml:"hash"`
	Strategy   string   `yaml:"strategy"`
	Metric     string   `yaml:"metric"`
	TopK       int      `yaml:"top_k"`
	Threshold  int32    `yaml:"threshold"`
}

// TextWriterConfig configures the heavy-hitter text writer.
type TextWriterConfig struct {
	RootPath string `yaml:"root_path"`
}

// ExportWriterConfig configures the binary sketch export writer.
type ExportWriterConfig struct {
	RootPath string `yaml:"root_path"`
	Compress bool   `yaml:"compress"`
}

// ClickHouseConfig holds the connection details for ClickHouse.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// WriterDef is one snapshot destination.
type WriterDef struct {
	Type             string             `yaml:"type"`
	Enabled          bool               `yaml:"enabled"`
	SnapshotInterval string             `yaml:"snapshot_interval"`
	Text             TextWriterConfig   `yaml:"text"`
	Export           ExportWriterConfig `yaml:"export"`
	ClickHouse       ClickHouseConfig   `yaml:"clickhouse"`
}

// SketchConfig groups sketch tasks with their writers.
type SketchConfig struct {
	Tasks   []SketchTaskDef `yaml:"tasks"`
	Writers []WriterDef     `yaml:"writers"`
}

// AggregatorConfig holds the configuration for the task manager.
type AggregatorConfig struct {
	Types               []string     `yaml:"types"`
	Period              string       `yaml:"period"`
	NumWorkers          int          `yaml:"num_workers"`
	SizeOfPacketChannel int          `yaml:"size_of_packet_channel"`
	Sketch              SketchConfig `yaml:"sketch"`
}

// FederationConfig controls publishing and merging sketches over NATS.
type FederationConfig struct {
	Enabled bool   `yaml:"enabled"`
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
	NodeID  string `yaml:"node_id"`
	TopK    int    `yaml:"top_k"`
	// Window is how long the aggregator merges before starting over.
	// Empty keeps merging for the life of the process.
	Window string `yaml:"window"`
}

// APIConfig holds listen addresses for the query servers. An empty address
// disables that server.
type APIConfig struct {
	ListenAddr     string `yaml:"listen_addr"`
	GRPCListenAddr string `yaml:"grpc_listen_addr"`
}

// AlerterRule fires when a tracked flow of TaskName satisfies
// value Operator Threshold.
type AlerterRule struct {
	Name      string  `yaml:"name"`
	TaskName  string  `yaml:"task_name"`
	Metric    string  `yaml:"metric"`
	Operator  string  `yaml:"operator"`
	Threshold float64 `yaml:"threshold"`
}

// SMTPConfig holds the settings for the email notifier.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// AlerterConfig configures periodic rule evaluation.
type AlerterConfig struct {
	Enabled       bool          `yaml:"enabled"`
	CheckInterval string        `yaml:"check_interval"`
	Notifier      string        `yaml:"notifier"` // log, nats or email
	Subject       string        `yaml:"subject"`
	Rules         []AlerterRule `yaml:"rules"`
	SMTP          SMTPConfig    `yaml:"smtp"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Log        LogConfig        `yaml:"log"`
	Source     SourceConfig     `yaml:"source"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	Federation FederationConfig `yaml:"federation"`
	API        APIConfig        `yaml:"api"`
	Alerter    AlerterConfig    `yaml:"alerter"`
}

// LoadConfig reads the configuration from a YAML file, applies defaults and
// validates it.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config data, applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate fills in defaults and rejects configurations the engine cannot run.
func (c *Config) Validate() error {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Source.SnapLen == 0 {
		c.Source.SnapLen = 1600
	}

	agg := &c.Aggregator
	if len(agg.Types) == 0 {
		agg.Types = []string{"sketch"}
	}
	if agg.Period == "" {
		agg.Period = "1m"
	}
	if _, err := positiveDuration(agg.Period); err != nil {
		return fmt.Errorf("invalid aggregator period: %w", err)
	}
	if agg.NumWorkers <= 0 {
		agg.NumWorkers = runtime.NumCPU()
	}
	if agg.SizeOfPacketChannel <= 0 {
		agg.SizeOfPacketChannel = 1024
	}

	seen := make(map[string]bool, len(agg.Sketch.Tasks))
	for i := range agg.Sketch.Tasks {
		t := &agg.Sketch.Tasks[i]
		if err := t.validate(); err != nil {
			return fmt.Errorf("task %d (%q): %w", i, t.Name, err)
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate task name %q", t.Name)
		}
		seen[t.Name] = true
	}
	for i := range agg.Sketch.Writers {
		w := &agg.Sketch.Writers[i]
		if !w.Enabled {
			continue
		}
		if _, err := positiveDuration(w.SnapshotInterval); err != nil {
			return fmt.Errorf("writer %d (%s): invalid snapshot_interval: %w", i, w.Type, err)
		}
	}

	if c.Federation.Subject == "" {
		c.Federation.Subject = "cms.sketches"
	}
	if c.Federation.NATSURL == "" {
		c.Federation.NATSURL = "nats://127.0.0.1:4222"
	}
	if c.Federation.TopK <= 0 {
		c.Federation.TopK = 10
	}
	if c.Federation.Window != "" {
		if _, err := positiveDuration(c.Federation.Window); err != nil {
			return fmt.Errorf("invalid federation window: %w", err)
		}
	}

	if c.Alerter.Enabled {
		if _, err := positiveDuration(c.Alerter.CheckInterval); err != nil {
			return fmt.Errorf("invalid alerter check_interval: %w", err)
		}
		if c.Alerter.Notifier == "" {
			c.Alerter.Notifier = "log"
		}
		if c.Alerter.Subject == "" {
			c.Alerter.Subject = "cms.alerts"
		}
		for _, r := range c.Alerter.Rules {
			if !seen[r.TaskName] {
				return fmt.Errorf("alerter rule %q references unknown task %q", r.Name, r.TaskName)
			}
		}
	}
	return nil
}

func (t *SketchTaskDef) validate() error {
	if t.Name == "" {
		return errors.New("task name is required")
	}
	if len(t.FlowFields) == 0 {
		return errors.New("flow_fields must not be empty")
	}
	for _, f := range t.FlowFields {
		switch f {
		case FieldSrcIP, FieldDstIP, FieldSrcPort, FieldDstPort, FieldProtocol:
		default:
			return fmt.Errorf("unknown flow field %q", f)
		}
	}
	if t.ErrorRate == 0 && t.Confidence == 0 {
		if t.Width == 0 || t.Depth == 0 {
			return errors.New("either width/depth or error_rate/confidence must be set")
		}
	}
	if _, err := countmin.HasherByName(t.Hash); err != nil {
		return err
	}
	if _, err := countmin.ParseStrategy(t.Strategy); err != nil {
		return err
	}
	switch t.Metric {
	case "":
		t.Metric = MetricCount
	case MetricCount, MetricBytes:
	default:
		return fmt.Errorf("unknown metric %q", t.Metric)
	}
	if t.TopK <= 0 {
		t.TopK = 10
	}
	return nil
}

// PeriodDuration returns the parsed measurement period.
func (a AggregatorConfig) PeriodDuration() time.Duration {
	d, _ := time.ParseDuration(a.Period)
	return d
}

// WindowDuration returns the parsed merge window, zero when unset.
func (f FederationConfig) WindowDuration() time.Duration {
	d, _ := time.ParseDuration(f.Window)
	return d
}

func positiveDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", s)
	}
	return d, nil
}
