package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
	"gopkg.in/yaml.v3"

	"gnss-analyzer/internal/gps"
	"gnss-analyzer/internal/sim"
)

const DefaultTimeFormat = "%Y-%m-%dT%H:%M:%SZ"

type Config struct {
	GPS    GPSConfig    `yaml:"gps"`
	Replay ReplayConfig `yaml:"replay"`
	Sim    SimConfig    `yaml:"sim"`
	Record RecordConfig `yaml:"record"`
	Output OutputConfig `yaml:"output"`
	Log    LogConfig    `yaml:"log"`
}

type GPSConfig struct {
	// Source is one of "serial", "gpsd", "file", "replay" or "sim".
	Source   string `yaml:"source"`
	Device   string `yaml:"device"`
	Baud     int    `yaml:"baud"`
	GPSDAddr string `yaml:"gpsd_addr"`

	// Path is the NMEA file ("-" for stdin) or the replay capture.
	Path string `yaml:"path"`
}

type ReplayConfig struct {
	Speed float64 `yaml:"speed"`
	Loop  bool    `yaml:"loop"`
}

// SimConfig drives the synthetic receiver used by gps.source=sim.
type SimConfig struct {
	CenterLatDeg float64       `yaml:"center_lat_deg"`
	CenterLonDeg float64       `yaml:"center_lon_deg"`
	AltMeters    float64       `yaml:"alt_m"`
	RadiusNm     float64       `yaml:"radius_nm"`
	Period       time.Duration `yaml:"period"`
	Interval     time.Duration `yaml:"interval"`
}

type RecordConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type OutputConfig struct {
	// TimeFormat is a strftime pattern for snapshot timestamps.
	TimeFormat string `yaml:"time_format"`
	Satellites bool   `yaml:"satellites"`

	// UDPDest, when set, receives every raw sentence as a datagram.
	UDPDest string     `yaml:"udp_dest"`
	MQTT    MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig publishes each snapshot update; disabled when Broker is empty.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      int    `yaml:"qos"`
	Retain   bool   `yaml:"retain"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse decodes YAML, rejecting unknown fields, then applies defaults and
// validates.
func Parse(b []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Finalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default is the configuration used when no file is given: serial,
// auto-detected device, 9600 baud.
func Default() Config {
	var cfg Config
	// The zero config always finalizes.
	_ = cfg.Finalize()
	return cfg
}

// Finalize applies defaults and validates. Call it again after overriding
// fields (e.g. from flags).
func (cfg *Config) Finalize() error {
	cfg.GPS.Source = strings.ToLower(strings.TrimSpace(cfg.GPS.Source))
	if cfg.GPS.Source == "" {
		cfg.GPS.Source = "serial"
	}
	switch cfg.GPS.Source {
	case "serial", "gpsd", "sim":
	case "file", "replay":
		if strings.TrimSpace(cfg.GPS.Path) == "" {
			return fmt.Errorf("gps.path is required when gps.source is '%s'", cfg.GPS.Source)
		}
	default:
		return fmt.Errorf("gps.source must be one of serial, gpsd, file, replay, sim (got %q)", cfg.GPS.Source)
	}

	if cfg.GPS.Baud < 0 {
		return fmt.Errorf("gps.baud must be > 0")
	}
	if cfg.GPS.Baud == 0 {
		cfg.GPS.Baud = 9600
	}
	if cfg.GPS.GPSDAddr == "" {
		cfg.GPS.GPSDAddr = "127.0.0.1:2947"
	}

	if cfg.Replay.Speed == 0 {
		cfg.Replay.Speed = 1
	}
	if cfg.Replay.Speed < 0 {
		return fmt.Errorf("replay.speed must be > 0")
	}

	if cfg.Sim.Interval == 0 {
		cfg.Sim.Interval = time.Second
	}
	if cfg.Sim.Interval < 0 {
		return fmt.Errorf("sim.interval must be > 0")
	}
	if cfg.Sim.Period < 0 {
		return fmt.Errorf("sim.period must be >= 0")
	}
	if math.Abs(cfg.Sim.CenterLatDeg) > 89 {
		return fmt.Errorf("sim.center_lat_deg must be within [-89, 89]")
	}
	if math.Abs(cfg.Sim.CenterLonDeg) > 180 {
		return fmt.Errorf("sim.center_lon_deg must be within [-180, 180]")
	}
	// Every simulated GGA must pass the decoder's altitude check.
	if cfg.Sim.AltMeters < gps.MinAltitudeM+sim.AltitudeSwingM || cfg.Sim.AltMeters > gps.MaxAltitudeM-sim.AltitudeSwingM {
		return fmt.Errorf("sim.alt_m must be within [%g, %g]", gps.MinAltitudeM+sim.AltitudeSwingM, gps.MaxAltitudeM-sim.AltitudeSwingM)
	}

	if cfg.Record.Enable {
		if cfg.GPS.Source == "replay" {
			return fmt.Errorf("record cannot be used with gps.source=replay")
		}
		if strings.TrimSpace(cfg.Record.Path) == "" {
			return fmt.Errorf("record.path is required when record.enable is true")
		}
	}

	if cfg.Output.TimeFormat == "" {
		cfg.Output.TimeFormat = DefaultTimeFormat
	}
	if _, err := strftime.New(cfg.Output.TimeFormat); err != nil {
		return fmt.Errorf("output.time_format: %w", err)
	}

	if cfg.Output.UDPDest != "" {
		if _, _, err := net.SplitHostPort(cfg.Output.UDPDest); err != nil {
			return fmt.Errorf("output.udp_dest: %w", err)
		}
	}

	if cfg.Output.MQTT.Broker != "" {
		if cfg.Output.MQTT.Topic == "" {
			cfg.Output.MQTT.Topic = "gnss/snapshot"
		}
		if cfg.Output.MQTT.ClientID == "" {
			cfg.Output.MQTT.ClientID = "gnss-analyzer"
		}
		if cfg.Output.MQTT.QoS < 0 || cfg.Output.MQTT.QoS > 2 {
			return fmt.Errorf("output.mqtt.qos must be 0, 1 or 2")
		}
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if _, err := log.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}
