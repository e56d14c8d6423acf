package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeTempConfig(t, "gps: {}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.GPS.Source != "serial" {
		t.Fatalf("source=%q want serial", cfg.GPS.Source)
	}
	if cfg.GPS.Baud != 9600 {
		t.Fatalf("baud=%d want 9600", cfg.GPS.Baud)
	}
	if cfg.GPS.GPSDAddr != "127.0.0.1:2947" {
		t.Fatalf("gpsd_addr=%q", cfg.GPS.GPSDAddr)
	}
	if cfg.Sim.Interval != time.Second {
		t.Fatalf("sim.interval=%s want 1s", cfg.Sim.Interval)
	}
	if cfg.Replay.Speed != 1 {
		t.Fatalf("speed=%v want 1", cfg.Replay.Speed)
	}
	if cfg.Output.TimeFormat != DefaultTimeFormat {
		t.Fatalf("time_format=%q", cfg.Output.TimeFormat)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("log.level=%q", cfg.Log.Level)
	}
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, ""))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("cfg=%+v want %+v", cfg, Default())
	}
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeTempConfig(t, `
gps:
  source: GPSD
  gpsd_addr: 10.0.0.5:2947
record:
  enable: true
  path: ./capture.log
output:
  time_format: "%H:%M:%S"
  satellites: true
  udp_dest: 192.168.10.255:10110
  mqtt:
    broker: tcp://localhost:1883
log:
  level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.GPS.Source != "gpsd" || cfg.GPS.GPSDAddr != "10.0.0.5:2947" {
		t.Fatalf("gps=%+v", cfg.GPS)
	}
	if !cfg.Record.Enable || cfg.Record.Path != "./capture.log" {
		t.Fatalf("record=%+v", cfg.Record)
	}
	if cfg.Output.MQTT.Topic != "gnss/snapshot" || cfg.Output.MQTT.ClientID != "gnss-analyzer" {
		t.Fatalf("mqtt=%+v", cfg.Output.MQTT)
	}
	if cfg.Output.TimeFormat != "%H:%M:%S" || !cfg.Output.Satellites || cfg.Output.UDPDest != "192.168.10.255:10110" {
		t.Fatalf("output=%+v", cfg.Output)
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "UnknownSource",
			body: "gps:\n  source: bluetooth\n",
			want: `gps.source must be one of serial, gpsd, file, replay, sim (got "bluetooth")`,
		},
		{
			name: "FileRequiresPath",
			body: "gps:\n  source: file\n",
			want: "gps.path is required when gps.source is 'file'",
		},
		{
			name: "ReplayRequiresPath",
			body: "gps:\n  source: replay\n",
			want: "gps.path is required when gps.source is 'replay'",
		},
		{
			name: "NegativeBaud",
			body: "gps:\n  baud: -1\n",
			want: "gps.baud must be > 0",
		},
		{
			name: "NegativeSpeed",
			body: "replay:\n  speed: -2\n",
			want: "replay.speed must be > 0",
		},
		{
			name: "NegativeSimInterval",
			body: "sim:\n  interval: -1s\n",
			want: "sim.interval must be > 0",
		},
		{
			name: "SimCenterOutOfRange",
			body: "gps:\n  source: sim\nsim:\n  center_lat_deg: 91\n",
			want: "sim.center_lat_deg must be within [-89, 89]",
		},
		{
			name: "BadMQTTQoS",
			body: "output:\n  mqtt:\n    broker: tcp://b:1883\n    qos: 3\n",
			want: "output.mqtt.qos must be 0, 1 or 2",
		},
		{
			name: "SimAltitudeAboveDecoderRange",
			body: "gps:\n  source: sim\nsim:\n  alt_m: 9990\n",
			want: "sim.alt_m must be within [-485, 9985]",
		},
		{
			name: "SimAltitudeBelowDecoderRange",
			body: "sim:\n  alt_m: -490\n",
			want: "sim.alt_m must be within [-485, 9985]",
		},
		{
			name: "RecordRequiresPath",
			body: "record:\n  enable: true\n",
			want: "record.path is required when record.enable is true",
		},
		{
			name: "RecordWhileReplaying",
			body: "gps:\n  source: replay\n  path: ./in.log\nrecord:\n  enable: true\n  path: ./out.log\n",
			want: "record cannot be used with gps.source=replay",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeTempConfig(t, tc.body))
			requireErrEq(t, err, tc.want)
		})
	}
}

func TestLoad_SimDurations(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, "gps:\n  source: sim\nsim:\n  center_lat_deg: 47.6\n  period: 90s\n  interval: 250ms\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Sim.Period != 90*time.Second || cfg.Sim.Interval != 250*time.Millisecond {
		t.Fatalf("sim=%+v", cfg.Sim)
	}
	if cfg.Sim.CenterLatDeg != 47.6 {
		t.Fatalf("center_lat_deg=%v", cfg.Sim.CenterLatDeg)
	}
}

func TestLoad_RejectsBadLogLevel(t *testing.T) {
	_, err := Load(writeTempConfig(t, "log:\n  level: chatty\n"))
	if err == nil || !strings.HasPrefix(err.Error(), "log.level:") {
		t.Fatalf("err=%v", err)
	}
}

func TestLoad_RejectsBadUDPDest(t *testing.T) {
	_, err := Load(writeTempConfig(t, "output:\n  udp_dest: nowhere\n"))
	if err == nil || !strings.HasPrefix(err.Error(), "output.udp_dest:") {
		t.Fatalf("err=%v", err)
	}
}

func TestLoad_RejectsUnknownField(t *testing.T) {
	_, err := Load(writeTempConfig(t, "gps:\n  mode: nmea\n"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "field mode not found in type config.GPSConfig") {
		t.Fatalf("err=%v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error")
	}
}
