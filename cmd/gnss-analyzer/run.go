package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
	"github.com/spf13/pflag"

	"gnss-analyzer/internal/config"
	"gnss-analyzer/internal/gps"
	"gnss-analyzer/internal/publish"
	"gnss-analyzer/internal/replay"
	"gnss-analyzer/internal/sim"
	"gnss-analyzer/internal/udp"
)

type options struct {
	configPath string
	input      string
	replayPath string
	device     string
	baud       int
	gpsdAddr   string
	sim        bool
	speed      float64
	loop       bool
	record     string
	udpDest    string
	mqttBroker string
	logLevel   string
	timeFormat string
	satellites bool
	summary    string
}

func parseFlags(args []string, stderr io.Writer) (options, *pflag.FlagSet, error) {
	var o options
	fs := pflag.NewFlagSet("gnss-analyzer", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&o.configPath, "config", "c", "", "Path to YAML config")
	fs.StringVarP(&o.input, "input", "i", "", "Decode NMEA from a file (\"-\" for stdin)")
	fs.StringVar(&o.replayPath, "replay", "", "Replay a timestamped NMEA capture")
	fs.StringVarP(&o.device, "device", "d", "", "Serial device (auto-detected when empty)")
	fs.IntVarP(&o.baud, "baud", "b", 0, "Serial baud rate")
	fs.StringVar(&o.gpsdAddr, "gpsd", "", "Read NMEA from gpsd at host:port")
	fs.BoolVar(&o.sim, "sim", false, "Decode sentences from the built-in receiver simulator")
	fs.Float64Var(&o.speed, "speed", 0, "Replay speed multiplier")
	fs.BoolVar(&o.loop, "loop", false, "Loop the replay")
	fs.StringVar(&o.record, "record", "", "Capture received sentences to this file")
	fs.StringVar(&o.udpDest, "udp", "", "Forward raw sentences to host:port over UDP")
	fs.StringVar(&o.mqttBroker, "mqtt", "", "Publish snapshot updates to this MQTT broker (tcp://host:1883)")
	fs.StringVar(&o.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&o.timeFormat, "time-format", "", "strftime pattern for fix timestamps")
	fs.BoolVar(&o.satellites, "satellites", false, "Include the satellite table in the output")
	fs.StringVar(&o.summary, "summary", "", "Summarize a capture file and exit")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: gnss-analyzer [options]\n\n")
		fs.PrintDefaults()
	}
	err := fs.Parse(args)
	return o, fs, err
}

// resolveConfig loads the config file, if any, and lays flags over it.
func resolveConfig(o options, fs *pflag.FlagSet) (config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		cfg, err = config.Load(o.configPath)
		if err != nil {
			return config.Config{}, fmt.Errorf("config load failed: %w", err)
		}
	}

	switch {
	case fs.Changed("input"):
		cfg.GPS.Source = "file"
		cfg.GPS.Path = o.input
	case fs.Changed("replay"):
		cfg.GPS.Source = "replay"
		cfg.GPS.Path = o.replayPath
	case fs.Changed("gpsd"):
		cfg.GPS.Source = "gpsd"
		cfg.GPS.GPSDAddr = o.gpsdAddr
	case fs.Changed("sim") && o.sim:
		cfg.GPS.Source = "sim"
	case fs.Changed("device"):
		cfg.GPS.Source = "serial"
	}
	if fs.Changed("device") {
		cfg.GPS.Device = o.device
	}
	if fs.Changed("baud") {
		cfg.GPS.Baud = o.baud
	}
	if fs.Changed("speed") {
		cfg.Replay.Speed = o.speed
	}
	if fs.Changed("loop") {
		cfg.Replay.Loop = o.loop
	}
	if fs.Changed("record") {
		cfg.Record.Enable = o.record != ""
		cfg.Record.Path = o.record
	}
	if fs.Changed("udp") {
		cfg.Output.UDPDest = o.udpDest
	}
	if fs.Changed("mqtt") {
		cfg.Output.MQTT.Broker = o.mqttBroker
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if fs.Changed("time-format") {
		cfg.Output.TimeFormat = o.timeFormat
	}
	if fs.Changed("satellites") {
		cfg.Output.Satellites = o.satellites
	}
	if err := cfg.Finalize(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	o, fs, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if o.summary != "" {
		return printLogSummary(stdout, o.summary)
	}

	cfg, err := resolveConfig(o, fs)
	if err != nil {
		return err
	}

	logger := log.NewWithOptions(stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Prefix:          "gnss",
	})
	level, _ := log.ParseLevel(cfg.Log.Level)
	logger.SetLevel(level)

	p, err := newPrinter(stdout, cfg.Output)
	if err != nil {
		return err
	}

	var lineHooks []func(string)
	if cfg.Record.Enable {
		w, err := replay.CreateWriter(cfg.Record.Path)
		if err != nil {
			return fmt.Errorf("record: %w", err)
		}
		defer func() {
			if err := w.Close(); err != nil {
				logger.Error("record close failed", "path", cfg.Record.Path, "err", err)
			}
		}()
		logger.Info("recording", "path", cfg.Record.Path)
		lineHooks = append(lineHooks, func(line string) {
			if err := w.WriteSentence(time.Now(), line); err != nil {
				logger.Warn("record write failed", "err", err)
			}
		})
	}
	if cfg.Output.UDPDest != "" {
		b, err := udp.NewBroadcaster(cfg.Output.UDPDest)
		if err != nil {
			return fmt.Errorf("udp forwarder init failed: %w", err)
		}
		defer b.Close()
		logger.Info("forwarding", "udp", b.Dest())
		lineHooks = append(lineHooks, func(line string) {
			if err := b.SendSentence(line); err != nil {
				logger.Debug("udp send failed", "err", err)
			}
		})
	}

	onUpdate := p.update
	if m := cfg.Output.MQTT; m.Broker != "" {
		pub, err := publish.Connect(publish.Options{
			Broker:   m.Broker,
			ClientID: m.ClientID,
			Topic:    m.Topic,
			QoS:      byte(m.QoS),
			Retain:   m.Retain,
		})
		if err != nil {
			return err
		}
		defer pub.Close()
		logger.Info("publishing", "broker", m.Broker, "topic", pub.Topic())
		onUpdate = func(typ gps.SentenceType, snap *gps.Snapshot) {
			p.update(typ, snap)
			b, err := p.encode(typ, snap)
			if err != nil {
				return
			}
			if err := pub.Publish(b); err != nil {
				logger.Warn("mqtt publish failed", "err", err)
			}
		}
	}

	svcOpts := []gps.ServiceOption{
		gps.WithServiceLogger(logger),
		gps.WithOnUpdate(onUpdate),
	}
	if len(lineHooks) > 0 {
		svcOpts = append(svcOpts, gps.WithOnLine(func(line string) {
			for _, h := range lineHooks {
				h(line)
			}
		}))
	}

	svc := gps.New(gps.Config{
		Enable:   true,
		Source:   cfg.GPS.Source,
		GPSDAddr: cfg.GPS.GPSDAddr,
		Device:   cfg.GPS.Device,
		Baud:     cfg.GPS.Baud,
	}, svcOpts...)

	switch cfg.GPS.Source {
	case "file":
		err = runFile(ctx, svc, cfg.GPS.Path, stdin)
	case "replay":
		err = runReplay(ctx, cfg, svc, nil)
	case "sim":
		t := time.NewTicker(cfg.Sim.Interval)
		err = runSim(ctx, cfg.Sim, svc, t.C)
		t.Stop()
	default:
		err = runLive(ctx, svc)
	}
	if p.err != nil && err == nil {
		err = p.err
	}

	st := svc.Status()
	logger.Info("gnss-analyzer stopping", "lines", st.Lines, "errors", st.Errors, "valid", st.Valid)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runFile(ctx context.Context, svc *gps.Service, path string, stdin io.Reader) error {
	if strings.TrimSpace(path) == "-" {
		return svc.Consume(ctx, stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return svc.Consume(ctx, f)
}

// ctxSleeper waits like time.Sleep but returns early once ctx is done.
type ctxSleeper struct {
	ctx context.Context
}

func (s ctxSleeper) Sleep(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.ctx.Done():
	case <-t.C:
	}
}

func runReplay(ctx context.Context, cfg config.Config, svc *gps.Service, sleeper replay.Sleeper) error {
	f, err := os.Open(cfg.GPS.Path)
	if err != nil {
		return err
	}
	recs, err := replay.NewReader(f).ReadAll()
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("replay %s: %w", cfg.GPS.Path, err)
	}
	if sleeper == nil {
		sleeper = ctxSleeper{ctx: ctx}
	}
	return replay.Play(recs, cfg.Replay.Speed, cfg.Replay.Loop, sleeper, func(sentence string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		svc.HandleLine(sentence)
		return nil
	})
}

// runSim feeds one simulated GGA+GSV burst per tick until ctx is done or
// ticks is closed.
func runSim(ctx context.Context, cfg config.SimConfig, svc *gps.Service, ticks <-chan time.Time) error {
	r := sim.Receiver{
		CenterLatDeg: cfg.CenterLatDeg,
		CenterLonDeg: cfg.CenterLonDeg,
		AltMeters:    cfg.AltMeters,
		RadiusNm:     cfg.RadiusNm,
		Period:       cfg.Period,
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now, ok := <-ticks:
			if !ok {
				return nil
			}
			for _, line := range r.Sentences(now) {
				svc.HandleLine(line)
			}
		}
	}
}

func runLive(ctx context.Context, svc *gps.Service) error {
	if err := svc.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	svc.Close()
	return nil
}

// printer writes one JSON object per snapshot update.
type printer struct {
	w          io.Writer
	tf         *strftime.Strftime
	satellites bool
	err        error
}

type updateLine struct {
	Sentence string `json:"sentence"`
	Time     string `json:"time,omitempty"`
	*gps.Snapshot
}

func newPrinter(w io.Writer, out config.OutputConfig) (*printer, error) {
	tf, err := strftime.New(out.TimeFormat)
	if err != nil {
		return nil, fmt.Errorf("time format: %w", err)
	}
	return &printer{w: w, tf: tf, satellites: out.Satellites}, nil
}

func (p *printer) encode(typ gps.SentenceType, snap *gps.Snapshot) ([]byte, error) {
	line := updateLine{Sentence: typ.String(), Snapshot: snap}
	if !p.satellites && len(snap.SatMap) > 0 {
		// Published snapshots are shared; strip the table from a copy.
		cp := snap.Clone()
		cp.SatMap = nil
		line.Snapshot = cp
	}
	if snap.HasTimestamp() {
		line.Time = p.tf.FormatString(snap.Timestamp)
	}
	return json.Marshal(line)
}

func (p *printer) update(typ gps.SentenceType, snap *gps.Snapshot) {
	if p.err != nil {
		return
	}
	b, err := p.encode(typ, snap)
	if err == nil {
		_, err = p.w.Write(append(b, '\n'))
	}
	p.err = err
}
