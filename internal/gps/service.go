package gps

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// Config controls where the Service reads NMEA from.
//
// Source "serial" (the default) reads Device at Baud; an empty Device is
// auto-detected. Source "gpsd" asks gpsd at GPSDAddr for its raw NMEA
// stream. Readers handed to Consume need no Config beyond Enable.
type Config struct {
	Enable bool

	Source   string
	GPSDAddr string

	Device string
	Baud   int
}

// Status is the Service's view of its stream. Snapshot is never mutated
// after it is published.
type Status struct {
	Enabled bool `json:"enabled"`
	// Valid is true once a GGA with a fix other than "No Fix" was decoded.
	Valid bool `json:"valid"`

	Source   string `json:"source,omitempty"`
	GPSDAddr string `json:"gpsd_addr,omitempty"`
	Device   string `json:"device,omitempty"`
	Baud     int    `json:"baud,omitempty"`

	Lines  uint64 `json:"lines"`
	Errors uint64 `json:"errors"`

	LastSentence  string `json:"last_sentence,omitempty"`
	LastUpdateUTC string `json:"last_update_utc,omitempty"`
	LastError     string `json:"last_error,omitempty"`

	Snapshot *Snapshot `json:"snapshot,omitempty"`
}

const (
	// NMEA sentences are typically < 82 chars, but allow some headroom.
	maxSerialLine = 4096
	// gpsd JSON reports (DEVICES, SKY) can be far longer than a sentence.
	maxGPSDLine = 256 * 1024
	// Files and pipes may carry either.
	maxReaderLine = 64 * 1024
)

// UpdateFunc is called from the reading goroutine after a line changed the
// snapshot: every GGA, and every GSV that completed a sequence.
type UpdateFunc func(typ SentenceType, snap *Snapshot)

type ServiceOption func(*Service)

func WithServiceLogger(l *log.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDecoder replaces the Service's decoder, e.g. to inject a clock.
func WithDecoder(d *Decoder) ServiceOption {
	return func(s *Service) {
		if d != nil {
			s.decoder = d
		}
	}
}

func WithOnUpdate(fn UpdateFunc) ServiceOption {
	return func(s *Service) { s.onUpdate = fn }
}

// WithOnLine registers a hook that sees every NMEA line before it is decoded.
func WithOnLine(fn func(line string)) ServiceOption {
	return func(s *Service) { s.onLine = fn }
}

// Service decodes a single receiver stream. Start and Consume must not be
// used at the same time on one Service.
type Service struct {
	cfg     Config
	logger  *log.Logger
	decoder *Decoder

	onUpdate UpdateFunc
	onLine   func(line string)

	cancel context.CancelFunc
	wg     sync.WaitGroup

	last atomic.Value // Status

	mu     sync.Mutex
	closer io.Closer

	// Owned by the goroutine running consume.
	cur      *Snapshot
	lines    uint64
	errCount uint64
}

func New(cfg Config, opts ...ServiceOption) *Service {
	s := &Service{cfg: cfg, logger: log.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.decoder == nil {
		s.decoder = NewDecoder(WithLogger(s.logger))
	}
	s.cur = NewSnapshot()
	s.last.Store(Status{
		Enabled:  cfg.Enable,
		Source:   s.source(),
		GPSDAddr: strings.TrimSpace(cfg.GPSDAddr),
		Device:   cfg.Device,
		Baud:     cfg.Baud,
	})
	return s
}

func (s *Service) source() string {
	src := strings.ToLower(strings.TrimSpace(s.cfg.Source))
	if src == "" {
		src = "serial"
	}
	return src
}

// Start opens the configured serial device or gpsd connection and decodes
// in the background until ctx is done or Close is called.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("gps service is nil")
	}
	if !s.cfg.Enable {
		return nil
	}
	if ctx == nil {
		return fmt.Errorf("ctx is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	switch src := s.source(); src {
	case "serial":
		return s.startSerialLocked(ctx)
	case "gpsd":
		return s.startGPSDLocked(ctx)
	default:
		return fmt.Errorf("unknown gps source %q", src)
	}
}

func (s *Service) startSerialLocked(ctx context.Context) error {
	device := strings.TrimSpace(s.cfg.Device)
	if device == "" {
		device = autoDetectDevice()
		if device == "" {
			s.setErrorLocked("gps auto-detect failed: no /dev/ttyACM* or /dev/ttyUSB* found")
			return fmt.Errorf("gps auto-detect failed")
		}
	}

	baud := s.cfg.Baud
	if baud == 0 {
		baud = 9600
	}

	port, err := openSerial(device, baud)
	if err != nil {
		s.setErrorLocked(fmt.Sprintf("gps open failed device=%s baud=%d: %v", device, baud, err))
		return fmt.Errorf("open %s: %w", device, err)
	}
	s.closer = port

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.updateStatusLocked(func(st *Status) {
		st.Device = device
		st.Baud = baud
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			_ = port.Close()
		}()

		s.logger.Info("gps enabled", "device", device, "baud", baud)
		if err := s.consume(childCtx, port, maxSerialLine); err != nil && childCtx.Err() == nil {
			s.setError(fmt.Sprintf("gps read stopped: %v", err))
		}
	}()
	return nil
}

func (s *Service) startGPSDLocked(ctx context.Context) error {
	addr := strings.TrimSpace(s.cfg.GPSDAddr)
	if addr == "" {
		addr = gpsdDefaultAddr
	}

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.updateStatusLocked(func(st *Status) {
		st.GPSDAddr = addr
		st.Device = "gpsd"
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.logger.Info("gps enabled", "source", "gpsd", "addr", addr)
		backoff := 250 * time.Millisecond
		maxBackoff := 10 * time.Second

		for {
			select {
			case <-childCtx.Done():
				return
			default:
			}

			conn, err := dialGPSD(childCtx, addr)
			if err != nil {
				s.setError(fmt.Sprintf("gpsd dial failed addr=%s: %v", addr, err))
				t := backoff
				if t > maxBackoff {
					t = maxBackoff
				}
				select {
				case <-childCtx.Done():
					return
				case <-time.After(t):
				}
				if backoff < maxBackoff {
					backoff *= 2
				}
				continue
			}

			backoff = 250 * time.Millisecond

			s.mu.Lock()
			// Swap the closer so Close() can interrupt an active connection.
			s.closer = conn
			s.mu.Unlock()

			func() {
				defer func() { _ = conn.Close() }()

				if err := gpsdWatchNMEA(conn); err != nil {
					s.setError(fmt.Sprintf("gpsd watch failed: %v", err))
					return
				}
				if err := s.consume(childCtx, conn, maxGPSDLine); err != nil && childCtx.Err() == nil {
					s.setError(fmt.Sprintf("gpsd read stopped: %v", err))
				}
			}()

			// Dropped connection; back off before redialing.
			select {
			case <-childCtx.Done():
				return
			case <-time.After(backoff):
			}
		}
	}()
	return nil
}

// Consume decodes newline-delimited NMEA from r until EOF, a read error or
// ctx is done. It returns nil at EOF.
func (s *Service) Consume(ctx context.Context, r io.Reader) error {
	if s == nil {
		return fmt.Errorf("gps service is nil")
	}
	if ctx == nil {
		return fmt.Errorf("ctx is nil")
	}
	err := s.consume(ctx, r, maxReaderLine)
	if err == io.EOF {
		return nil
	}
	return err
}

func (s *Service) consume(ctx context.Context, r io.Reader, maxLine int) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 256), maxLine)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return io.EOF
		}
		s.HandleLine(scanner.Text())
	}
}

// HandleLine decodes one line against a copy of the current snapshot. The
// copy replaces the current snapshot only if decoding succeeded, so a
// rejected sentence never leaves a half-updated snapshot behind.
func (s *Service) HandleLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if strings.HasPrefix(line, "{") {
		s.applyGPSDReport(line)
		return
	}
	// Some receivers may include non-NMEA chatter; filter quickly.
	if !strings.HasPrefix(line, "$") {
		return
	}
	if s.onLine != nil {
		s.onLine(line)
	}

	s.lines++
	work := s.cur.Clone()
	typ, err := s.decoder.ParseLine(line, work)
	if err != nil {
		s.errCount++
		s.updateStatus(func(st *Status) {
			st.Lines = s.lines
			st.Errors = s.errCount
			st.LastError = err.Error()
		})
		return
	}
	if typ == SentenceUnknown {
		s.updateStatus(func(st *Status) { st.Lines = s.lines })
		return
	}

	changed := typ == SentenceGGA || s.decoder.GSVComplete()
	if typ == SentenceGSV && !changed {
		expected, sats := s.decoder.GSVProgress()
		s.logger.Debug("gsv sequence pending", "expected", expected, "satellites", sats)
	}
	if changed {
		s.cur = work
	}
	now := time.Now().UTC()
	s.updateStatus(func(st *Status) {
		st.Lines = s.lines
		st.LastSentence = typ.String()
		if changed {
			st.Snapshot = s.cur
			st.LastUpdateUTC = now.Format(time.RFC3339Nano)
		}
		if typ == SentenceGGA {
			st.Valid = s.cur.FixType != FixNone
		}
	})
	if changed && s.onUpdate != nil {
		s.onUpdate(typ, s.cur)
	}
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	closer := s.closer
	s.cancel = nil
	s.closer = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if closer != nil {
		_ = closer.Close()
	}
	s.wg.Wait()
}

func (s *Service) Status() Status {
	if s == nil {
		return Status{}
	}
	v := s.last.Load()
	if v == nil {
		return Status{}
	}
	return v.(Status)
}

func (s *Service) updateStatus(fn func(st *Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateStatusLocked(fn)
}

func (s *Service) updateStatusLocked(fn func(st *Status)) {
	cur := s.Status()
	fn(&cur)
	s.last.Store(cur)
}

func (s *Service) setError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setErrorLocked(msg)
}

func (s *Service) setErrorLocked(msg string) {
	cur := s.Status()
	cur.LastError = msg
	// Transient read issues shouldn't flip validity.
	s.last.Store(cur)
}

func autoDetectDevice() string {
	candidates := []string{}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyACM%d", i))
	}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyUSB%d", i))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
