package gps

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// SentenceType identifies which decoder handles a raw line.
type SentenceType int

const (
	SentenceUnknown SentenceType = iota
	SentenceGGA
	SentenceGSV
)

func (t SentenceType) String() string {
	switch t {
	case SentenceGGA:
		return "GGA"
	case SentenceGSV:
		return "GSV"
	default:
		return "unknown"
	}
}

// Classify looks only at the leading tag. Other talker IDs (GN, GL, ...) are
// not recognized: their GSV sequences would interleave with GP ones.
func Classify(line string) SentenceType {
	switch {
	case strings.HasPrefix(line, "$GPGGA"):
		return SentenceGGA
	case strings.HasPrefix(line, "$GPGSV"):
		return SentenceGSV
	default:
		return SentenceUnknown
	}
}

// SplitFields returns the comma-separated fields of a sentence, tag included.
// A trailing "*HH" checksum is dropped without being verified.
func SplitFields(line string) []string {
	line = strings.TrimSpace(line)
	if star := strings.LastIndexByte(line, '*'); star != -1 {
		line = line[:star]
	}
	return strings.Split(line, ",")
}

// Decoder decodes the sentences of one receiver stream. It owns the GSV
// reassembly state for that stream and is not safe for concurrent use; use
// one Decoder per stream.
type Decoder struct {
	logger *log.Logger
	now    func() time.Time
	gsv    GSVAssembler

	// gsvComplete is set when the last DecodeGSV call finished a sequence.
	gsvComplete bool
}

type DecoderOption func(*Decoder)

// WithLogger sets the logger decode failures are reported to.
func WithLogger(l *log.Logger) DecoderOption {
	return func(d *Decoder) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithClock sets the source of the calendar date combined with GGA times.
func WithClock(now func() time.Time) DecoderOption {
	return func(d *Decoder) {
		if now != nil {
			d.now = now
		}
	}
}

func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{logger: log.Default(), now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ParseLine classifies line and decodes it into snap. Unknown sentences are
// ignored and reported as SentenceUnknown with a nil error.
func (d *Decoder) ParseLine(line string, snap *Snapshot) (SentenceType, error) {
	line = strings.TrimSpace(line)
	typ := Classify(line)
	switch typ {
	case SentenceGGA:
		return typ, d.DecodeGGA(SplitFields(line), snap)
	case SentenceGSV:
		return typ, d.DecodeGSV(SplitFields(line), snap)
	default:
		return typ, nil
	}
}

// DecodeGSV feeds one GSV part to the stream's assembler. When the part
// completes a sequence, the reassembled table replaces snap.SatMap and
// snap.SNRAvg is recomputed; otherwise snap is left untouched.
func (d *Decoder) DecodeGSV(fields []string, snap *Snapshot) error {
	table, complete, err := d.gsv.Add(fields)
	d.gsvComplete = complete
	if err != nil {
		d.warn(SentenceGSV, err)
		return err
	}
	if complete {
		snap.setSatellites(table)
	}
	return nil
}

// DecodeGGA validates fields in order and writes each one as it passes.
// On error, fields before the failing one have already been written.
func (d *Decoder) DecodeGGA(fields []string, snap *Snapshot) error {
	if err := d.decodeGGA(fields, snap); err != nil {
		d.warn(SentenceGGA, err)
		return err
	}
	return nil
}

// GSVComplete reports whether the last DecodeGSV call finished a sequence
// and therefore replaced the snapshot's satellite table.
func (d *Decoder) GSVComplete() bool { return d.gsvComplete }

// GSVProgress reports the part count announced for the sequence being
// assembled (0 between sequences) and the satellites collected so far.
func (d *Decoder) GSVProgress() (expected, satellites int) {
	return d.gsv.Expected(), len(d.gsv.Pending())
}

func (d *Decoder) warn(typ SentenceType, err error) {
	d.logger.Warn("nmea decode failed", "sentence", typ.String(), "err", err)
}

// ConvertToDecimalDegrees converts ddmm.mmmm (N/S) or dddmm.mmmm (E/W) plus a
// hemisphere letter to signed decimal degrees.
func ConvertToDecimalDegrees(value, hemisphere string) (float64, error) {
	if value == "" || hemisphere == "" {
		return 0, invalidDataf("empty latitude/longitude or hemisphere")
	}

	var width int
	switch hemisphere {
	case "N", "S":
		width = 2
	case "E", "W":
		width = 3
	default:
		return 0, invalidDataf("unknown hemisphere %q", hemisphere)
	}
	if len(value) < width {
		return 0, invalidDataf("coordinate %q too short for %d degree digits", value, width)
	}

	degPart := value[:width]
	if !isDigits(degPart) {
		return 0, invalidDataf("coordinate %q: bad degrees", value)
	}
	deg, err := strconv.Atoi(degPart)
	if err != nil {
		return 0, invalidDataf("coordinate %q: bad degrees", value)
	}
	mins, err := strconv.ParseFloat(value[width:], 64)
	if err != nil || math.IsNaN(mins) || math.IsInf(mins, 0) || mins < 0 {
		return 0, invalidDataf("coordinate %q: bad minutes", value)
	}

	dec := float64(deg) + mins/60.0
	if hemisphere == "S" || hemisphere == "W" {
		dec = -dec
	}
	return dec, nil
}

// coordinateError prefixes a converter failure with the coordinate name.
func coordinateError(name string, err error) error {
	var ide *InvalidDataError
	if errors.As(err, &ide) {
		return invalidDataf("%s conversion failed: %s", name, ide.Msg)
	}
	return invalidDataf("%s conversion failed: %v", name, err)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
