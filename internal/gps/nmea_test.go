package gps

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var testNow = time.Date(2024, 3, 23, 8, 0, 0, 0, time.UTC)

func newTestDecoder() *Decoder {
	return NewDecoder(
		WithLogger(log.New(io.Discard)),
		WithClock(func() time.Time { return testNow }),
	)
}

// nmeaLine wraps payload with '$' and a valid checksum.
func nmeaLine(payload string) string {
	ck := byte(0)
	for i := 0; i < len(payload); i++ {
		ck ^= payload[i]
	}
	return fmt.Sprintf("$%s*%02X", payload, ck)
}

func TestConvertToDecimalDegrees(t *testing.T) {
	tests := []struct {
		name  string
		value string
		hemi  string
		want  float64
	}{
		{name: "north", value: "4807.038", hemi: "N", want: 48.1173},
		{name: "south", value: "4807.038", hemi: "S", want: -48.1173},
		{name: "three digit longitude", value: "01131.000", hemi: "E", want: 11.516667},
		{name: "west", value: "12311.120", hemi: "W", want: -123.185333},
		{name: "no fractional minutes", value: "5123", hemi: "N", want: 51.383333},
		{name: "zero", value: "0000.000", hemi: "N", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConvertToDecimalDegrees(tt.value, tt.hemi)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-4)
		})
	}
}

func TestConvertToDecimalDegrees_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		value string
		hemi  string
	}{
		{name: "empty value", value: "", hemi: "N"},
		{name: "empty hemisphere", value: "4807.038", hemi: ""},
		{name: "unknown hemisphere", value: "4807.038", hemi: "X"},
		{name: "shorter than latitude degrees", value: "4", hemi: "N"},
		{name: "shorter than longitude degrees", value: "01", hemi: "E"},
		{name: "degrees not numeric", value: "4a07.038", hemi: "N"},
		{name: "signed degrees", value: "-407.038", hemi: "N"},
		{name: "minutes missing", value: "48", hemi: "N"},
		{name: "minutes not numeric", value: "48ab.cd", hemi: "N"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ConvertToDecimalDegrees(tt.value, tt.hemi)
			var ide *InvalidDataError
			require.ErrorAs(t, err, &ide)
			assert.ErrorIs(t, err, ErrDecode)
		})
	}
}

func TestConvertToDecimalDegrees_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		hemi := rapid.SampledFrom([]string{"N", "S", "E", "W"}).Draw(t, "hemi")
		maxDeg, width := 89, 2
		if hemi == "E" || hemi == "W" {
			maxDeg, width = 179, 3
		}
		deg := rapid.IntRange(0, maxDeg).Draw(t, "deg")
		mins := rapid.Float64Range(0, 59.9999).Draw(t, "mins")

		minStr := fmt.Sprintf("%07.4f", mins)
		value := fmt.Sprintf("%0*d%s", width, deg, minStr)

		got, err := ConvertToDecimalDegrees(value, hemi)
		if err != nil {
			t.Fatalf("ConvertToDecimalDegrees(%q, %q): %v", value, hemi, err)
		}

		parsedMins, _ := strconv.ParseFloat(minStr, 64)
		want := float64(deg) + parsedMins/60.0
		if hemi == "S" || hemi == "W" {
			want = -want
		}
		if diff := got - want; diff > 0.002 || diff < -0.002 {
			t.Fatalf("ConvertToDecimalDegrees(%q, %q)=%v want %v", value, hemi, got, want)
		}
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		line string
		want SentenceType
	}{
		{"$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,,*47", SentenceGGA},
		{"$GPGSV,3,1,11,03,03,111,00*74", SentenceGSV},
		{"$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A", SentenceUnknown},
		{"$GNGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,,*59", SentenceUnknown},
		{"GPGGA,123519", SentenceUnknown},
		{"", SentenceUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.want.String()+"/"+tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.line))
		})
	}
}

func TestSplitFields(t *testing.T) {
	got := SplitFields("  $GPGSV,1,1,01,05,10,20,30*7F\r\n")
	assert.Equal(t, []string{"$GPGSV", "1", "1", "01", "05", "10", "20", "30"}, got)

	got = SplitFields("$GPGGA,1,2")
	assert.Equal(t, []string{"$GPGGA", "1", "2"}, got)
}

func TestParseLine_IgnoresUnknown(t *testing.T) {
	var buf bytes.Buffer
	d := NewDecoder(WithLogger(log.New(&buf)))
	snap := NewSnapshot()
	before := snap.Clone()

	typ, err := d.ParseLine("$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A", snap)
	require.NoError(t, err)
	assert.Equal(t, SentenceUnknown, typ)
	assert.Equal(t, before, snap)
	assert.Empty(t, buf.String(), "unknown sentences must not be logged")
}

func TestParseLine_LogsAndReturnsErrorUnchanged(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Formatter: log.LogfmtFormatter})
	d := NewDecoder(WithLogger(logger))

	typ, err := d.ParseLine("$GPGGA,123519,4807.038,N", NewSnapshot())
	assert.Equal(t, SentenceGGA, typ)

	var pe *ParsingError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Msg, "GGA frame too short")

	out := buf.String()
	assert.Contains(t, out, "level=warn")
	assert.Contains(t, out, "sentence=GGA")
	assert.Contains(t, out, "GGA frame too short")
}

func TestSatInfo_MarshalJSONMissing(t *testing.T) {
	b, err := SatInfo{Elevation: 45, Azimuth: Missing, SNR: 38}.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"elevation_deg":45,"azimuth_deg":null,"snr_dbhz":38}`, string(b))
}

func TestSnapshot_CloneIsDeep(t *testing.T) {
	snap := NewSnapshot()
	snap.SatMap[5] = SatInfo{Elevation: 10, Azimuth: 20, SNR: 30}

	cp := snap.Clone()
	cp.SatMap[6] = SatInfo{}
	cp.Latitude = 1

	assert.Len(t, snap.SatMap, 1)
	assert.Zero(t, snap.Latitude)
}
