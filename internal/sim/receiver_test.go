package sim

import (
	"io"
	"math"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"gnss-analyzer/internal/gps"
)

func TestReceiver_Position_Invariants(t *testing.T) {
	r := Receiver{
		CenterLatDeg: 45.0,
		CenterLonDeg: -122.0,
		AltMeters:    300,
		RadiusNm:     1.0,
		Period:       60 * time.Second,
	}

	now := time.Date(2025, 12, 20, 19, 0, 0, 0, time.UTC)
	lat, lon, alt := r.Position(now)

	radiusDeg := r.RadiusNm / 60.0
	if math.Abs(lat-r.CenterLatDeg) > radiusDeg*1.01 {
		t.Fatalf("lat offset too large: got %f want <= %f", math.Abs(lat-r.CenterLatDeg), radiusDeg)
	}
	// Lon offset is scaled by cos(lat).
	maxLonDeg := radiusDeg / math.Cos(r.CenterLatDeg*math.Pi/180.0)
	if math.Abs(lon-r.CenterLonDeg) > maxLonDeg*1.01 {
		t.Fatalf("lon offset too large: got %f want <= %f", math.Abs(lon-r.CenterLonDeg), maxLonDeg)
	}
	if math.Abs(alt-r.AltMeters) > AltitudeSwingM {
		t.Fatalf("alt=%f too far from %f", alt, r.AltMeters)
	}

	lat2, lon2, alt2 := r.Position(now)
	if lat != lat2 || lon != lon2 || alt != alt2 {
		t.Fatalf("expected deterministic result for same now")
	}
}

func TestFormatCoordinate(t *testing.T) {
	tests := []struct {
		dec   float64
		lat   bool
		value string
		hemi  string
	}{
		{48.1173, true, "4807.0380", "N"},
		{-33.5, true, "3330.0000", "S"},
		{11.516666666, false, "01131.0000", "E"},
		{-122.25, false, "12215.0000", "W"},
		{0, true, "0000.0000", "N"},
		// 59.99999 minutes rounds into the next degree.
		{10.99999999, true, "1100.0000", "N"},
	}
	for _, tt := range tests {
		v, h := FormatCoordinate(tt.dec, tt.lat)
		assert.Equal(t, tt.value, v, "dec=%v", tt.dec)
		assert.Equal(t, tt.hemi, h, "dec=%v", tt.dec)
	}
}

func TestFormatCoordinate_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lat := rapid.Bool().Draw(t, "lat")
		limit := 180.0
		if lat {
			limit = 90.0
		}
		dec := rapid.Float64Range(-limit+1e-3, limit-1e-3).Draw(t, "dec")

		v, h := FormatCoordinate(dec, lat)
		got, err := gps.ConvertToDecimalDegrees(v, h)
		if err != nil {
			t.Fatalf("ConvertToDecimalDegrees(%q,%q): %v", v, h, err)
		}
		if math.Abs(got-dec) > 1e-6 {
			t.Fatalf("round trip %v -> %s%s -> %v", dec, v, h, got)
		}
	})
}

func TestGSV_Partitioning(t *testing.T) {
	parts := GSV(DefaultSky)
	require.Len(t, parts, 3)
	assert.Equal(t, "$GPGSV,3,3,09,29,51,210,42*", parts[2][:len(parts[2])-2])

	empty := GSV(nil)
	require.Len(t, empty, 1)
	assert.Equal(t, gps.SentenceGSV, gps.Classify(empty[0]))
}

func TestReceiver_SentencesDecode(t *testing.T) {
	now := time.Date(2025, 12, 20, 19, 4, 5, 250*int(time.Millisecond), time.UTC)
	r := Receiver{CenterLatDeg: 47.6, CenterLonDeg: -122.3, AltMeters: 120}

	d := gps.NewDecoder(gps.WithLogger(log.New(io.Discard)), gps.WithClock(func() time.Time { return now }))
	snap := gps.NewSnapshot()
	lines := r.Sentences(now)
	require.Len(t, lines, 4)
	for _, line := range lines {
		_, err := d.ParseLine(line, snap)
		require.NoError(t, err, line)
	}

	lat, lon, alt := r.Position(now)
	assert.InDelta(t, lat, snap.Latitude, 1e-6)
	assert.InDelta(t, lon, snap.Longitude, 1e-6)
	assert.InDelta(t, alt, snap.Altitude, 0.051)
	assert.Equal(t, gps.FixGPS, snap.FixType)
	assert.Equal(t, 7, snap.Satellites)
	assert.InDelta(t, 0.9, snap.HDOP, 1e-9)
	assert.Equal(t, now, snap.Timestamp)

	require.Len(t, snap.SatMap, len(DefaultSky))
	assert.False(t, snap.SatMap[9].HasSNR())
	assert.Equal(t, 44.0, snap.SatMap[2].SNR)
	assert.InDelta(t, 267.0/7, snap.SNRAvg, 1e-9)
}

func TestReceiver_AltitudeAtDecoderLimitDecodes(t *testing.T) {
	for _, base := range []float64{gps.MaxAltitudeM - AltitudeSwingM, gps.MinAltitudeM + AltitudeSwingM} {
		r := Receiver{AltMeters: base, Period: 40 * time.Second}
		d := gps.NewDecoder(gps.WithLogger(log.New(io.Discard)))
		// Sample the whole vertical cycle, including both peaks.
		start := time.Date(2025, 12, 20, 19, 0, 0, 0, time.UTC)
		for i := 0; i < 80; i++ {
			snap := gps.NewSnapshot()
			line := r.Sentences(start.Add(time.Duration(i) * 500 * time.Millisecond))[0]
			_, err := d.ParseLine(line, snap)
			require.NoError(t, err, "base=%v line=%s", base, line)
		}
	}
}
