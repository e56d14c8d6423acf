package sim

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Satellite is one entry of the simulated sky. SNR <= 0 means the
// satellite is in view but not tracked, which GSV reports as an empty field.
type Satellite struct {
	PRN       int
	Elevation int
	Azimuth   int
	SNR       int
}

// AltitudeSwingM is how far the simulated altitude moves above and below
// Receiver.AltMeters.
const AltitudeSwingM = 15.0

// DefaultSky is used when a Receiver has no Satellites.
var DefaultSky = []Satellite{
	{PRN: 2, Elevation: 62, Azimuth: 41, SNR: 44},
	{PRN: 5, Elevation: 18, Azimuth: 297, SNR: 31},
	{PRN: 7, Elevation: 45, Azimuth: 120, SNR: 40},
	{PRN: 9, Elevation: 9, Azimuth: 188, SNR: 0},
	{PRN: 13, Elevation: 33, Azimuth: 252, SNR: 36},
	{PRN: 16, Elevation: 71, Azimuth: 330, SNR: 46},
	{PRN: 20, Elevation: 24, Azimuth: 77, SNR: 28},
	{PRN: 26, Elevation: 5, Azimuth: 150, SNR: 0},
	{PRN: 29, Elevation: 51, Azimuth: 210, SNR: 42},
}

// Receiver synthesizes the NMEA output of a GPS receiver moving along a
// figure-eight around a center point.
type Receiver struct {
	CenterLatDeg float64
	CenterLonDeg float64
	AltMeters    float64
	RadiusNm     float64
	Period       time.Duration
	Satellites   []Satellite
}

// Position returns a deterministic point on the path for now.
func (r Receiver) Position(now time.Time) (latDeg, lonDeg, altM float64) {
	period := r.Period
	if period <= 0 {
		period = 120 * time.Second
	}
	radiusNm := r.RadiusNm
	if radiusNm <= 0 {
		radiusNm = 0.5
	}

	// Convert NM to degrees latitude (~60 NM per degree).
	radiusDeg := radiusNm / 60.0

	phase := float64(now.UnixNano()%period.Nanoseconds()) / float64(period.Nanoseconds())

	// Lissajous figure-eight:
	//	  x = cos(2πt)
	//	  y = 0.5*sin(4πt)
	w := 2 * math.Pi * phase
	x := math.Cos(w)
	y := 0.5 * math.Sin(2*w)

	latDeg = r.CenterLatDeg + radiusDeg*y
	lonDeg = r.CenterLonDeg + (radiusDeg*x)/math.Cos(r.CenterLatDeg*math.Pi/180.0)
	altM = r.AltMeters + AltitudeSwingM*math.Sin(w)
	return latDeg, lonDeg, altM
}

func (r Receiver) sky() []Satellite {
	if len(r.Satellites) == 0 {
		return DefaultSky
	}
	return r.Satellites
}

// Sentences returns one GGA followed by a complete GSV sequence.
func (r Receiver) Sentences(now time.Time) []string {
	lat, lon, alt := r.Position(now)
	sky := r.sky()
	used := 0
	for _, s := range sky {
		if s.SNR > 0 {
			used++
		}
	}
	out := []string{GGA(now, lat, lon, alt, used, 0.9)}
	return append(out, GSV(sky)...)
}

// GGA formats a GPS fix sentence with quality 1.
func GGA(now time.Time, latDeg, lonDeg, altM float64, used int, hdop float64) string {
	now = now.UTC()
	latV, latH := FormatCoordinate(latDeg, true)
	lonV, lonH := FormatCoordinate(lonDeg, false)
	hs := now.Nanosecond() / int(10*time.Millisecond)
	payload := fmt.Sprintf("GPGGA,%02d%02d%02d.%02d,%s,%s,%s,%s,1,%02d,%.1f,%.1f,M,0.0,M,,",
		now.Hour(), now.Minute(), now.Second(), hs,
		latV, latH, lonV, lonH, used, hdop, altM)
	return wrap(payload)
}

// GSV splits sky into as many 4-satellite sentences as needed.
func GSV(sky []Satellite) []string {
	total := (len(sky) + 3) / 4
	if total == 0 {
		return []string{wrap("GPGSV,1,1,00")}
	}
	out := make([]string, 0, total)
	for n := 0; n < total; n++ {
		var b strings.Builder
		fmt.Fprintf(&b, "GPGSV,%d,%d,%02d", total, n+1, len(sky))
		end := min((n+1)*4, len(sky))
		for _, s := range sky[n*4 : end] {
			fmt.Fprintf(&b, ",%02d,%02d,%03d,", s.PRN, s.Elevation, s.Azimuth)
			if s.SNR > 0 {
				fmt.Fprintf(&b, "%02d", s.SNR)
			}
		}
		out = append(out, wrap(b.String()))
	}
	return out
}

// FormatCoordinate renders decimal degrees as ddmm.mmmm (lat) or
// dddmm.mmmm (lon) plus hemisphere letter.
func FormatCoordinate(dec float64, lat bool) (value, hemisphere string) {
	switch {
	case lat && dec < 0:
		hemisphere = "S"
	case lat:
		hemisphere = "N"
	case dec < 0:
		hemisphere = "W"
	default:
		hemisphere = "E"
	}

	// Work in 1e-4 minutes so rounding carries into the degrees.
	total := int64(math.Round(math.Abs(dec) * 60 * 1e4))
	deg := total / (60 * 1e4)
	mins := float64(total%(60*1e4)) / 1e4
	if lat {
		return fmt.Sprintf("%02d%07.4f", deg, mins), hemisphere
	}
	return fmt.Sprintf("%03d%07.4f", deg, mins), hemisphere
}

func wrap(payload string) string {
	ck := byte(0)
	for i := 0; i < len(payload); i++ {
		ck ^= payload[i]
	}
	return fmt.Sprintf("$%s*%02X", payload, ck)
}
