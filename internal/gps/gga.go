package gps

import (
	"strconv"
	"strings"
	"time"
)

const (
	maxSatellites = 50
	maxHDOP       = 50.0
)

// Altitude bounds accepted by the GGA decoder, in meters.
const (
	MinAltitudeM = -500.0
	MaxAltitudeM = 10000.0
)

// GGA: Global Positioning System Fix Data
// Fields:
//
//	0: talker+type
//	1: UTC time (hhmmss.sss)
//	2: latitude (ddmm.mmmm)
//	3: N/S
//	4: longitude (dddmm.mmmm)
//	5: E/W
//	6: fix quality (0=invalid, 1=GPS, 2=DGPS, 4=RTK)
//	7: number of satellites
//	8: HDOP
//	9: altitude (meters)
//
// 10: units (M)
func (d *Decoder) decodeGGA(f []string, snap *Snapshot) error {
	if len(f) < 10 {
		return parsingErrorf("GGA frame too short: expected >=10 fields, got %d", len(f))
	}

	if len(f[1]) < 6 {
		return invalidDataf("invalid UTC time %q in GGA frame", f[1])
	}
	// An impossible time-of-day keeps the previous timestamp.
	if ts, ok := parseUTCTime(d.now().UTC(), f[1]); ok {
		snap.Timestamp = ts
	}

	lat, err := ConvertToDecimalDegrees(f[2], f[3])
	if err != nil {
		return coordinateError("latitude", err)
	}
	snap.Latitude = lat

	lon, err := ConvertToDecimalDegrees(f[4], f[5])
	if err != nil {
		return coordinateError("longitude", err)
	}
	snap.Longitude = lon

	q, err := strconv.Atoi(strings.TrimSpace(f[6]))
	if err != nil {
		return invalidDataf("unknown fix quality code: %q", f[6])
	}
	fix, ok := fixTypes[q]
	if !ok {
		return invalidDataf("unknown fix quality code: %d", q)
	}
	snap.FixType = fix

	sats, err := strconv.Atoi(strings.TrimSpace(f[7]))
	if err != nil || sats < 0 || sats > maxSatellites {
		return invalidDataf("number of satellites %q out of range", f[7])
	}
	snap.Satellites = sats

	hdop, ok := parseFloat(f[8])
	if !ok || hdop <= 0 || hdop > maxHDOP {
		return invalidDataf("HDOP value %q out of range", f[8])
	}
	snap.HDOP = hdop

	alt, ok := parseFloat(f[9])
	if !ok || alt < MinAltitudeM || alt > MaxAltitudeM {
		return invalidDataf("altitude %q out of realistic bounds", f[9])
	}
	snap.Altitude = alt

	return nil
}

// parseUTCTime combines hhmmss[.sss] with the calendar date of day.
func parseUTCTime(day time.Time, s string) (time.Time, bool) {
	if len(s) < 6 || !isDigits(s[:6]) {
		return time.Time{}, false
	}
	hh, _ := strconv.Atoi(s[0:2])
	mm, _ := strconv.Atoi(s[2:4])
	ss, _ := strconv.Atoi(s[4:6])
	if hh > 23 || mm > 59 || ss > 59 {
		return time.Time{}, false
	}

	ns := 0
	if len(s) > 7 && s[6] == '.' && isDigits(s[7:]) {
		if frac, err := strconv.ParseFloat("0"+s[6:], 64); err == nil {
			ns = int(frac*1e9 + 0.5)
			if ns >= 1e9 {
				ns = 1e9 - 1
			}
		}
	}

	y, mo, dd := day.Date()
	return time.Date(y, mo, dd, hh, mm, ss, ns, time.UTC), true
}
