package gps

import (
	"encoding/json"
	"math"
	"time"
)

// FixType is the human-readable label for a GGA fix-quality code.
type FixType string

const (
	FixNone FixType = "No Fix"
	FixGPS  FixType = "GPS Fix"
	FixDGPS FixType = "DGPS Fix"
	FixRTK  FixType = "RTK Fix"
)

// fixTypes maps GGA field 6 to a label. Codes 3 (PPS) and 5+ are rejected.
var fixTypes = map[int]FixType{
	0: FixNone,
	1: FixGPS,
	2: FixDGPS,
	4: FixRTK,
}

// Missing marks a satellite value whose source field did not parse.
var Missing = math.Inf(-1)

// SatInfo is one row of the satellites-in-view table.
type SatInfo struct {
	Elevation float64 `json:"elevation_deg"`
	Azimuth   float64 `json:"azimuth_deg"`
	SNR       float64 `json:"snr_dbhz"`
}

func (s SatInfo) HasElevation() bool { return !math.IsInf(s.Elevation, -1) }
func (s SatInfo) HasAzimuth() bool   { return !math.IsInf(s.Azimuth, -1) }
func (s SatInfo) HasSNR() bool       { return !math.IsInf(s.SNR, -1) }

// MarshalJSON encodes Missing values as null; encoding/json rejects infinities.
func (s SatInfo) MarshalJSON() ([]byte, error) {
	opt := func(v float64) *float64 {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return nil
		}
		return &v
	}
	return json.Marshal(struct {
		Elevation *float64 `json:"elevation_deg"`
		Azimuth   *float64 `json:"azimuth_deg"`
		SNR       *float64 `json:"snr_dbhz"`
	}{opt(s.Elevation), opt(s.Azimuth), opt(s.SNR)})
}

// Snapshot is the decoded receiver state for one logical position update.
//
// Decoders mutate it in place. A decode that returns an error may leave it
// partially updated; callers should discard it (or decode into a Clone).
type Snapshot struct {
	Satellites int     `json:"satellites"`
	Latitude   float64 `json:"lat_deg"`
	Longitude  float64 `json:"lon_deg"`
	Altitude   float64 `json:"alt_m"`
	SNRAvg     float64 `json:"snr_avg"`
	HDOP       float64 `json:"hdop"`
	VDOP       float64 `json:"vdop,omitempty"`

	// SatMap is keyed by PRN.
	SatMap map[int]SatInfo `json:"sat_map,omitempty"`

	FixType FixType `json:"fix_type"`

	// Timestamp is zero until a GGA with a valid time-of-day is decoded.
	Timestamp time.Time `json:"-"`
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		FixType: FixNone,
		SatMap:  map[int]SatInfo{},
	}
}

// Clone returns a deep copy.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return NewSnapshot()
	}
	out := *s
	out.SatMap = make(map[int]SatInfo, len(s.SatMap))
	for prn, info := range s.SatMap {
		out.SatMap[prn] = info
	}
	return &out
}

// HasTimestamp reports whether a valid UTC time has been decoded.
func (s *Snapshot) HasTimestamp() bool {
	return s != nil && !s.Timestamp.IsZero()
}

// setSatellites replaces the satellite table in place and refreshes SNRAvg.
func (s *Snapshot) setSatellites(table map[int]SatInfo) {
	if s.SatMap == nil {
		s.SatMap = make(map[int]SatInfo, len(table))
	}
	clear(s.SatMap)

	sum := 0.0
	n := 0
	for prn, info := range table {
		s.SatMap[prn] = info
		if info.HasSNR() {
			sum += info.SNR
			n++
		}
	}
	s.SNRAvg = 0
	if n > 0 {
		s.SNRAvg = sum / float64(n)
	}
}
