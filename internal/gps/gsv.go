package gps

import (
	"strconv"
	"strings"
)

// GSVAssembler collects the satellites of a multi-part GSV sequence.
//
// Part 1 starts a new sequence and fixes how many parts are expected. There
// is no sequence ID, so a lost part 1 merges its parts into whatever sequence
// came before; the stream order is trusted.
//
// The zero value is ready to use.
type GSVAssembler struct {
	expected int
	sats     map[int]SatInfo
}

// GSV: Satellites in View
// Fields:
//
//	0: talker+type
//	1: total number of GSV messages in this sequence
//	2: message number (1..N)
//	3: satellites in view
//	4+: repeated blocks of PRN, elevation (deg), azimuth (deg), SNR (dB-Hz)
//
// Add returns the reassembled table with complete=true when f is the last
// expected part, and clears the accumulator. Satellite blocks with an
// unusable PRN are skipped; unusable elevation/azimuth/SNR become Missing.
func (a *GSVAssembler) Add(f []string) (table map[int]SatInfo, complete bool, err error) {
	if len(f) < 4 {
		return nil, false, parsingErrorf("GSV frame too short: expected >=4 fields, got %d", len(f))
	}

	total, ok := parsePositiveInt(f[1])
	if !ok {
		return nil, false, invalidDataf("invalid GSV message count %q", f[1])
	}
	num, ok := parsePositiveInt(f[2])
	if !ok {
		return nil, false, invalidDataf("invalid GSV message number %q", f[2])
	}
	if num > total {
		return nil, false, invalidDataf("GSV message number %d exceeds count %d", num, total)
	}
	// f[3] (satellites in view) is informational only.

	if num == 1 {
		a.expected = total
		a.sats = make(map[int]SatInfo)
	}
	if a.sats == nil {
		a.sats = make(map[int]SatInfo)
	}

	for i := 4; i+3 < len(f); i += 4 {
		prn, ok := parsePositiveInt(f[i])
		if !ok {
			continue
		}
		a.sats[prn] = SatInfo{
			Elevation: floatOrMissing(f[i+1]),
			Azimuth:   floatOrMissing(f[i+2]),
			SNR:       floatOrMissing(f[i+3]),
		}
	}

	if a.expected == 0 || num != a.expected {
		return nil, false, nil
	}
	table = a.sats
	a.Reset()
	return table, true, nil
}

// Expected is the part count announced by the current sequence's part 1,
// or 0 when no sequence is in progress.
func (a *GSVAssembler) Expected() int { return a.expected }

// Pending returns a copy of the satellites accumulated so far.
func (a *GSVAssembler) Pending() map[int]SatInfo {
	out := make(map[int]SatInfo, len(a.sats))
	for prn, info := range a.sats {
		out[prn] = info
	}
	return out
}

func (a *GSVAssembler) Reset() {
	a.expected = 0
	a.sats = nil
}

func parsePositiveInt(s string) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func floatOrMissing(s string) float64 {
	if v, ok := parseFloat(s); ok {
		return v
	}
	return Missing
}
