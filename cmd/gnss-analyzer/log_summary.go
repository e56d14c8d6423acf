package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gnss-analyzer/internal/gps"
	"gnss-analyzer/internal/replay"
)

type logSummary struct {
	Segments    int
	Sentences   int
	Unknown     int
	MaxDuration time.Duration
	TypeCounts  map[string]int
}

func summarizeNMEALog(records []replay.Record) logSummary {
	s := logSummary{TypeCounts: map[string]int{}}
	if len(records) == 0 {
		return s
	}

	origin := time.Duration(0)
	hasSentences := false
	segments := 0

	for _, r := range records {
		if r.IsStart() {
			segments++
			origin = r.At
			continue
		}
		hasSentences = true

		s.Sentences++
		at := r.At - origin
		if at < 0 {
			at = 0
		}
		if at > s.MaxDuration {
			s.MaxDuration = at
		}

		tag, ok := sentenceTag(r.Sentence)
		if !ok {
			s.Unknown++
			continue
		}
		s.TypeCounts[tag]++
	}
	if segments == 0 && hasSentences {
		segments = 1
	}
	s.Segments = segments

	return s
}

// sentenceTag returns the address field ("GPGGA", "GNRMC", ...) of a
// sentence. It does not verify the checksum.
func sentenceTag(sentence string) (string, bool) {
	f := gps.SplitFields(sentence)
	tag := strings.TrimPrefix(f[0], "$")
	if len(tag) != 5 || len(tag) == len(f[0]) {
		return "", false
	}
	return tag, true
}

func printLogSummary(w io.Writer, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	recs, err := replay.NewReader(f).ReadAll()
	if err != nil {
		return err
	}

	s := summarizeNMEALog(recs)

	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "segments: %d\n", s.Segments)
	fmt.Fprintf(w, "sentences: %d\n", s.Sentences)
	fmt.Fprintf(w, "unknown_sentences: %d\n", s.Unknown)
	fmt.Fprintf(w, "max_duration: %s\n", s.MaxDuration)

	keys := make([]string, 0, len(s.TypeCounts))
	for k := range s.TypeCounts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "type_counts:\n")
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %d\n", k, s.TypeCounts[k])
	}
	return nil
}
