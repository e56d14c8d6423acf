package gps

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"time"
)

const gpsdDefaultAddr = "127.0.0.1:2947"

// dialGPSD connects to gpsd over TCP.
func dialGPSD(ctx context.Context, addr string) (net.Conn, error) {
	if strings.TrimSpace(addr) == "" {
		addr = gpsdDefaultAddr
	}
	d := &net.Dialer{Timeout: 2 * time.Second}
	if ctx == nil {
		return d.Dial("tcp", addr)
	}
	return d.DialContext(ctx, "tcp", addr)
}

// gpsdWatchNMEA asks gpsd to pass through the receiver's NMEA sentences.
// gpsd still interleaves its own JSON reports (VERSION, DEVICES, WATCH).
func gpsdWatchNMEA(conn net.Conn) error {
	_, err := conn.Write([]byte("?WATCH={\"enable\":true,\"nmea\":true}\n"))
	return err
}

type gpsdDevice struct {
	Path   string `json:"path"`
	Driver string `json:"driver"`
	Bps    int    `json:"bps"`
}

type gpsdReport struct {
	Class   string       `json:"class"`
	Release string       `json:"release"`
	Devices []gpsdDevice `json:"devices"`

	// Single-device form of the DEVICE report.
	Path string `json:"path"`
	Bps  int    `json:"bps"`
}

// applyGPSDReport records which receiver gpsd is relaying. Other JSON
// reports, and JSON that does not parse, are ignored.
func (s *Service) applyGPSDReport(line string) {
	var rep gpsdReport
	if err := json.Unmarshal([]byte(line), &rep); err != nil {
		return
	}

	var dev gpsdDevice
	switch rep.Class {
	case "VERSION":
		s.logger.Debug("gpsd connected", "release", rep.Release)
		return
	case "DEVICES":
		if len(rep.Devices) == 0 {
			return
		}
		dev = rep.Devices[0]
	case "DEVICE":
		dev = gpsdDevice{Path: rep.Path, Bps: rep.Bps}
	default:
		return
	}
	if strings.TrimSpace(dev.Path) == "" {
		return
	}

	s.logger.Info("gpsd device", "path", dev.Path, "bps", dev.Bps)
	s.updateStatus(func(st *Status) {
		st.Device = dev.Path
		if dev.Bps > 0 {
			st.Baud = dev.Bps
		}
	})
}
