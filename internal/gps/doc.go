// Package gps decodes NMEA-0183 sentences from a GNSS receiver into a
// Snapshot.
//
// It is intentionally small:
// - GGA for position, altitude, fix quality, satellite count and HDOP
// - GSV for the satellites-in-view table, reassembled across parts
// - A Service that feeds lines from serial, gpsd or any io.Reader
package gps
