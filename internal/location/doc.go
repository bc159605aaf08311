// Package location provides the tracking.LocationSource implementations: an
// NMEA 0183 GPS receiver read through a serial mux, playback of a recorded
// GPX track, and a push-fed source used by the HTTP fix endpoint and tests.
//
// All sources share one fan-out hub. A subscriber that falls behind loses
// fixes rather than stalling the source.
package location
