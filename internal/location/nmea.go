package location

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/trail.report/internal/timeutil"
	"github.com/banshee-data/trail.report/internal/tracking"
)

var (
	ErrNotNMEA          = errors.New("not an NMEA sentence")
	ErrChecksumMissing  = errors.New("NMEA checksum missing")
	ErrChecksumMismatch = errors.New("NMEA checksum mismatch")
)

// Sentence types the receiver source understands.
const (
	TypeGGA = "GGA"
	TypeRMC = "RMC"
	TypeGST = "GST"
)

const (
	knotsToMPS = 0.514444
	// uereMeters converts HDOP into an accuracy estimate when the receiver
	// does not report GST error ellipses.
	uereMeters = 5.0
)

// Sentence is one checksummed NMEA 0183 sentence split into fields.
type Sentence struct {
	Talker string
	Type   string
	Fields []string
}

// Checksum returns the XOR of every byte of body, the part of a sentence
// between '$' and '*'.
func Checksum(body string) byte {
	var cs byte
	for i := 0; i < len(body); i++ {
		cs ^= body[i]
	}
	return cs
}

// FormatSentence builds a complete sentence from its body, adding the
// leading '$' and the checksum.
func FormatSentence(body string) string {
	return fmt.Sprintf("$%s*%02X", body, Checksum(body))
}

// ParseSentence validates and splits a raw line. Proprietary sentences such
// as $PMTK keep their whole address in Type and leave Talker empty.
func ParseSentence(line string) (Sentence, error) {
	line = strings.TrimSpace(line)
	if len(line) < 6 || line[0] != '$' {
		return Sentence{}, ErrNotNMEA
	}
	star := strings.LastIndexByte(line, '*')
	if star < 0 {
		return Sentence{}, ErrChecksumMissing
	}
	body, sum := line[1:star], line[star+1:]
	want, err := strconv.ParseUint(sum, 16, 8)
	if err != nil || len(sum) != 2 {
		return Sentence{}, fmt.Errorf("%w: bad checksum field %q", ErrChecksumMismatch, sum)
	}
	if got := Checksum(body); got != byte(want) {
		return Sentence{}, fmt.Errorf("%w: got %02X, sentence says %02X", ErrChecksumMismatch, got, want)
	}

	fields := strings.Split(body, ",")
	addr := fields[0]
	s := Sentence{Fields: fields[1:]}
	switch {
	case strings.HasPrefix(addr, "P"):
		s.Type = addr
	case len(addr) == 5:
		s.Talker, s.Type = addr[:2], addr[2:]
	default:
		return Sentence{}, fmt.Errorf("%w: address %q", ErrNotNMEA, addr)
	}
	return s, nil
}

func (s Sentence) field(i int) string {
	if i < len(s.Fields) {
		return s.Fields[i]
	}
	return ""
}

type ggaData struct {
	timeOfDay string
	quality   int
	lat, lon  float64
	hdop      *float64
	altitude  *float64
}

type rmcData struct {
	timeOfDay string
	valid     bool
	lat, lon  float64
	speedMPS  *float64
	course    *float64
	date      string
}

type gstData struct {
	timeOfDay string
	accuracyM float64
}

func parseGGA(s Sentence) (ggaData, error) {
	var g ggaData
	g.timeOfDay = s.field(0)
	q, err := strconv.Atoi(s.field(5))
	if err != nil {
		return g, fmt.Errorf("GGA fix quality %q: %w", s.field(5), err)
	}
	g.quality = q
	if q == 0 {
		return g, nil
	}
	if g.lat, err = parseCoordinate(s.field(1), s.field(2)); err != nil {
		return g, fmt.Errorf("GGA latitude: %w", err)
	}
	if g.lon, err = parseCoordinate(s.field(3), s.field(4)); err != nil {
		return g, fmt.Errorf("GGA longitude: %w", err)
	}
	g.hdop = optionalFloat(s.field(7))
	g.altitude = optionalFloat(s.field(8))
	return g, nil
}

func parseRMC(s Sentence) (rmcData, error) {
	var r rmcData
	r.timeOfDay = s.field(0)
	r.date = s.field(8)
	r.valid = s.field(1) == "A"
	if !r.valid {
		return r, nil
	}
	var err error
	if r.lat, err = parseCoordinate(s.field(2), s.field(3)); err != nil {
		return r, fmt.Errorf("RMC latitude: %w", err)
	}
	if r.lon, err = parseCoordinate(s.field(4), s.field(5)); err != nil {
		return r, fmt.Errorf("RMC longitude: %w", err)
	}
	if knots := optionalFloat(s.field(6)); knots != nil {
		mps := *knots * knotsToMPS
		r.speedMPS = &mps
	}
	r.course = optionalFloat(s.field(7))
	return r, nil
}

func parseGST(s Sentence) (gstData, error) {
	latErr := optionalFloat(s.field(5))
	lonErr := optionalFloat(s.field(6))
	if latErr == nil || lonErr == nil {
		return gstData{}, fmt.Errorf("GST without position error estimates")
	}
	return gstData{
		timeOfDay: s.field(0),
		accuracyM: math.Hypot(*latErr, *lonErr),
	}, nil
}

// parseCoordinate converts an NMEA (d)ddmm.mmmm value and hemisphere into
// signed decimal degrees.
func parseCoordinate(value, hemi string) (float64, error) {
	if value == "" {
		return 0, fmt.Errorf("empty coordinate")
	}
	raw, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}
	deg := math.Floor(raw / 100)
	deg += (raw - deg*100) / 60
	switch hemi {
	case "N", "E":
	case "S", "W":
		deg = -deg
	default:
		return 0, fmt.Errorf("hemisphere %q", hemi)
	}
	return deg, nil
}

func optionalFloat(v string) *float64 {
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &f
}

// parseTimeOfDay combines an NMEA hhmmss.sss time with a ddmmyy date. An
// empty date falls back to the UTC date of fallback.
func parseTimeOfDay(hms, date string, fallback time.Time) (time.Time, error) {
	if len(hms) < 6 {
		return time.Time{}, fmt.Errorf("time of day %q", hms)
	}
	h, err1 := strconv.Atoi(hms[0:2])
	m, err2 := strconv.Atoi(hms[2:4])
	sec, err3 := strconv.ParseFloat(hms[4:], 64)
	if err := errors.Join(err1, err2, err3); err != nil {
		return time.Time{}, fmt.Errorf("time of day %q: %w", hms, err)
	}

	fallback = fallback.UTC()
	y, mo, d := fallback.Date()
	if len(date) == 6 {
		dd, err1 := strconv.Atoi(date[0:2])
		mm, err2 := strconv.Atoi(date[2:4])
		yy, err3 := strconv.Atoi(date[4:6])
		if err := errors.Join(err1, err2, err3); err != nil {
			return time.Time{}, fmt.Errorf("date %q: %w", date, err)
		}
		y, mo, d = 2000+yy, time.Month(mm), dd
		if yy >= 80 {
			y -= 100
		}
	}
	whole := math.Floor(sec)
	nanos := int(math.Round((sec - whole) * 1e9))
	return time.Date(y, mo, d, h, m, int(whole), nanos, time.UTC), nil
}

// fixAssembler groups the sentences a receiver emits for one measurement
// epoch, keyed by their time of day, into a single LocationFix. Receivers
// vary in which sentences they send, so an epoch is complete once it holds
// every type seen from the receiver so far; a partial epoch is flushed when
// the next one starts.
type fixAssembler struct {
	clock    timeutil.Clock
	expected map[string]bool
	lastDate string

	timeOfDay string
	emitted   bool
	gga       *ggaData
	rmc       *rmcData
	gst       *gstData
}

func newFixAssembler(clock timeutil.Clock) *fixAssembler {
	return &fixAssembler{clock: clock, expected: make(map[string]bool)}
}

// assemblyResult is a finished epoch. A nil fix means the receiver reported
// that it has no position.
type assemblyResult struct {
	fix *tracking.LocationFix
}

// Add feeds one sentence and returns the epochs it completed, in order.
// Sentence types other than GGA, RMC and GST are ignored.
func (a *fixAssembler) Add(s Sentence) ([]assemblyResult, error) {
	var timeOfDay string
	var apply func()
	switch s.Type {
	case TypeGGA:
		g, err := parseGGA(s)
		if err != nil {
			return nil, err
		}
		timeOfDay, apply = g.timeOfDay, func() { a.gga = &g }
	case TypeRMC:
		r, err := parseRMC(s)
		if err != nil {
			return nil, err
		}
		if r.date != "" {
			a.lastDate = r.date
		}
		timeOfDay, apply = r.timeOfDay, func() { a.rmc = &r }
	case TypeGST:
		g, err := parseGST(s)
		if err != nil {
			return nil, err
		}
		timeOfDay, apply = g.timeOfDay, func() { a.gst = &g }
	default:
		return nil, nil
	}

	var out []assemblyResult
	if timeOfDay != a.timeOfDay {
		if r, ok := a.flush(); ok {
			out = append(out, r)
		}
		a.reset(timeOfDay)
	}
	a.expected[s.Type] = true
	if a.emitted {
		return out, nil
	}
	apply()
	if a.complete() {
		if r, ok := a.build(); ok {
			out = append(out, r)
		}
		a.emitted = true
	}
	return out, nil
}

func (a *fixAssembler) reset(timeOfDay string) {
	a.timeOfDay = timeOfDay
	a.emitted = false
	a.gga, a.rmc, a.gst = nil, nil, nil
}

func (a *fixAssembler) complete() bool {
	for t := range a.expected {
		switch {
		case t == TypeGGA && a.gga == nil,
			t == TypeRMC && a.rmc == nil,
			t == TypeGST && a.gst == nil:
			return false
		}
	}
	return true
}

func (a *fixAssembler) flush() (assemblyResult, bool) {
	if a.emitted || (a.gga == nil && a.rmc == nil) {
		return assemblyResult{}, false
	}
	a.emitted = true
	return a.build()
}

func (a *fixAssembler) build() (assemblyResult, bool) {
	if a.gga == nil && a.rmc == nil {
		return assemblyResult{}, false
	}
	if (a.rmc != nil && !a.rmc.valid) || (a.gga != nil && a.gga.quality == 0) {
		return assemblyResult{fix: nil}, true
	}

	ts, err := parseTimeOfDay(a.timeOfDay, a.lastDate, a.clock.Now())
	if err != nil {
		return assemblyResult{}, false
	}
	fix := &tracking.LocationFix{TimestampMs: timeutil.UnixMillis(ts)}
	if a.gga != nil {
		fix.Latitude, fix.Longitude = a.gga.lat, a.gga.lon
		fix.Altitude = a.gga.altitude
		if a.gga.hdop != nil {
			acc := float32(*a.gga.hdop * uereMeters)
			fix.HorizontalAccuracyM = &acc
		}
	} else {
		fix.Latitude, fix.Longitude = a.rmc.lat, a.rmc.lon
	}
	if a.rmc != nil {
		fix.SpeedMPS = float32Ptr(a.rmc.speedMPS)
		fix.BearingDeg = float32Ptr(a.rmc.course)
	}
	if a.gst != nil {
		acc := float32(a.gst.accuracyM)
		fix.HorizontalAccuracyM = &acc
	}
	return assemblyResult{fix: fix}, true
}

func float32Ptr(v *float64) *float32 {
	if v == nil {
		return nil
	}
	f := float32(*v)
	return &f
}
