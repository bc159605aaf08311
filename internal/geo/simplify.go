package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// Recommended tolerances in degrees for the three rendering contexts.
const (
	ToleranceDetail   = 0.00005 // single route on screen, ~5.5 m
	ToleranceOverview = 0.0001  // many routes on screen, ~11 m
	ToleranceLowEnd   = 0.0002  // low-end devices, ~22 m
)

// Simplify reduces the number of vertices of line using the Douglas-Peucker
// algorithm. Points are (lon, lat) and are treated as planar coordinates,
// which holds well for spans under ~100 km. The first and last points are
// always kept. A negative or NaN tolerance is treated as 0. The input is
// never modified.
func Simplify(line orb.LineString, tolerance float64) orb.LineString {
	if len(line) <= 2 {
		return append(orb.LineString(nil), line...)
	}
	if !(tolerance > 0) {
		tolerance = 0
	}
	return douglasPeucker(line, tolerance)
}

func douglasPeucker(line orb.LineString, tolerance float64) orb.LineString {
	if len(line) <= 2 {
		return append(orb.LineString(nil), line...)
	}

	first, last := line[0], line[len(line)-1]
	maxDist := 0.0
	maxIndex := 0
	for i := 1; i < len(line)-1; i++ {
		d := PerpendicularDistance(line[i], first, last)
		if d > maxDist {
			maxDist = d
			maxIndex = i
		}
	}

	if maxIndex == 0 || maxDist <= tolerance {
		return orb.LineString{first, last}
	}

	left := douglasPeucker(line[:maxIndex+1], tolerance)
	right := douglasPeucker(line[maxIndex:], tolerance)

	// right[0] is the junction point already present at the end of left.
	out := make(orb.LineString, 0, len(left)+len(right)-1)
	out = append(out, left...)
	return append(out, right[1:]...)
}

// PerpendicularDistance returns the planar distance from p to the infinite
// line through a and b. When a and b coincide it is the Euclidean distance
// from p to a.
func PerpendicularDistance(p, a, b orb.Point) float64 {
	x, y := p[0], p[1]
	x1, y1 := a[0], a[1]
	x2, y2 := b[0], b[1]

	dx := x2 - x1
	dy := y2 - y1
	length := math.Sqrt(dx*dx + dy*dy)
	if length == 0 {
		return math.Hypot(x-x1, y-y1)
	}
	return math.Abs(dy*x-dx*y+x2*y1-y2*x1) / length
}

// SimplificationStats describes how much a simplification pass reduced a line.
type SimplificationStats struct {
	OriginalPoints   int     `json:"original_points"`
	SimplifiedPoints int     `json:"simplified_points"`
	ReductionPercent float64 `json:"reduction_percent"`
}

// SimplifyWithStats simplifies line and reports the point reduction.
func SimplifyWithStats(line orb.LineString, tolerance float64) (orb.LineString, SimplificationStats) {
	out := Simplify(line, tolerance)
	stats := SimplificationStats{
		OriginalPoints:   len(line),
		SimplifiedPoints: len(out),
	}
	if len(line) > 0 {
		stats.ReductionPercent = (1 - float64(len(out))/float64(len(line))) * 100
	}
	return out, stats
}
