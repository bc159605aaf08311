package geo

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func straightLine(n int) orb.LineString {
	line := make(orb.LineString, n)
	for i := range line {
		line[i] = orb.Point{3.8 + float64(i)*0.001, 39.9 + float64(i)*0.0005}
	}
	return line
}

func randomWalk(seed int64, n int) orb.LineString {
	r := rand.New(rand.NewSource(seed))
	line := make(orb.LineString, n)
	p := orb.Point{4.0, 39.9}
	for i := range line {
		p[0] += (r.Float64() - 0.3) * 0.0004
		p[1] += (r.Float64() - 0.5) * 0.0004
		line[i] = p
	}
	return line
}

func TestSimplify_ShortInputsUnchanged(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Simplify(nil, ToleranceDetail))

	one := orb.LineString{{1, 2}}
	assert.Equal(t, one, Simplify(one, ToleranceDetail))

	two := orb.LineString{{1, 2}, {3, 4}}
	assert.Equal(t, two, Simplify(two, 10))
}

func TestSimplify_CollinearCollapsesToEndpoints(t *testing.T) {
	t.Parallel()

	line := straightLine(100)
	got := Simplify(line, ToleranceOverview)

	want := orb.LineString{line[0], line[99]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Simplify() mismatch (-want +got):\n%s", diff)
	}

	// orb's own Douglas-Peucker agrees on a straight line.
	ref := simplify.DouglasPeucker(ToleranceOverview).Simplify(line.Clone()).(orb.LineString)
	assert.Len(t, ref, 2)
}

func TestSimplify_InvalidToleranceIsZero(t *testing.T) {
	t.Parallel()

	line := orb.LineString{{0, 0}, {1, 1}, {2, 2}}
	for _, tol := range []float64{-1, math.NaN(), math.Inf(-1)} {
		got := Simplify(line, tol)
		if diff := cmp.Diff(orb.LineString{{0, 0}, {2, 2}}, got); diff != "" {
			t.Errorf("Simplify(%v) mismatch (-want +got):\n%s", tol, diff)
		}
	}

	peak := orb.LineString{{0, 0}, {1, 1}, {2, 0}}
	assert.Equal(t, peak, Simplify(peak, -1))
}

func TestSimplify_KeepsPeak(t *testing.T) {
	t.Parallel()

	line := orb.LineString{{0, 0}, {1, 0.5005}, {2, 1}, {3, 0.5005}, {4, 0}}
	got := Simplify(line, 0.01)

	want := orb.LineString{{0, 0}, {2, 1}, {4, 0}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Simplify() mismatch (-want +got):\n%s", diff)
	}

	ref := simplify.DouglasPeucker(0.01).Simplify(line.Clone()).(orb.LineString)
	assert.Equal(t, want, ref)
}

func TestSimplify_ZeroLengthBaseline(t *testing.T) {
	t.Parallel()

	// A closed loop: first and last coincide, so distances are point-to-point.
	loop := orb.LineString{{0, 0}, {0.001, 0}, {0.001, 0.001}, {0, 0.001}, {0, 0}}
	got := Simplify(loop, 0.0001)

	require.GreaterOrEqual(t, len(got), 3)
	assert.Equal(t, loop[0], got[0])
	assert.Equal(t, loop[len(loop)-1], got[len(got)-1])
}

func TestSimplify_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	line := randomWalk(7, 200)
	orig := line.Clone()
	_ = Simplify(line, ToleranceLowEnd)
	assert.Equal(t, orig, line)
}

func TestSimplify_Properties(t *testing.T) {
	t.Parallel()

	tolerances := []float64{0, ToleranceDetail, ToleranceOverview, ToleranceLowEnd, 0.001}
	for seed := int64(1); seed <= 20; seed++ {
		line := randomWalk(seed, 300)

		prevLen := len(line) + 1
		for _, tol := range tolerances {
			once := Simplify(line, tol)

			require.NotEmpty(t, once)
			assert.Equal(t, line[0], once[0], "first point preserved")
			assert.Equal(t, line[len(line)-1], once[len(once)-1], "last point preserved")

			twice := Simplify(once, tol)
			if diff := cmp.Diff(once, twice); diff != "" {
				t.Fatalf("seed %d tol %g not idempotent (-once +twice):\n%s", seed, tol, diff)
			}

			assert.LessOrEqual(t, len(once), prevLen, "point count must not grow with tolerance")
			prevLen = len(once)
		}
	}
}

func TestPerpendicularDistance(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, PerpendicularDistance(orb.Point{0, 1}, orb.Point{-1, 0}, orb.Point{1, 0}), 1e-12)
	// Beyond the segment end the distance is still to the infinite line.
	assert.InDelta(t, 1.0, PerpendicularDistance(orb.Point{5, 1}, orb.Point{-1, 0}, orb.Point{1, 0}), 1e-12)
	assert.InDelta(t, 5.0, PerpendicularDistance(orb.Point{3, 4}, orb.Point{0, 0}, orb.Point{0, 0}), 1e-12)
}

func TestSimplifyWithStats(t *testing.T) {
	t.Parallel()

	out, stats := SimplifyWithStats(straightLine(100), ToleranceDetail)
	assert.Len(t, out, 2)
	assert.Equal(t, 100, stats.OriginalPoints)
	assert.Equal(t, 2, stats.SimplifiedPoints)
	assert.InDelta(t, 98.0, stats.ReductionPercent, 1e-9)

	_, empty := SimplifyWithStats(nil, ToleranceDetail)
	assert.Equal(t, SimplificationStats{}, empty)
}
