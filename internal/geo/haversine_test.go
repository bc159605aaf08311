package geo

import (
	"math/rand"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
)

func TestHaversine_KnownDistances(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
		delta                  float64
	}{
		{"same point", 39.9, 4.1, 39.9, 4.1, 0, 0},
		{"diagonal near equator", 0, 0, 0.001, 0.001, 157.25, 0.1},
		{"one degree of latitude", 0, 0, 1, 0, 111194.93, 0.5},
		{"one degree of longitude at equator", 0, 0, 0, 1, 111194.93, 0.5},
		{"ciutadella to mao", 40.0010, 3.8380, 39.8885, 4.2658, 38556, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Haversine(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			assert.InDelta(t, tt.want, got, tt.delta)
		})
	}
}

func TestHaversine_Symmetric(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		lat1, lon1 := r.Float64()*180-90, r.Float64()*360-180
		lat2, lon2 := r.Float64()*180-90, r.Float64()*360-180

		ab := Haversine(lat1, lon1, lat2, lon2)
		ba := Haversine(lat2, lon2, lat1, lon1)
		assert.InDelta(t, ab, ba, 1e-6, "distance must not depend on direction")
		assert.GreaterOrEqual(t, ab, 0.0)
		assert.Equal(t, 0.0, Haversine(lat1, lon1, lat1, lon1))
	}
}

func TestValidCoordinate(t *testing.T) {
	t.Parallel()

	assert.True(t, ValidCoordinate(0, 0))
	assert.True(t, ValidCoordinate(90, 180))
	assert.True(t, ValidCoordinate(-90, -180))
	assert.False(t, ValidCoordinate(90.0001, 0))
	assert.False(t, ValidCoordinate(0, -180.5))
}

func TestPathLength(t *testing.T) {
	t.Parallel()

	assert.Zero(t, PathLength(nil))
	assert.Zero(t, PathLength(orb.LineString{{4.1, 39.9}}))

	line := orb.LineString{{0, 0}, {0.001, 0.001}, {0.002, 0.002}}
	want := Haversine(0, 0, 0.001, 0.001) + Haversine(0.001, 0.001, 0.002, 0.002)
	assert.InDelta(t, want, PathLength(line), 1e-9)
	assert.InDelta(t, 314.5, PathLength(line), 0.1)
}
