package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	defer func(v, sha, built string) { Version, GitSHA, BuildTime = v, sha, built }(Version, GitSHA, BuildTime)

	assert.Equal(t, "dev (unknown, built unknown)", String())

	Version, GitSHA, BuildTime = "0.4.0", "4f2a9c1", "2026-04-12T09:00:00Z"
	assert.Equal(t, "0.4.0 (4f2a9c1, built 2026-04-12T09:00:00Z)", String())
}
