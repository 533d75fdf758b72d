package version

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func withVersion(t *testing.T, v, commit, built string) {
	t.Helper()
	oldV, oldC, oldB := Version, GitCommit, BuildTime
	Version, GitCommit, BuildTime = v, commit, built
	t.Cleanup(func() { Version, GitCommit, BuildTime = oldV, oldC, oldB })
}

func TestReleaseVersion(t *testing.T) {
	withVersion(t, "v1.2.3", "0123456789abcdef", "2026-01-02T03:04:05Z")

	assert.Equal(t, "v1.2.3", GetVersion())
	assert.Equal(t, "v1.2.3 (0123456)", GetShortVersion())
	assert.True(t, IsRelease())

	info := GetBuildInfo()
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), info.BuildTime)
	assert.Contains(t, GetDetailedVersion(), "Commit: 0123456789abcdef")
	assert.Contains(t, GetDetailedVersion(), "Built: 2026-01-02T03:04:05Z")
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		zero bool
	}{
		{in: "", zero: true},
		{in: "unknown", zero: true},
		{in: "yesterday", zero: true},
		{in: "2026-01-02T03:04:05Z"},
		{in: "2026-01-02T03:04:05"},
		{in: "2026-01-02 03:04:05"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.zero, parseTime(tt.in).IsZero(), tt.in)
	}
}
