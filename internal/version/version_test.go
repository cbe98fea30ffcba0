package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

// stamp sets the ldflags variables for one test.
func stamp(t *testing.T, version, commit, date string) {
	t.Helper()
	v, c, d := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = v, c, d })
	Version, Commit, Date = version, commit, date
}

func TestUnstampedBuild(t *testing.T) {
	assert.Equal(t, "deskchat/dev", UserAgent())
	assert.Equal(t,
		"deskchat dev (commit: unknown, built: unknown, "+runtime.GOOS+"/"+runtime.GOARCH+")",
		Info())
}

func TestInfo(t *testing.T) {
	tests := []struct {
		name                  string
		version, commit, date string
		want                  string
	}{
		{
			"release",
			"1.4.0", "9f3c2e1d0b7a6", "2026-09-30",
			"deskchat 1.4.0 (commit: 9f3c2e1, built: 2026-09-30, ",
		},
		{
			"short commit kept",
			"1.4.1-rc1", "9f3c", "2026-10-02",
			"deskchat 1.4.1-rc1 (commit: 9f3c, built: 2026-10-02, ",
		},
		{
			"empty commit",
			"0.9.0", "", "unknown",
			"deskchat 0.9.0 (commit: , built: unknown, ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stamp(t, tt.version, tt.commit, tt.date)
			assert.Equal(t, tt.want+runtime.GOOS+"/"+runtime.GOARCH+")", Info())
		})
	}
}

func TestUserAgent_FollowsVersion(t *testing.T) {
	stamp(t, "1.4.0", "9f3c2e1d0b7a6", "2026-09-30")
	// Sent in hello frames and IRC CTCP VERSION replies; the commit stays out.
	assert.Equal(t, "deskchat/1.4.0", UserAgent())
}

func TestShort(t *testing.T) {
	assert.Equal(t, "9f3c2e1", short("9f3c2e1d0b7a6"))
	assert.Equal(t, "9f3c2e1", short("9f3c2e1"))
	assert.Equal(t, "9f3c2e", short("9f3c2e"))
	assert.Empty(t, short(""))
}
