package automation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileCron_FieldCounts(t *testing.T) {
	_, err := compileCron("0 9 * *")
	assert.Error(t, err)

	_, err = compileCron("0 9 * * *")
	assert.NoError(t, err)
}

func TestCronMatches_DomDowUnion(t *testing.T) {
	// Both day-of-month and day-of-week restricted: EITHER match is enough.
	spec, err := compileCron("30 8 1 * 1")
	require.NoError(t, err)

	// 2026-08-01 is a Saturday (dom matches, dow doesn't).
	dt := time.Date(2026, 8, 1, 8, 30, 0, 0, time.UTC)
	assert.True(t, cronMatches(spec, dt))

	// 2026-08-03 is a Monday (dow matches, dom doesn't).
	dt = time.Date(2026, 8, 3, 8, 30, 0, 0, time.UTC)
	assert.True(t, cronMatches(spec, dt))

	// Neither matches.
	dt = time.Date(2026, 8, 4, 8, 30, 0, 0, time.UTC)
	assert.False(t, cronMatches(spec, dt))
}

func TestCronMatches_DomOnlyConstrains(t *testing.T) {
	spec, err := compileCron("0 0 15 * *")
	require.NoError(t, err)

	assert.True(t, cronMatches(spec, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)))
	assert.False(t, cronMatches(spec, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)))
}

func TestCronMatches_DowOnlyConstrains(t *testing.T) {
	spec, err := compileCron("0 9 * * 1-5")
	require.NoError(t, err)

	// 2026-08-03 is a Monday.
	assert.True(t, cronMatches(spec, time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)))
	// 2026-08-01 is a Saturday.
	assert.False(t, cronMatches(spec, time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)))
}

func TestCronMatches_BothAnyMatchesEveryDay(t *testing.T) {
	spec, err := compileCron("*/15 * * * *")
	require.NoError(t, err)

	assert.True(t, cronMatches(spec, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, cronMatches(spec, time.Date(2026, 1, 1, 0, 15, 0, 0, time.UTC)))
	assert.False(t, cronMatches(spec, time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC)))
}

func TestParseCronField_SundayAlias(t *testing.T) {
	spec, err := compileCron("0 0 * * 7")
	require.NoError(t, err)
	// Sunday as weekday 0.
	assert.True(t, spec.dow[0])
	assert.False(t, spec.dow[7])
}

func TestCronNextFireUTC_FindsNextSlot(t *testing.T) {
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	next, ok := cronNextFireUTC("0 12 * * *", "UTC", now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC), next)
}

func TestCronNextFireUTC_InvalidExprReturnsFalse(t *testing.T) {
	_, ok := cronNextFireUTC("not a cron", "UTC", time.Now().UTC())
	assert.False(t, ok)
}
