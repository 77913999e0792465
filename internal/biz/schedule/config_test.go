package schedule

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigOnce(t *testing.T) {
	raw := []byte(`{"method":"once","timezone":"UTC","date":"2026-03-01","time":"09:30:00"}`)
	cfg, err := ParseConfig(raw)
	require.NoError(t, err)
	assert.Equal(t, MethodOnce, cfg.Method)

	next, err := cfg.NextRun(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), nil)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC), next.UTC())
}

func TestParseConfigRoundTrip(t *testing.T) {
	// 线上格式逐字段固定，不携带其他method的零值字段
	cfg := &Config{Method: MethodInterval, Timezone: "UTC", Unit: UnitMinutes, Value: 15}
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"method":"interval","timezone":"UTC","unit":"minutes","value":15}`, string(raw))

	parsed, err := ParseConfig(raw)
	require.NoError(t, err)
	assert.Equal(t, cfg, parsed)
}

func TestParseConfigRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"unknown method", `{"method":"weekly","timezone":"UTC"}`},
		{"zero interval", `{"method":"interval","timezone":"UTC","unit":"hours","value":0}`},
		{"negative interval", `{"method":"interval","timezone":"UTC","unit":"hours","value":-2}`},
		{"unknown unit", `{"method":"interval","timezone":"UTC","unit":"weeks","value":1}`},
		{"bad timezone", `{"method":"cron","timezone":"Mars/Olympus","cron":"* * * * *"}`},
		{"bad cron", `{"method":"cron","timezone":"UTC","cron":"not a cron"}`},
		{"six field cron", `{"method":"cron","timezone":"UTC","cron":"0 0 9 * * 1"}`},
		{"bad once date", `{"method":"once","timezone":"UTC","date":"2026-13-40","time":"00:00:00"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tc.raw))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestNextRunOnceAlreadyRan(t *testing.T) {
	cfg := &Config{Method: MethodOnce, Timezone: "UTC", Date: "2026-03-01", Time: "09:30:00"}
	ranAt := time.Date(2026, 3, 1, 9, 30, 5, 0, time.UTC)

	next, err := cfg.NextRun(ranAt, &ranAt)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestNextRunIntervalFromLastRun(t *testing.T) {
	cfg := &Config{Method: MethodInterval, Timezone: "UTC", Unit: UnitHours, Value: 6}
	lastRun := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

	next, err := cfg.NextRun(time.Date(2026, 5, 10, 12, 0, 3, 0, time.UTC), &lastRun)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, lastRun.Add(6*time.Hour), next.UTC())
}

func TestNextRunIntervalDaysAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 2026-03-08 美东进入夏令时，日历运算保持本地时刻02:30不漂移
	cfg := &Config{Method: MethodInterval, Timezone: "America/New_York", Unit: UnitDays, Value: 1}
	lastRun := time.Date(2026, 3, 7, 14, 30, 0, 0, loc)

	next, err := cfg.NextRun(lastRun, &lastRun)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, 3, 8, 14, 30, 0, 0, loc).Unix(), next.Unix())
	assert.Equal(t, 14, next.In(loc).Hour())
}

func TestNextRunCronWeekdayMornings(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	cfg := &Config{Method: MethodCron, Timezone: "America/New_York", Cron: "0 9 * * 1-5"}

	// 周六执行，下一次应是周一09:00本地时间
	saturday := time.Date(2026, 1, 10, 15, 0, 0, 0, loc)
	next, err := cfg.NextRun(saturday, nil)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, 1, 12, 9, 0, 0, 0, loc).Unix(), next.Unix())
	assert.Equal(t, time.Monday, next.In(loc).Weekday())
}

func TestNextRunCronStrictlyAfterNow(t *testing.T) {
	cfg := &Config{Method: MethodCron, Timezone: "UTC", Cron: "0 9 * * *"}
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

	next, err := cfg.NextRun(now, nil)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, 1, 11, 9, 0, 0, 0, time.UTC), next.UTC())
}

func TestEmptyTimezoneDefaultsToUTC(t *testing.T) {
	cfg := &Config{Method: MethodOnce, Date: "2026-03-01", Time: "09:30:00"}
	require.NoError(t, cfg.Validate())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestScheduleAdvance(t *testing.T) {
	t.Run("interval keeps running", func(t *testing.T) {
		s := &FunctionSchedule{
			ID:           1,
			FunctionName: "cleanup",
			Config:       Config{Method: MethodInterval, Timezone: "UTC", Unit: UnitMinutes, Value: 30},
			IsActive:     true,
		}
		require.NoError(t, s.Reschedule(time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)))
		require.NotNil(t, s.NextRunAt)

		ranAt := time.Date(2026, 4, 1, 10, 30, 1, 0, time.UTC)
		require.NoError(t, s.Advance(ranAt))
		assert.True(t, s.IsActive)
		require.NotNil(t, s.NextRunAt)
		assert.Equal(t, ranAt.Add(30*time.Minute), s.NextRunAt.UTC())
	})

	t.Run("once deactivates after one run", func(t *testing.T) {
		s := &FunctionSchedule{
			ID:           2,
			FunctionName: "report",
			Config:       Config{Method: MethodOnce, Timezone: "UTC", Date: "2026-04-01", Time: "10:00:00"},
			IsActive:     true,
		}
		require.NoError(t, s.Reschedule(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
		require.NotNil(t, s.NextRunAt)

		ranAt := time.Date(2026, 4, 1, 10, 0, 2, 0, time.UTC)
		require.NoError(t, s.Advance(ranAt))
		assert.False(t, s.IsActive)
		assert.Nil(t, s.NextRunAt)
		require.NotNil(t, s.LastRunAt)
		assert.Equal(t, ranAt, *s.LastRunAt)
	})
}

func TestScheduleDue(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.True(t, (&FunctionSchedule{IsActive: true, NextRunAt: &past}).Due(now))
	assert.True(t, (&FunctionSchedule{IsActive: true, NextRunAt: &now}).Due(now))
	assert.False(t, (&FunctionSchedule{IsActive: true, NextRunAt: &future}).Due(now))
	assert.False(t, (&FunctionSchedule{IsActive: false, NextRunAt: &past}).Due(now))
	assert.False(t, (&FunctionSchedule{IsActive: true}).Due(now))
}
