package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Method 调度方式
type Method string

const (
	MethodOnce     Method = "once"
	MethodInterval Method = "interval"
	MethodCron     Method = "cron"
)

// IntervalUnit 间隔单位
type IntervalUnit string

const (
	UnitSeconds IntervalUnit = "seconds"
	UnitMinutes IntervalUnit = "minutes"
	UnitHours   IntervalUnit = "hours"
	UnitDays    IntervalUnit = "days"
)

var (
	ErrInvalidConfig = errors.New("invalid schedule config")
)

// Config 调度配置，持久化为带method标签的联合体
// 线上格式逐字段固定:
//
//	{"method":"once","timezone":str,"date":"YYYY-MM-DD","time":"HH:MM:SS"}
//	{"method":"interval","timezone":str,"unit":"seconds|minutes|hours|days","value":int>0}
//	{"method":"cron","timezone":str,"cron":"<5-field expr>","description":str?}
type Config struct {
	Method   Method `json:"method"`
	Timezone string `json:"timezone"`

	// once
	Date string `json:"date,omitempty"`
	Time string `json:"time,omitempty"`

	// interval
	Unit  IntervalUnit `json:"unit,omitempty"`
	Value int          `json:"value,omitempty"`

	// cron
	Cron        string `json:"cron,omitempty"`
	Description string `json:"description,omitempty"`
}

// ParseConfig 解析并校验线上格式
func ParseConfig(raw []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置合法性，包括时区与cron表达式可解析
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Timezone, err)
	}

	switch c.Method {
	case MethodOnce:
		if _, err := c.onceInstant(); err != nil {
			return err
		}
	case MethodInterval:
		if c.Value <= 0 {
			return fmt.Errorf("%w: interval value must be positive, got %d", ErrInvalidConfig, c.Value)
		}
		switch c.Unit {
		case UnitSeconds, UnitMinutes, UnitHours, UnitDays:
		default:
			return fmt.Errorf("%w: unknown interval unit %q", ErrInvalidConfig, c.Unit)
		}
	case MethodCron:
		if _, err := cron.ParseStandard(c.Cron); err != nil {
			return fmt.Errorf("%w: cron %q: %v", ErrInvalidConfig, c.Cron, err)
		}
	default:
		return fmt.Errorf("%w: unknown method %q", ErrInvalidConfig, c.Method)
	}
	return nil
}

// Location 配置的时区，空值按UTC处理
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

func (c *Config) onceInstant() (time.Time, error) {
	loc, err := c.Location()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	at, err := time.ParseInLocation("2006-01-02 15:04:05", c.Date+" "+c.Time, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: once date/time %q %q: %v", ErrInvalidConfig, c.Date, c.Time, err)
	}
	return at, nil
}

func (c *Config) intervalFrom(base time.Time) (time.Time, error) {
	loc, err := c.Location()
	if err != nil {
		return time.Time{}, err
	}

	// days按配置时区做日历运算，跨DST保持本地时刻稳定
	local := base.In(loc)
	switch c.Unit {
	case UnitSeconds:
		return local.Add(time.Duration(c.Value) * time.Second), nil
	case UnitMinutes:
		return local.Add(time.Duration(c.Value) * time.Minute), nil
	case UnitHours:
		return local.Add(time.Duration(c.Value) * time.Hour), nil
	case UnitDays:
		return local.AddDate(0, 0, c.Value), nil
	}
	return time.Time{}, fmt.Errorf("%w: unknown interval unit %q", ErrInvalidConfig, c.Unit)
}

// NextRun 计算下一次运行时间
// lastRun为nil表示新建或更新后的首次计算；返回nil表示不再运行（once已执行）
func (c *Config) NextRun(now time.Time, lastRun *time.Time) (*time.Time, error) {
	switch c.Method {
	case MethodOnce:
		if lastRun != nil {
			return nil, nil
		}
		at, err := c.onceInstant()
		if err != nil {
			return nil, err
		}
		return &at, nil

	case MethodInterval:
		base := now
		if lastRun != nil {
			base = *lastRun
		}
		next, err := c.intervalFrom(base)
		if err != nil {
			return nil, err
		}
		return &next, nil

	case MethodCron:
		spec, err := cron.ParseStandard(c.Cron)
		if err != nil {
			return nil, fmt.Errorf("%w: cron %q: %v", ErrInvalidConfig, c.Cron, err)
		}
		loc, err := c.Location()
		if err != nil {
			return nil, err
		}
		// 严格晚于now，在配置时区求值
		next := spec.Next(now.In(loc))
		return &next, nil
	}
	return nil, fmt.Errorf("%w: unknown method %q", ErrInvalidConfig, c.Method)
}
