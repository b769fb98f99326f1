package cadence

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jpalmerr/cadence/clock"
)

// Locale selects the language of a relative time rendering.
type Locale string

const (
	LocaleEN Locale = "en"
	LocaleZH Locale = "zh"
)

// TimeUnit is a granularity of relative time. Months are 30 days and years
// 365 days.
type TimeUnit int

const (
	UnitSecond TimeUnit = iota + 1
	UnitMinute
	UnitHour
	UnitDay
	UnitWeek
	UnitMonth
	UnitYear
)

var unitNames = map[TimeUnit]string{
	UnitSecond: "second",
	UnitMinute: "minute",
	UnitHour:   "hour",
	UnitDay:    "day",
	UnitWeek:   "week",
	UnitMonth:  "month",
	UnitYear:   "year",
}

var zhUnitNames = map[TimeUnit]string{
	UnitSecond: "秒",
	UnitMinute: "分钟",
	UnitHour:   "小时",
	UnitDay:    "天",
	UnitWeek:   "周",
	UnitMonth:  "个月",
	UnitYear:   "年",
}

// String returns the English unit name, e.g. "minute".
func (u TimeUnit) String() string {
	if name, ok := unitNames[u]; ok {
		return name
	}
	return fmt.Sprintf("TimeUnit(%d)", int(u))
}

// count returns how many whole units fit in d.
func (u TimeUnit) count(d time.Duration) int64 {
	const day = 24 * time.Hour
	switch u {
	case UnitSecond:
		return int64(d / time.Second)
	case UnitMinute:
		return int64(d / time.Minute)
	case UnitHour:
		return int64(d / time.Hour)
	case UnitDay:
		return int64(d / day)
	case UnitWeek:
		return int64(d / (7 * day))
	case UnitMonth:
		return int64(d / (30 * day))
	default:
		return int64(d / (365 * day))
	}
}

// FormatOptions controls [FormatTimeAgo].
//
// A zero Locale means [LocaleEN] and a zero MinUnit means [UnitMinute].
type FormatOptions struct {
	Locale   Locale
	Relative bool
	MinUnit  TimeUnit
}

// DefaultFormatOptions returns English, calendar-style phrasing with minute
// granularity.
func DefaultFormatOptions() FormatOptions {
	return FormatOptions{
		Locale:   LocaleEN,
		Relative: true,
		MinUnit:  UnitMinute,
	}
}

// FormatTimeAgo renders how long before now ts was, e.g. "3 minutes ago".
//
// The largest unit at or above MinUnit with a non-zero count is used; when
// every count is zero the rendering is in MinUnit. Timestamps in the future
// render as zero elapsed time.
func FormatTimeAgo(ts, now time.Time, opts FormatOptions) string {
	if opts.Locale == "" {
		opts.Locale = LocaleEN
	}
	if opts.MinUnit == 0 {
		opts.MinUnit = UnitMinute
	}

	diff := now.Sub(ts)
	if diff < 0 {
		diff = 0
	}

	unit := opts.MinUnit
	for u := UnitYear; u > opts.MinUnit; u-- {
		if u.count(diff) > 0 {
			unit = u
			break
		}
	}
	n := unit.count(diff)

	if opts.Relative {
		if phrase, ok := relativePhrase(opts.Locale, unit, n); ok {
			return phrase
		}
	}
	return countPhrase(opts.Locale, unit, n)
}

func countPhrase(locale Locale, unit TimeUnit, n int64) string {
	if locale == LocaleZH {
		if unit == UnitSecond && n == 0 {
			return "刚刚"
		}
		return fmt.Sprintf("%d%s前", n, zhUnitNames[unit])
	}
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// relativePhrase returns the calendar-style wording for small counts, if the
// locale has one.
func relativePhrase(locale Locale, unit TimeUnit, n int64) (string, bool) {
	type key struct {
		unit TimeUnit
		n    int64
	}
	var phrases map[key]string
	if locale == LocaleZH {
		phrases = map[key]string{
			{UnitSecond, 0}: "现在",
			{UnitMinute, 0}: "此刻",
			{UnitHour, 0}:   "此时",
			{UnitDay, 0}:    "今天",
			{UnitDay, 1}:    "昨天",
			{UnitDay, 2}:    "前天",
			{UnitWeek, 0}:   "本周",
			{UnitWeek, 1}:   "上周",
			{UnitMonth, 0}:  "本月",
			{UnitMonth, 1}:  "上个月",
			{UnitYear, 0}:   "今年",
			{UnitYear, 1}:   "去年",
		}
	} else {
		phrases = map[key]string{
			{UnitSecond, 0}: "now",
			{UnitMinute, 0}: "this minute",
			{UnitHour, 0}:   "this hour",
			{UnitDay, 0}:    "today",
			{UnitDay, 1}:    "yesterday",
			{UnitWeek, 0}:   "this week",
			{UnitWeek, 1}:   "last week",
			{UnitMonth, 0}:  "this month",
			{UnitMonth, 1}:  "last month",
			{UnitYear, 0}:   "this year",
			{UnitYear, 1}:   "last year",
		}
	}
	phrase, ok := phrases[key{unit, n}]
	return phrase, ok
}

// timeAgoConfig holds mutable state during TimeAgo construction.
type timeAgoConfig struct {
	baseConfig
	format     FormatOptions
	refresh    time.Duration
	autoUpdate bool
}

// TimeAgo keeps a relative rendering of a timestamp current by re-rendering
// it on a repeating timer.
type TimeAgo struct {
	clock  clock.Clock
	logger zerolog.Logger
	format FormatOptions

	mu       sync.Mutex
	ts       time.Time
	text     string
	timer    clock.Timer
	onUpdate func(string)
}

// NewTimeAgo renders ts at once and, unless [WithAutoUpdate] is false,
// re-renders it every refresh period (default 1m).
//
// Options: [WithLocale], [WithRelative], [WithMinUnit], [WithRefresh],
// [WithAutoUpdate], [WithClock], [WithLogger].
func NewTimeAgo(ts time.Time, opts ...TimeAgoOption) (*TimeAgo, error) {
	cfg := &timeAgoConfig{
		baseConfig: defaultBase(),
		format:     DefaultFormatOptions(),
		refresh:    defaultTimeAgoRefresh,
		autoUpdate: true,
	}
	for _, opt := range opts {
		if err := opt.applyTimeAgo(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.autoUpdate && cfg.refresh <= 0 {
		return nil, fmt.Errorf("refresh must be positive, got %s", cfg.refresh)
	}

	t := &TimeAgo{
		clock:  cfg.clock,
		logger: cfg.logger,
		format: cfg.format,
		ts:     ts,
	}
	t.text = FormatTimeAgo(ts, t.clock.Now(), t.format)
	if cfg.autoUpdate {
		t.timer = t.clock.Every(cfg.refresh, t.Refresh)
	}
	return t, nil
}

// String returns the latest rendering.
func (t *TimeAgo) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.text
}

// Timestamp returns the instant being rendered.
func (t *TimeAgo) Timestamp() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ts
}

// Diff returns the time elapsed since the timestamp, measured now.
func (t *TimeAgo) Diff() time.Duration {
	t.mu.Lock()
	ts := t.ts
	t.mu.Unlock()
	return t.clock.Now().Sub(ts)
}

// Refresh re-renders the timestamp against the current time and notifies the
// update callback when the text changed.
func (t *TimeAgo) Refresh() {
	t.mu.Lock()
	text := FormatTimeAgo(t.ts, t.clock.Now(), t.format)
	changed := text != t.text
	t.text = text
	onUpdate := t.onUpdate
	t.mu.Unlock()

	if changed {
		invokeSafe(t.logger, "update", onUpdate, text)
	}
}

// SetTimestamp replaces the instant being rendered and re-renders at once.
func (t *TimeAgo) SetTimestamp(ts time.Time) {
	t.mu.Lock()
	t.ts = ts
	t.mu.Unlock()
	t.Refresh()
}

// SetOnUpdate registers fn to receive every rendering that differs from the
// previous one.
func (t *TimeAgo) SetOnUpdate(fn func(string)) {
	t.mu.Lock()
	t.onUpdate = fn
	t.mu.Unlock()
}

// Close stops the refresh timer. The last rendering stays readable.
func (t *TimeAgo) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
