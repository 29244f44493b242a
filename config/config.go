/*
Package config loads and validates the static configuration of the
reservation engine.

SOURCES (later wins):
  1. Built-in defaults
  2. YAML file (path from -config flag or CONFIG_PATH)
  3. Environment variables (a .env file is honored via godotenv)

RECOGNIZED ENVIRONMENT:
  PORT                 HTTP port
  DATABASE_PATH        SQLite path (":memory:" supported)
  TELEGRAM_BOT_TOKEN   Enables the Telegram notifier
  AMQP_URL             Enables the AMQP event publisher

VALIDATION:
  The reminder poll interval must be at most a third of the tightest gap
  between any two configured thresholds, otherwise a threshold window could
  be skipped between ticks. Load fails loudly on a config that breaks this.
*/
package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/ikigai/booking-engine/booking"
)

// Duration is a yaml-friendly time.Duration ("90m", "24h").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Timezone string         `yaml:"timezone"`

	Schedule  ScheduleConfig                `yaml:"schedule"`
	Prices    map[string]map[string]float64 `yaml:"prices"`
	Reminders ReminderConfig                `yaml:"reminders"`
	Notify    NotifyConfig                  `yaml:"notify"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type ScheduleConfig struct {
	WorkdayStart  string           `yaml:"workday_start"`
	WorkdayEnd    string           `yaml:"workday_end"`
	StrideMinutes int              `yaml:"stride_minutes"`
	BufferMinutes int              `yaml:"buffer_minutes"`
	LookaheadDays int              `yaml:"lookahead_days"`
	Places        map[string][]int `yaml:"places"`
}

type ReminderConfig struct {
	// FromCreation counts up from CreatedAt, ascending; the LAST entry is
	// the expiry cutoff, earlier ones are warnings.
	FromCreation []Duration `yaml:"from_creation"`

	// BeforeStart are warning offsets counted down to TimeFrom, ascending;
	// the first entry is the most urgent.
	BeforeStart []Duration `yaml:"before_start"`

	// DeleteBeforeStart expires a still-unpaid reservation once its start
	// is closer than this.
	DeleteBeforeStart Duration `yaml:"delete_before_start"`

	// AdminCooldown is the minimum interval between repeated admin pings
	// about the same unconfirmed-payment backlog.
	AdminCooldown Duration `yaml:"admin_cooldown"`

	// PollInterval overrides the derived tick rate when set.
	PollInterval Duration `yaml:"poll_interval"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	AMQP     AMQPConfig     `yaml:"amqp"`
}

type TelegramConfig struct {
	Token       string `yaml:"token"`
	AdminChatID int64  `yaml:"admin_chat_id"`
	ClientChat  bool   `yaml:"notify_clients"`
}

type AMQPConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

// Default returns the built-in configuration: the two-type salon layout the
// system ships with.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8080},
		Database: DatabaseConfig{Path: "booking.db"},
		Timezone: "Europe/Prague",
		Schedule: ScheduleConfig{
			WorkdayStart:  "09:00",
			WorkdayEnd:    "21:00",
			StrideMinutes: 30,
			BufferMinutes: 25,
			LookaheadDays: 180,
			Places: map[string][]int{
				"hairstyle": {1, 2},
				"brows":     {3, 4, 5, 6},
			},
		},
		Prices: map[string]map[string]float64{
			"hairstyle": {"1": 300},
			"brows":     {"1": 250},
		},
		Reminders: ReminderConfig{
			FromCreation:      []Duration{Duration(6 * time.Hour), Duration(12 * time.Hour), Duration(24 * time.Hour)},
			BeforeStart:       []Duration{Duration(2 * time.Hour), Duration(6 * time.Hour)},
			DeleteBeforeStart: Duration(time.Hour),
			AdminCooldown:     Duration(30 * time.Minute),
		},
		Notify: NotifyConfig{
			AMQP: AMQPConfig{Exchange: "booking.events"},
		},
	}
}

// Load builds the effective configuration. An empty path skips the YAML
// layer; missing .env is fine.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Server.Port)
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Notify.Telegram.Token = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.Notify.AMQP.URL = v
	}
}

// Validate checks the invariants the engine relies on.
func (c *Config) Validate() error {
	if _, err := booking.ParseTimeOfDay(c.Schedule.WorkdayStart); err != nil {
		return fmt.Errorf("schedule.workday_start: %w", err)
	}
	if _, err := booking.ParseTimeOfDay(c.Schedule.WorkdayEnd); err != nil {
		return fmt.Errorf("schedule.workday_end: %w", err)
	}
	start, _ := booking.ParseTimeOfDay(c.Schedule.WorkdayStart)
	end, _ := booking.ParseTimeOfDay(c.Schedule.WorkdayEnd)
	if end <= start {
		return fmt.Errorf("schedule: workday_end %s must be after workday_start %s", c.Schedule.WorkdayEnd, c.Schedule.WorkdayStart)
	}
	if c.Schedule.StrideMinutes <= 0 {
		return fmt.Errorf("schedule.stride_minutes must be positive")
	}
	if c.Schedule.BufferMinutes < 0 {
		return fmt.Errorf("schedule.buffer_minutes must not be negative")
	}
	if c.Schedule.LookaheadDays <= 0 {
		return fmt.Errorf("schedule.lookahead_days must be positive")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	if len(c.Reminders.FromCreation) == 0 {
		return fmt.Errorf("reminders.from_creation must configure at least the expiry cutoff")
	}
	for i := 1; i < len(c.Reminders.FromCreation); i++ {
		if c.Reminders.FromCreation[i] <= c.Reminders.FromCreation[i-1] {
			return fmt.Errorf("reminders.from_creation must be strictly ascending")
		}
	}
	if c.Reminders.DeleteBeforeStart <= 0 {
		return fmt.Errorf("reminders.delete_before_start must be positive")
	}

	poll := c.PollInterval()
	if max := c.maxPollInterval(); poll > max {
		return fmt.Errorf("reminders.poll_interval %s exceeds a third of the tightest threshold gap (%s)", poll, max)
	}
	return nil
}

// BookingSchedule converts to the engine's Schedule value.
func (c *Config) BookingSchedule() booking.Schedule {
	start, _ := booking.ParseTimeOfDay(c.Schedule.WorkdayStart)
	end, _ := booking.ParseTimeOfDay(c.Schedule.WorkdayEnd)
	loc, _ := time.LoadLocation(c.Timezone)

	places := make(map[booking.PlaceType][]int, len(c.Schedule.Places))
	for t, ids := range c.Schedule.Places {
		places[booking.PlaceType(t)] = ids
	}

	return booking.Schedule{
		Places:        places,
		WorkdayStart:  start,
		WorkdayEnd:    end,
		StrideMinutes: c.Schedule.StrideMinutes,
		BufferMinutes: c.Schedule.BufferMinutes,
		LookaheadDays: c.Schedule.LookaheadDays,
		Location:      loc,
	}
}

// PriceFor resolves the price of a type+duration: exact duration entry
// first, hourly rate (key "1") times duration as the fallback.
func (c *Config) PriceFor(t booking.PlaceType, hours decimal.Decimal) (decimal.Decimal, error) {
	table, ok := c.Prices[string(t)]
	if !ok {
		return decimal.Zero, fmt.Errorf("no prices configured for type %q: %w", t, booking.ErrValidation)
	}
	if exact, ok := table[booking.FormatHours(hours)]; ok {
		return decimal.NewFromFloat(exact), nil
	}
	if hourly, ok := table["1"]; ok {
		return decimal.NewFromFloat(hourly).Mul(hours), nil
	}
	return decimal.Zero, fmt.Errorf("no price for type %q duration %sh: %w", t, booking.FormatHours(hours), booking.ErrValidation)
}

// PollInterval returns the scheduler tick rate: the configured override, or
// a third of the tightest gap between any two thresholds.
func (c *Config) PollInterval() time.Duration {
	if c.Reminders.PollInterval > 0 {
		return c.Reminders.PollInterval.Std()
	}
	return c.maxPollInterval()
}

// maxPollInterval is the largest tick rate that cannot skip a threshold
// window: tightest threshold gap / 3.
func (c *Config) maxPollInterval() time.Duration {
	gap := c.tightestGap()
	if gap <= 0 {
		return time.Minute
	}
	return gap / 3
}

func (c *Config) tightestGap() time.Duration {
	axes := [][]Duration{c.Reminders.FromCreation, c.appendDelete(c.Reminders.BeforeStart)}

	tightest := time.Duration(0)
	for _, axis := range axes {
		ds := make([]time.Duration, 0, len(axis))
		for _, d := range axis {
			ds = append(ds, d.Std())
		}
		sort.Slice(ds, func(i, j int) bool { return ds[i] < ds[j] })
		for i := 1; i < len(ds); i++ {
			gap := ds[i] - ds[i-1]
			if gap > 0 && (tightest == 0 || gap < tightest) {
				tightest = gap
			}
		}
	}
	return tightest
}

func (c *Config) appendDelete(warnings []Duration) []Duration {
	out := make([]Duration, 0, len(warnings)+1)
	out = append(out, warnings...)
	out = append(out, c.Reminders.DeleteBeforeStart)
	return out
}

// Window is the ± tolerance around a threshold within which a tick counts
// as "on time": half the poll interval.
func (c *Config) Window() time.Duration {
	return c.PollInterval() / 2
}
