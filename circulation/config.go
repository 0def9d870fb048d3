package circulation

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config carries the circulation tunables. Zero values are not usable;
// start from DefaultConfig or ConfigFromEnv.
type Config struct {
	// DBPath is where the SQLite catalog/membership store lives.
	DBPath string `env:"LIBRARY_DB_PATH" envDefault:"library.db"`

	// LoanPeriodDays is added to the borrow date to produce the due date.
	LoanPeriodDays int `env:"LIBRARY_LOAN_PERIOD_DAYS" envDefault:"14"`

	// HoldPeriodDays is how long a reservation stays active before the
	// expiry sweep retires it.
	HoldPeriodDays int `env:"LIBRARY_HOLD_PERIOD_DAYS" envDefault:"7"`

	// DailyFineRate is charged per whole overdue day at return time.
	DailyFineRate float64 `env:"LIBRARY_DAILY_FINE_RATE" envDefault:"1"`
}

// DefaultConfig returns the standard circulation policy: 14-day loans,
// 7-day holds, 1.0 per overdue day.
func DefaultConfig() Config {
	return Config{
		DBPath:         "library.db",
		LoanPeriodDays: 14,
		HoldPeriodDays: 7,
		DailyFineRate:  1,
	}
}

// ConfigFromEnv loads configuration from environment variables, falling
// back to the defaults above.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
