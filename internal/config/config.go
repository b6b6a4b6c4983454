package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Local cache database
	SQLiteDBPath string

	// AMQP (optional; events are skipped when URL is empty)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets
	GoogleSpreadsheetID string
	CategoriesSheetName string
	BudgetsSheetName    string

	// Grid
	HorizonMonths int

	// Remote call retries
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration

	// Offline queue
	FlushDebounce time.Duration

	// Connectivity probe
	ProbeURL      string
	ProbeInterval time.Duration

	// Category refresh
	CategoryMaxAge time.Duration

	// Backend selection
	DataBackend string
}

func Load() *Config {
	cfg := &Config{
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/bilancio.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "bilancio"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "budget_saved"),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		CategoriesSheetName: getEnv("GOOGLE_CATEGORIES_SHEET_NAME", "Categories"),
		BudgetsSheetName:    getEnv("GOOGLE_BUDGETS_SHEET_NAME", "Budgets"),

		HorizonMonths: getEnvInt("HORIZON_MONTHS", 12),

		RetryMaxAttempts: getEnvInt("RETRY_MAX_ATTEMPTS", 5),
		RetryBaseDelay:   getEnvDuration("RETRY_BASE_DELAY", 500*time.Millisecond),
		RetryMaxDelay:    getEnvDuration("RETRY_MAX_DELAY", 10*time.Second),

		FlushDebounce: getEnvDuration("FLUSH_DEBOUNCE", 500*time.Millisecond),

		ProbeURL:      getEnv("PROBE_URL", "https://www.google.com/generate_204"),
		ProbeInterval: getEnvDuration("PROBE_INTERVAL", 15*time.Second),

		CategoryMaxAge: getEnvDuration("CATEGORY_MAX_AGE", 7*24*time.Hour),

		DataBackend: getEnv("DATA_BACKEND", "memory"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate data backend
	validBackends := []string{"memory", "sheets", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	// The SQLite cache is always on; the path must be usable
	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}

		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Validate Google Sheets configuration if backend is sheets
	if c.DataBackend == "sheets" {
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
		if c.CategoriesSheetName == "" {
			errors = append(errors, "categories sheet name is required when using sheets backend")
		}
		if c.BudgetsSheetName == "" {
			errors = append(errors, "budgets sheet name is required when using sheets backend")
		}
	}

	if c.HorizonMonths < 1 {
		errors = append(errors, fmt.Sprintf("invalid horizon %d: must be at least 1 month", c.HorizonMonths))
	} else if c.HorizonMonths > 120 {
		errors = append(errors, fmt.Sprintf("invalid horizon %d: must be at most 120 months", c.HorizonMonths))
	}

	if c.RetryMaxAttempts < 1 {
		errors = append(errors, fmt.Sprintf("invalid retry max attempts %d: must be at least 1", c.RetryMaxAttempts))
	}
	if c.RetryBaseDelay <= 0 {
		errors = append(errors, fmt.Sprintf("invalid retry base delay %v: must be positive", c.RetryBaseDelay))
	}
	if c.RetryMaxDelay < c.RetryBaseDelay {
		errors = append(errors, fmt.Sprintf("invalid retry max delay %v: must be at least the base delay %v", c.RetryMaxDelay, c.RetryBaseDelay))
	}

	if c.FlushDebounce < 0 {
		errors = append(errors, fmt.Sprintf("invalid flush debounce %v: must not be negative", c.FlushDebounce))
	}

	if c.ProbeInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid probe interval %v: must be at least 1 second", c.ProbeInterval))
	} else if c.ProbeInterval > time.Hour {
		errors = append(errors, fmt.Sprintf("invalid probe interval %v: must be at most 1 hour", c.ProbeInterval))
	}

	if c.CategoryMaxAge < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid category max age %v: must be at least 1 minute", c.CategoryMaxAge))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
