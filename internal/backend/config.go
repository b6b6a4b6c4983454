package backend

import (
	"fmt"

	"bilancio/internal/config"
	"bilancio/internal/retry"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type: backendType,

		SQLiteDBPath: appConfig.SQLiteDBPath,

		GoogleSpreadsheetID: appConfig.GoogleSpreadsheetID,
		CategoriesSheetName: appConfig.CategoriesSheetName,
		BudgetsSheetName:    appConfig.BudgetsSheetName,

		Retry: retry.Options{
			MaxAttempts: appConfig.RetryMaxAttempts,
			BaseDelay:   appConfig.RetryBaseDelay,
			MaxDelay:    appConfig.RetryMaxDelay,
		},
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}

	case SheetsBackend:
		if c.GoogleSpreadsheetID == "" {
			return fmt.Errorf("Google Spreadsheet ID is required for sheets backend")
		}
		if c.CategoriesSheetName == "" {
			return fmt.Errorf("categories sheet name is required for sheets backend")
		}
		if c.BudgetsSheetName == "" {
			return fmt.Errorf("budgets sheet name is required for sheets backend")
		}

	case MemoryBackend:
		// Memory backend doesn't require additional validation
	}

	return nil
}
