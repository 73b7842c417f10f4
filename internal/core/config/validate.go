package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hay-kot/criterio"

	"github.com/colonyops/triage/internal/core/queue"
)

// Validate performs structural validation of the configuration.
func (c *Config) Validate() error {
	return criterio.ValidateStruct(
		criterio.Run("server.url", c.Server.URL, validServerURL),
		criterio.Run("actor", c.Actor, notEmpty),
		c.validateCategories(),
		c.validateHelper(),
		c.validateSync(),
		c.validateAlerts(),
	)
}

// ValidateDeep runs Validate plus I/O checks against the config file and
// data directory. Used by triage config validate.
func (c *Config) ValidateDeep(configPath string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	return criterio.ValidateStruct(
		validateConfigFile(configPath),
		criterio.Run("data_dir", c.DataDir, isDirectoryOrNotExist),
	)
}

func notEmpty(s string) error {
	if s == "" {
		return fmt.Errorf("must not be empty")
	}
	return nil
}

func validServerURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	return nil
}

func (c *Config) validateCategories() error {
	var errs criterio.FieldErrorsBuilder
	if len(c.Categories) == 0 {
		errs = errs.Append("categories", fmt.Errorf("must list at least one category"))
	}
	known := queue.Categories()
	for i, cat := range c.Categories {
		if !slices.Contains(known, cat) {
			errs = errs.Append(fmt.Sprintf("categories[%d]", i), fmt.Errorf("unknown category %q", cat))
		}
	}
	return errs.ToError()
}

func (c *Config) validateHelper() error {
	var errs criterio.FieldErrorsBuilder
	for i, cat := range c.Helper.Categories {
		if !slices.Contains(c.Categories, cat) {
			errs = errs.Append(fmt.Sprintf("helper.categories[%d]", i),
				fmt.Errorf("category %q is not in the entitled set", cat))
		}
	}
	if len(c.Helper.Categories) > 0 {
		if c.Helper.Interval <= 0 {
			errs = errs.Append("helper.interval", fmt.Errorf("must be positive"))
		}
		if c.Helper.HeartbeatWindow <= 0 {
			errs = errs.Append("helper.heartbeat_window", fmt.Errorf("must be positive"))
		}
	}
	return errs.ToError()
}

func (c *Config) validateSync() error {
	var errs criterio.FieldErrorsBuilder
	periods := []struct {
		field string
		value time.Duration
	}{
		{"sync.active_period", c.Sync.ActivePeriod},
		{"sync.background_period", c.Sync.BackgroundPeriod},
		{"sync.dormant_period", c.Sync.DormantPeriod},
		{"sync.staleness", c.Sync.Staleness},
		{"sync.action_timeout", c.Sync.ActionTimeout},
	}
	for _, p := range periods {
		if p.value <= 0 {
			errs = errs.Append(p.field, fmt.Errorf("must be positive"))
		}
	}
	if c.Sync.ActivePeriod > c.Sync.BackgroundPeriod {
		errs = errs.Append("sync.active_period", fmt.Errorf("must not exceed background_period"))
	}
	if c.Sync.BackgroundPeriod > c.Sync.DormantPeriod {
		errs = errs.Append("sync.background_period", fmt.Errorf("must not exceed dormant_period"))
	}
	return errs.ToError()
}

func (c *Config) validateAlerts() error {
	var errs criterio.FieldErrorsBuilder
	if c.Alerts.MarkerTTL <= 0 {
		errs = errs.Append("alerts.marker_ttl", fmt.Errorf("must be positive"))
	}
	for i, pattern := range c.Alerts.Suppress {
		if !doublestar.ValidatePattern(pattern) {
			errs = errs.Append(fmt.Sprintf("alerts.suppress[%d]", i), fmt.Errorf("invalid glob %q", pattern))
		}
	}
	return errs.ToError()
}

func validateConfigFile(configPath string) error {
	if configPath == "" {
		return nil
	}

	info, err := os.Stat(configPath)
	if os.IsNotExist(err) {
		return nil // not found is fine, using defaults
	}
	if err != nil {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("cannot access: %w", err))
	}
	if info.IsDir() {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("%s is a directory, not a file", configPath))
	}
	return nil
}

// isDirectoryOrNotExist validates that a path is a directory or doesn't exist.
func isDirectoryOrNotExist(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil // will be created
	}
	if err != nil {
		return fmt.Errorf("cannot access: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("exists but is not a directory")
	}
	return nil
}
