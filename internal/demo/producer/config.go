package producer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/salesinsight/salesinsight/internal/storage"
)

type LookupFunc func(string) (string, bool)

type Config struct {
	Output        string
	Format        storage.Format
	Table         string
	StartDate     time.Time
	Days          int
	TicketsPerDay int
	Waiters       int
	Seed          int64
	Upload        bool
}

func DefaultConfig() Config {
	return Config{
		Output:        "data.csv",
		Format:        storage.FormatCSV,
		Table:         "sales",
		StartDate:     time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		Days:          90,
		TicketsPerDay: 120,
		Waiters:       6,
		Seed:          time.Now().UTC().UnixNano(),
		Upload:        false,
	}
}

func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := DefaultConfig()
	if err := applyString(lookup, "SALESINSIGHT_DEMO_OUTPUT", &cfg.Output); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SALESINSIGHT_DEMO_TABLE", &cfg.Table); err != nil {
		return Config{}, err
	}
	if err := applyDate(lookup, "SALESINSIGHT_DEMO_START_DATE", &cfg.StartDate); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SALESINSIGHT_DEMO_DAYS", &cfg.Days); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SALESINSIGHT_DEMO_TICKETS_PER_DAY", &cfg.TicketsPerDay); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "SALESINSIGHT_DEMO_WAITERS", &cfg.Waiters); err != nil {
		return Config{}, err
	}
	if err := applyInt64(lookup, "SALESINSIGHT_DEMO_SEED", &cfg.Seed); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SALESINSIGHT_DEMO_UPLOAD", &cfg.Upload); err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(cfg.Output) == "" {
		return Config{}, fmt.Errorf("SALESINSIGHT_DEMO_OUTPUT is required")
	}
	format, err := storage.DetectFormat(cfg.Output)
	if err != nil {
		return Config{}, fmt.Errorf("invalid SALESINSIGHT_DEMO_OUTPUT: %w", err)
	}
	cfg.Format = format
	if strings.TrimSpace(cfg.Table) == "" {
		return Config{}, fmt.Errorf("SALESINSIGHT_DEMO_TABLE is required")
	}
	if cfg.Days <= 0 {
		return Config{}, fmt.Errorf("SALESINSIGHT_DEMO_DAYS must be > 0")
	}
	if cfg.TicketsPerDay <= 0 {
		return Config{}, fmt.Errorf("SALESINSIGHT_DEMO_TICKETS_PER_DAY must be > 0")
	}
	if cfg.Waiters <= 0 {
		return Config{}, fmt.Errorf("SALESINSIGHT_DEMO_WAITERS must be > 0")
	}
	return cfg, nil
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDate(lookup LookupFunc, key string, dst *time.Time) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}
