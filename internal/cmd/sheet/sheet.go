// Package sheet parses sheet command flags and launches the sheet server.
package sheet

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/louisbranch/charsheet/internal/platform/cmd"
	sheetserver "github.com/louisbranch/charsheet/internal/services/sheet/app"
)

// Config holds sheet command configuration.
type Config struct {
	HTTPAddr       string        `env:"SHEET_HTTP_ADDR" envDefault:":8092"`
	HealthAddr     string        `env:"SHEET_HEALTH_ADDR" envDefault:":8093"`
	DBPath         string        `env:"SHEET_DB_PATH" envDefault:"data/sheet.db"`
	CostTablePath  string        `env:"SHEET_COST_TABLE"`
	LayoutPath     string        `env:"SHEET_LAYOUT"`
	JournalDir     string        `env:"SHEET_JOURNAL_DIR" envDefault:"data/journal"`
	Debounce       time.Duration `env:"SHEET_DEBOUNCE" envDefault:"300ms"`
	Locale         string        `env:"SHEET_LOCALE" envDefault:"en-US"`
	MaxConnections int           `env:"SHEET_MAX_CONNECTIONS" envDefault:"256"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The websocket HTTP listen address")
	fs.StringVar(&cfg.HealthAddr, "health-addr", cfg.HealthAddr, "The gRPC health listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The sheet SQLite database path")
	fs.StringVar(&cfg.CostTablePath, "cost-table", cfg.CostTablePath, "Advancement cost table JSON path (built-in table when empty)")
	fs.StringVar(&cfg.LayoutPath, "layout", cfg.LayoutPath, "Sheet layout YAML path (built-in layout when empty)")
	fs.StringVar(&cfg.JournalDir, "journal-dir", cfg.JournalDir, "Commit journal directory (disabled when empty)")
	fs.DurationVar(&cfg.Debounce, "debounce", cfg.Debounce, "Delay before a typed edit is priced")
	fs.StringVar(&cfg.Locale, "locale", cfg.Locale, "Default message locale")
	fs.IntVar(&cfg.MaxConnections, "max-connections", cfg.MaxConnections, "Maximum concurrent HTTP connections (0 for unlimited)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the sheet server.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSheet, func(ctx context.Context) error {
		return sheetserver.Run(ctx, sheetserver.Config{
			HTTPAddr:       cfg.HTTPAddr,
			HealthAddr:     cfg.HealthAddr,
			DBPath:         cfg.DBPath,
			CostTablePath:  cfg.CostTablePath,
			LayoutPath:     cfg.LayoutPath,
			JournalDir:     cfg.JournalDir,
			Debounce:       cfg.Debounce,
			DefaultLocale:  cfg.Locale,
			MaxConnections: cfg.MaxConnections,
		})
	})
}
