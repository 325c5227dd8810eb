package store

import (
	"fmt"

	"github.com/pbaille/qabot/internal/config"
)

// Open returns the Tables backend selected by cfg
func Open(cfg config.TablesConfig) (Tables, error) {
	switch cfg.Backend {
	case "", "csv":
		return NewCSV(cfg.ManualPath, cfg.FAQPath, cfg.LedgerPath, cfg.Locale), nil
	case "sqlite":
		return NewSQLite(cfg.SQLitePath)
	}
	return nil, fmt.Errorf("%w: unknown tables backend %q", config.ErrConfiguration, cfg.Backend)
}
