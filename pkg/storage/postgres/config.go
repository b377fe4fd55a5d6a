package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config configures the PostgreSQL execution store. Zero values use the
// defaults noted on each field.
type Config struct {
	// DSN is a libpq connection string or URL.
	DSN string

	MaxConns        int32         // 25
	MinConns        int32         // 2
	MaxConnLifetime time.Duration // 30m
	MaxConnIdleTime time.Duration // 5m

	// MigrateOnStart applies the embedded migrations in New.
	MigrateOnStart bool
}

// applicationName is reported to the server unless the DSN sets one.
const applicationName = "vizlaunch"

// poolConfig parses the DSN and applies the pool settings.
func (c Config) poolConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(c.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	pc.MaxConns = orDefault(c.MaxConns, 25)
	pc.MinConns = orDefault(c.MinConns, 2)
	pc.MaxConnLifetime = orDefault(c.MaxConnLifetime, 30*time.Minute)
	pc.MaxConnIdleTime = orDefault(c.MaxConnIdleTime, 5*time.Minute)
	if pc.MinConns > pc.MaxConns {
		pc.MinConns = pc.MaxConns
	}

	if _, ok := pc.ConnConfig.RuntimeParams["application_name"]; !ok {
		pc.ConnConfig.RuntimeParams["application_name"] = applicationName
	}
	return pc, nil
}

func orDefault[T int32 | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}
