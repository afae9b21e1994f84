package docstore

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Driver            string
	Path              string
	PostgresDSN       string
	MongoURI          string
	MongoDatabase     string
	MongoTransactions bool
}

// Open connects the backend named by opts.Driver. An empty driver means sqlite.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverSQLite:
		if strings.TrimSpace(opts.Path) == "" {
			return nil, fmt.Errorf("%w: sqlite path is required", ErrInvalidInput)
		}
		return OpenSQLite(opts.Path)
	case DriverPostgres:
		return OpenPostgres(ctx, PostgresConfig{
			DSN:          opts.PostgresDSN,
			MaxOpenConns: 10,
			MaxIdleConns: 5,
			ConnMaxLife:  30 * time.Minute,
		})
	case DriverMongo:
		return OpenMongo(ctx, MongoConfig{
			URI:          opts.MongoURI,
			Database:     opts.MongoDatabase,
			Transactions: opts.MongoTransactions,
		})
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", ErrInvalidInput, opts.Driver)
	}
}
