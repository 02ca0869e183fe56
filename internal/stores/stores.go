// Package stores opens the persistence backends selected by configuration
package stores

import (
	"context"
	"errors"
	"fmt"
	"log"

	credential_store "github.com/ethanbaker/agentlink/internal/stores/credential"
	flow_store "github.com/ethanbaker/agentlink/internal/stores/flow"
	ledger_store "github.com/ethanbaker/agentlink/internal/stores/ledger"
	"github.com/ethanbaker/agentlink/pkg/credential"
	"github.com/ethanbaker/agentlink/pkg/flow"
	"github.com/ethanbaker/agentlink/pkg/ledger"
	"github.com/ethanbaker/agentlink/pkg/utils"
	"github.com/go-sql-driver/mysql"
	gorm_mysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// Stores bundles every store the service needs
type Stores struct {
	Ledger      ledger.Store
	Credentials credential.Store
	Flows       flow.Store

	closers []func() error
}

// MySQLDSN builds the connection string from the MYSQL_* keys
func MySQLDSN(cfg *utils.Config) string {
	dbConfig := mysql.Config{
		User:                 cfg.Get("MYSQL_USER"),
		Passwd:               cfg.Get("MYSQL_ROOT_PASSWORD"),
		Net:                  "tcp",
		Addr:                 fmt.Sprintf("%s:%s", cfg.GetWithDefault("MYSQL_HOST", "localhost"), cfg.GetWithDefault("MYSQL_PORT", "3306")),
		DBName:               cfg.Get("MYSQL_DATABASE"),
		ParseTime:            true,
		AllowNativePasswords: true,
	}
	return dbConfig.FormatDSN()
}

// Open connects to MySQL when MYSQL_DATABASE is set and to Redis when
// REDIS_URL is set. Missing backends fall back to in-memory stores
func Open(ctx context.Context, cfg *utils.Config) (*Stores, error) {
	var s *Stores

	if cfg.Get("MYSQL_DATABASE") != "" {
		db, err := gorm.Open(gorm_mysql.Open(MySQLDSN(cfg)), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if s, err = OpenWithDB(db); err != nil {
			return nil, err
		}
	} else {
		log.Println("[STORES]: Warning, MYSQL_DATABASE not set, using in-memory stores (data will not persist across restarts)")
		s = &Stores{
			Ledger:      ledger_store.NewInMemoryStore(),
			Credentials: credential_store.NewInMemoryStore(),
		}
	}

	if url := cfg.Get("REDIS_URL"); url != "" {
		flows, err := flow_store.NewRedisStore(ctx, url)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Flows = flows
		s.closers = append(s.closers, flows.Close)
	} else {
		log.Println("[STORES]: Warning, REDIS_URL not set, keeping pending flows in memory")
		s.Flows = flow_store.NewInMemoryStore()
	}

	return s, nil
}

// OpenWithDB builds the SQL stores on an already open database and keeps
// pending flows in memory. The database is closed when migration fails
func OpenWithDB(db *gorm.DB) (*Stores, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}

	ledgerStore, err := ledger_store.NewStore(db)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	credentialStore, err := credential_store.NewStore(db)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	return &Stores{
		Ledger:      ledgerStore,
		Credentials: credentialStore,
		Flows:       flow_store.NewInMemoryStore(),
		closers:     []func() error{sqlDB.Close},
	}, nil
}

// Ping checks the credential store's connection
func (s *Stores) Ping(ctx context.Context) error {
	if pinger, ok := s.Credentials.(interface{ Ping(context.Context) error }); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

// Close releases every open connection
func (s *Stores) Close() error {
	var errs []error
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
