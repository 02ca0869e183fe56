package stores

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	credential_store "github.com/ethanbaker/agentlink/internal/stores/credential"
	flow_store "github.com/ethanbaker/agentlink/internal/stores/flow"
	ledger_store "github.com/ethanbaker/agentlink/internal/stores/ledger"
	"github.com/ethanbaker/agentlink/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestMySQLDSN(t *testing.T) {
	dsn := MySQLDSN(utils.NewConfig(map[string]string{
		"MYSQL_USER":          "root",
		"MYSQL_ROOT_PASSWORD": "secret",
		"MYSQL_HOST":          "db",
		"MYSQL_PORT":          "3307",
		"MYSQL_DATABASE":      "agentlink",
	}))

	assert.Contains(t, dsn, "root:secret@tcp(db:3307)/agentlink")
	assert.Contains(t, dsn, "parseTime=true")

	dsn = MySQLDSN(utils.NewConfig(map[string]string{"MYSQL_DATABASE": "agentlink"}))
	assert.Contains(t, dsn, "tcp(localhost:3306)/agentlink")
}

func TestOpenInMemory(t *testing.T) {
	s, err := Open(context.Background(), utils.NewConfig(nil))
	require.NoError(t, err)
	defer s.Close()

	assert.IsType(t, &ledger_store.InMemoryStore{}, s.Ledger)
	assert.IsType(t, &credential_store.InMemoryStore{}, s.Credentials)
	assert.IsType(t, &flow_store.InMemoryStore{}, s.Flows)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestOpenRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := Open(context.Background(), utils.NewConfig(map[string]string{
		"REDIS_URL": "redis://" + mr.Addr() + "/0",
	}))
	require.NoError(t, err)

	assert.IsType(t, &flow_store.RedisStore{}, s.Flows)
	assert.NoError(t, s.Close())

	_, err = Open(context.Background(), utils.NewConfig(map[string]string{"REDIS_URL": "ftp://localhost"}))
	assert.Error(t, err)
}

func TestOpenWithDB(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "stores.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	s, err := OpenWithDB(db)
	require.NoError(t, err)

	assert.IsType(t, &ledger_store.Store{}, s.Ledger)
	assert.IsType(t, &credential_store.Store{}, s.Credentials)
	assert.NoError(t, s.Ping(context.Background()))

	require.NoError(t, s.Close())
	assert.Error(t, s.Ping(context.Background()))
}

func TestOpenWithDBClosesOnMigrationFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readonly.db")

	seed, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, seed.Exec("CREATE TABLE seed (id INTEGER)").Error)
	seedDB, err := seed.DB()
	require.NoError(t, err)
	require.NoError(t, seedDB.Close())

	db, err := gorm.Open(sqlite.Open("file:"+path+"?mode=ro"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)

	_, err = OpenWithDB(db)
	require.Error(t, err)
	assert.Error(t, sqlDB.PingContext(context.Background()), "connection is released")
}
