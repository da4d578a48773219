package db

import (
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/motorworks/invoicegen/internal/config"
	"github.com/motorworks/invoicegen/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), GormConfig(false))
	require.NoError(t, err)
	return conn
}

func TestMigrateAutoAndSeedIdempotent(t *testing.T) {
	conn := openSQLite(t)
	require.NoError(t, Migrate(conn, "", false, nil))
	require.NoError(t, Migrate(conn, "", false, nil))

	require.NoError(t, Seed(conn, "Motorworks"))
	require.NoError(t, conn.Model(&models.FollowUpSettings{}).Where("id = ?", models.SettingsID).Update("global_interval_days", 90).Error)
	require.NoError(t, Seed(conn, "Other Name"))

	var rows []models.FollowUpSettings
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, 90, rows[0].GlobalIntervalDays)
	assert.Equal(t, "Motorworks", rows[0].BusinessName)
}

func TestEmbeddedMigrationsPaired(t *testing.T) {
	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)
	set := map[string]bool{}
	for _, n := range names {
		set[n] = true
	}
	for _, n := range names {
		if strings.HasSuffix(n, ".up.sql") {
			assert.True(t, set[strings.TrimSuffix(n, ".up.sql")+".down.sql"], n)
		}
	}
	up, err := fs.ReadFile(migrationFiles, "migrations/0001_init.up.sql")
	require.NoError(t, err)
	for _, table := range requiredTables {
		assert.Contains(t, string(up), "CREATE TABLE IF NOT EXISTS "+table+" ")
	}
}

var createTableRE = regexp.MustCompile(`(?s)CREATE TABLE IF NOT EXISTS (\w+) \((.*?)\n\);`)

// sqlColumns reads the column names of every table created by the up migration.
func sqlColumns(t *testing.T) map[string]map[string]bool {
	t.Helper()
	up, err := fs.ReadFile(migrationFiles, "migrations/0001_init.up.sql")
	require.NoError(t, err)
	tables := map[string]map[string]bool{}
	for _, m := range createTableRE.FindAllStringSubmatch(string(up), -1) {
		cols := map[string]bool{}
		for _, line := range strings.Split(m[2], "\n") {
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			cols[strings.Trim(fields[0], `",`)] = true
		}
		tables[m[1]] = cols
	}
	return tables
}

func TestSQLMigrationMatchesModels(t *testing.T) {
	conn := openSQLite(t)
	tables := sqlColumns(t)
	for _, model := range models.All() {
		s, err := schema.Parse(model, &sync.Map{}, conn.NamingStrategy)
		require.NoError(t, err)
		t.Run(s.Table, func(t *testing.T) {
			cols, ok := tables[s.Table]
			require.True(t, ok, "table %s missing from migration", s.Table)
			fieldCols := map[string]bool{}
			for _, f := range s.Fields {
				if f.DBName == "" {
					continue
				}
				fieldCols[f.DBName] = true
				assert.True(t, cols[f.DBName], "column %s.%s missing from migration", s.Table, f.DBName)
			}
			for col := range cols {
				assert.True(t, fieldCols[col], "migration column %s.%s has no model field", s.Table, col)
			}
		})
	}
}

func TestMessageLogProviderColumn(t *testing.T) {
	s, err := schema.Parse(&models.MessageLog{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)
	f := s.LookUpField("ProviderSID")
	require.NotNil(t, f)
	assert.Equal(t, "provider_sid", f.DBName)
}

func TestNormalizeDSN(t *testing.T) {
	cases := map[string]string{
		"":                                 "",
		`"host=db  user=app dbname=inv"`:   "host=db user=app dbname=inv sslmode=disable",
		"host=db user=app sslmode=require": "host=db user=app sslmode=require",
		"postgres://app:pw@db:5432/inv":    "postgres://app:pw@db:5432/inv",
		"not a dsn":                        "not a dsn",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeDSN(in), in)
	}
}

func TestToURLDSN(t *testing.T) {
	got := ToURLDSN("host=db port=5432 user=app password=s3cret dbname=inv sslmode=disable")
	assert.Equal(t, "postgres://app:s3cret@db:5432/inv?sslmode=disable", got)
	assert.Equal(t, "host=db", ToURLDSN("host=db"))
}

func TestDSNPrefersOverride(t *testing.T) {
	cfg := config.DatabaseConfig{Host: "h", Port: 5432, User: "u", Password: "p", DBName: "d", SSLMode: "disable"}
	assert.Equal(t, cfg.DSN(), DSN(cfg))
	cfg.URLOverride = "postgres://x:y@z/w"
	assert.Equal(t, "postgres://x:y@z/w", DSN(cfg))
}

func TestMaskDSN(t *testing.T) {
	assert.Equal(t, "host=db password=*** user=app", maskDSN("host=db password=hunter2 user=app"))
	assert.NotContains(t, maskDSN("postgres://app:hunter2@db/inv"), "hunter2")
}
