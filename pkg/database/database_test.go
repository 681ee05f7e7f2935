package database

import (
	"errors"
	"fmt"
	"testing"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestMySQLDSN(t *testing.T) {
	cfg := Config{Driver: DriverMySQL, Host: "db", User: "ledger", Password: "secret", DBName: "ledger"}
	dsn := cfg.DSN()

	parsed, err := mysqldriver.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "db:3306", parsed.Addr)
	assert.Equal(t, "ledger", parsed.User)
	assert.Equal(t, "secret", parsed.Passwd)
	assert.Equal(t, "ledger", parsed.DBName)
	assert.True(t, parsed.ClientFoundRows)
	assert.True(t, parsed.ParseTime)
	assert.Equal(t, MySQLCollation, parsed.Collation)
}

func TestPostgresDSN(t *testing.T) {
	cfg := Config{Driver: DriverPostgres, Host: "pg", User: "u", Password: "p", DBName: "ledger"}
	assert.Equal(t, "host=pg port=5432 user=u password=p dbname=ledger sslmode=disable TimeZone=UTC", cfg.DSN())

	cfg.Port = 6543
	assert.Contains(t, cfg.DSN(), "port=6543")
}

func TestDialector(t *testing.T) {
	for _, driver := range []string{"", DriverMySQL, DriverPostgres} {
		cfg := Config{Driver: driver, Host: "h"}
		d, err := cfg.Dialector()
		require.NoError(t, err)
		assert.NotNil(t, d)
	}

	_, err := (&Config{Driver: "sqlite"}).Dialector()
	assert.Error(t, err)
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		duplicate  bool
		conflict   bool
		outOfRange bool
	}{
		{"gorm duplicated", fmt.Errorf("create: %w", gorm.ErrDuplicatedKey), true, false, false},
		{"mysql duplicate", &mysqldriver.MySQLError{Number: 1062}, true, false, false},
		{"mysql deadlock", &mysqldriver.MySQLError{Number: 1213}, false, true, false},
		{"mysql lock wait", &mysqldriver.MySQLError{Number: 1205}, false, true, false},
		{"mysql bigint overflow", &mysqldriver.MySQLError{Number: 1690}, false, false, true},
		{"mysql out of range", &mysqldriver.MySQLError{Number: 1264}, false, false, true},
		{"pg unique", &pgconn.PgError{Code: "23505"}, true, false, false},
		{"pg serialization", &pgconn.PgError{Code: "40001"}, false, true, false},
		{"pg deadlock", &pgconn.PgError{Code: "40P01"}, false, true, false},
		{"pg numeric out of range", &pgconn.PgError{Code: "22003"}, false, false, true},
		{"other", errors.New("boom"), false, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.duplicate, IsDuplicateKey(tc.err))
			assert.Equal(t, tc.conflict, IsConflict(tc.err))
			assert.Equal(t, tc.outOfRange, IsOutOfRange(tc.err))
		})
	}
}
