package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newTestPool creates a migrated test database with CI/local environment
// detection. In CI (when CI_DATABASE_URL is set): connects to an external
// PostgreSQL service container. In local dev: spins up a testcontainer.
func newTestPool(t *testing.T) *pgxpool.Pool {
	ctx := context.Background()

	connStr := os.Getenv("CI_DATABASE_URL")

	if connStr == "" {
		t.Log("Using testcontainers for PostgreSQL")
		pgContainer, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		require.NoError(t, err)

		t.Cleanup(func() {
			if err := testcontainers.TerminateContainer(pgContainer); err != nil {
				t.Logf("failed to terminate container: %v", err)
			}
		})

		connStr, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	} else {
		t.Log("Using external PostgreSQL from CI_DATABASE_URL")
	}

	require.NoError(t, RunMigrations(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

func TestClientMigrationsAndHealth(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool := newTestPool(t)
	ctx := context.Background()

	// Both tables exist after migration
	var count int
	err := pool.QueryRow(ctx,
		`SELECT count(*) FROM information_schema.tables
		 WHERE table_name IN ('stories', 'scenes')`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Re-running migrations is a no-op
	connStr := pool.Config().ConnString()
	require.NoError(t, RunMigrations(ctx, connStr))

	health, err := Health(ctx, pool)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.GreaterOrEqual(t, health.ResponseTime, int64(0))
	assert.Greater(t, health.MaxConns, int32(0))
}

func TestSceneUniqueConstraint(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool := newTestPool(t)
	ctx := context.Background()

	_, err := pool.Exec(ctx,
		`INSERT INTO stories (story_id, prompt) VALUES ('s1', 'a fox and a lantern')`)
	require.NoError(t, err)

	_, err = pool.Exec(ctx,
		`INSERT INTO scenes (scene_id, story_id, sequence, text) VALUES ('sc1', 's1', 0, 'once')`)
	require.NoError(t, err)

	_, err = pool.Exec(ctx,
		`INSERT INTO scenes (scene_id, story_id, sequence, text) VALUES ('sc2', 's1', 0, 'twice')`)
	require.Error(t, err, "duplicate (story_id, sequence) must violate the unique constraint")
}

func TestLoadConfigFromEnv(t *testing.T) {
	envKeys := []string{
		"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE",
		"DB_MAX_CONNS", "DB_MIN_CONNS",
	}

	// getEnvOrDefault treats empty values as unset, so blanking suffices.
	clear := func(t *testing.T) {
		for _, key := range envKeys {
			t.Setenv(key, "")
		}
	}

	t.Run("defaults", func(t *testing.T) {
		clear(t)
		cfg, err := LoadConfigFromEnv()
		require.NoError(t, err)
		assert.Equal(t, "localhost", cfg.Host)
		assert.Equal(t, 5432, cfg.Port)
		assert.Equal(t, "storyloom", cfg.User)
		assert.Equal(t, "storyloom", cfg.Database)
		assert.Equal(t, "disable", cfg.SSLMode)
		assert.Equal(t, 10, cfg.MaxConns)
		assert.Equal(t, 2, cfg.MinConns)
	})

	t.Run("custom values", func(t *testing.T) {
		clear(t)
		t.Setenv("DB_HOST", "db.example.com")
		t.Setenv("DB_PORT", "5433")
		t.Setenv("DB_USER", "admin")
		t.Setenv("DB_PASSWORD", "secret")
		t.Setenv("DB_NAME", "production")
		t.Setenv("DB_SSLMODE", "require")
		t.Setenv("DB_MAX_CONNS", "50")

		cfg, err := LoadConfigFromEnv()
		require.NoError(t, err)
		assert.Equal(t, "db.example.com", cfg.Host)
		assert.Equal(t, 5433, cfg.Port)
		assert.Equal(t, "admin", cfg.User)
		assert.Equal(t, "secret", cfg.Password)
		assert.Equal(t, "production", cfg.Database)
		assert.Equal(t, "require", cfg.SSLMode)
		assert.Equal(t, 50, cfg.MaxConns)
	})

	t.Run("invalid port", func(t *testing.T) {
		clear(t)
		t.Setenv("DB_PORT", "invalid")

		_, err := LoadConfigFromEnv()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid DB_PORT")
	})
}

func TestConfigDSN(t *testing.T) {
	cfg := Config{
		Host:     "localhost",
		Port:     5432,
		User:     "storyloom",
		Password: "pw",
		Database: "storyloom",
		SSLMode:  "disable",
	}
	dsn := cfg.DSN()
	assert.Contains(t, dsn, "host=localhost")
	assert.Contains(t, dsn, "port=5432")
	assert.Contains(t, dsn, "dbname=storyloom")
	assert.Contains(t, dsn, "sslmode=disable")
}
