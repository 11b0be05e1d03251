package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"go.uber.org/multierr"
)

type Cleanup func() error

const (
	postgresExpireSeconds = 120
	postgresMaxWait       = time.Minute
)

// TestWithPostgres starts a disposable Postgres container and returns its
// connection URL. The caller must run cleanup when done.
func TestWithPostgres() (_ string, _ Cleanup, err error) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		return "", nil, fmt.Errorf("could not construct pool: %w", err)
	}
	if err = pool.Client.Ping(); err != nil {
		return "", nil, fmt.Errorf("could not connect to Docker: %w", err)
	}
	pool.MaxWait = postgresMaxWait

	resource, err := pool.RunWithOptions(
		&dockertest.RunOptions{
			Repository: "postgres",
			Tag:        "16-alpine",
			Env: []string{
				"POSTGRES_USER=fastzero",
				"POSTGRES_PASSWORD=password",
				"POSTGRES_DB=fastzero_test",
			},
		},
		func(config *docker.HostConfig) {
			config.AutoRemove = true
			config.RestartPolicy = docker.RestartPolicy{Name: "no"}
		},
	)
	if err != nil {
		return "", nil, fmt.Errorf("failed to run postgres container: %w", err)
	}

	cleanup := func() error {
		if purgeErr := pool.Purge(resource); purgeErr != nil {
			return fmt.Errorf("failed to purge postgres container: %w", purgeErr)
		}
		return nil
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, cleanup())
		}
	}()

	if err = resource.Expire(postgresExpireSeconds); err != nil {
		return "", nil, fmt.Errorf("failed to set expire time: %w", err)
	}

	databaseURL := fmt.Sprintf(
		"postgres://fastzero:password@%s/fastzero_test?sslmode=disable",
		resource.GetHostPort("5432/tcp"),
	)

	err = pool.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		p, retryErr := pgxpool.New(ctx, databaseURL)
		if retryErr != nil {
			return retryErr
		}
		defer p.Close()
		return p.Ping(ctx)
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return databaseURL, cleanup, nil
}
