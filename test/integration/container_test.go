//go:build integration

package integration

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/docbook/docbook/internal/platform/db"
)

const defaultPostgresImage = "postgres:16-alpine"

// postgresContainer is a throwaway database for the suite. Docker picks the
// host port; DOCBOOK_TEST_PG_IMAGE overrides the image.
type postgresContainer struct {
	id  string
	url string
}

func startPostgres(ctx context.Context) (*postgresContainer, error) {
	image := os.Getenv("DOCBOOK_TEST_PG_IMAGE")
	if image == "" {
		image = defaultPostgresImage
	}

	id, err := docker(ctx, "run", "-d", "--rm",
		"-p", "127.0.0.1::5432",
		"-e", "POSTGRES_USER=docbook",
		"-e", "POSTGRES_PASSWORD=docbook",
		"-e", "POSTGRES_DB=docbook_test",
		"--label", "docbook.integration=true",
		image,
	)
	if err != nil {
		return nil, err
	}
	pc := &postgresContainer{id: id}

	hostPort, err := docker(ctx, "port", id, "5432/tcp")
	if err != nil {
		pc.Stop()
		return nil, err
	}
	// "docker port" may print one mapping per address family.
	hostPort, _, _ = strings.Cut(hostPort, "\n")
	if _, _, err := net.SplitHostPort(hostPort); err != nil {
		pc.Stop()
		return nil, fmt.Errorf("unexpected port mapping %q: %w", hostPort, err)
	}
	pc.url = "postgres://docbook:docbook@" + hostPort + "/docbook_test?sslmode=disable"

	if err := pc.waitReady(ctx, 30*time.Second); err != nil {
		pc.Stop()
		return nil, err
	}
	return pc, nil
}

// waitReady retries until the pool constructor's ping succeeds.
func (pc *postgresContainer) waitReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()
	for {
		attemptCtx, stop := context.WithTimeout(ctx, 2*time.Second)
		pool, err := db.NewPool(attemptCtx, db.PoolConfig{URL: pc.url, MaxConns: 1})
		stop()
		if err == nil {
			pool.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres in %s not ready after %v: %w", pc.id[:12], timeout, errors.Join(ctx.Err(), err))
		case <-tick.C:
		}
	}
}

func (pc *postgresContainer) Stop() {
	exec.Command("docker", "rm", "-f", pc.id).Run()
}

func docker(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "docker", args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("docker %s: %w\n%s", args[0], err, out)
	}
	return strings.TrimSpace(string(out)), nil
}
