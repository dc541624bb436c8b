package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/webflix/webflix/pkg/logger"
)

// To lower the barrier for local development we can provide the Postgres
// database automatically by spawning it via the Docker SDK, rather than
// requiring an external installation.

const (
	embeddedPostgresImage = "postgres:16.1-alpine"
	embeddedPostgresLabel = "webflix-postgres"
)

var spawnLogger = logger.Get("DBSpawn")

type EmbeddedPostgres struct {
	cli         *client.Client
	containerID string
}

// SpawnPostgres pulls the Postgres image and creates + starts a container
// configured from the provided DatabaseConfig. The returned handle must be
// closed by the caller to stop and remove the container.
func SpawnPostgres(ctx context.Context, config DatabaseConfig) (*EmbeddedPostgres, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to construct docker client: %w", err)
	}

	spawnLogger.Emit(logger.INFO, "Pulling image %s...\n", embeddedPostgresImage)
	out, err := cli.ImagePull(ctx, embeddedPostgresImage, types.ImagePullOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to pull image %s: %w", embeddedPostgresImage, err)
	}
	defer out.Close()
	if err := drainPullEvents(out); err != nil {
		return nil, err
	}

	containerConfig := &container.Config{
		Image: embeddedPostgresImage,
		Env: []string{
			fmt.Sprintf("POSTGRES_PASSWORD=%s", config.Password),
			fmt.Sprintf("POSTGRES_USER=%s", config.User),
			fmt.Sprintf("POSTGRES_DB=%s", config.Name),
		},
		ExposedPorts: nat.PortSet{"5432/tcp": struct{}{}},
	}
	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			"5432/tcp": []nat.PortBinding{{
				HostIP:   config.Host,
				HostPort: config.Port,
			}},
		},
	}

	resp, err := cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, embeddedPostgresLabel)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedded postgres container: %w", err)
	}

	if err := cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start embedded postgres container: %w", err)
	}

	spawnLogger.Emit(logger.SUCCESS, "Embedded postgres container %s is up\n", resp.ID[:10])
	return &EmbeddedPostgres{cli: cli, containerID: resp.ID}, nil
}

// Close stops and removes the embedded postgres container.
func (pg *EmbeddedPostgres) Close(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout+(time.Second*5))
	defer cancel()

	timeoutSeconds := int(timeout.Seconds())
	if err := pg.cli.ContainerStop(ctx, pg.containerID, container.StopOptions{Timeout: &timeoutSeconds}); err != nil {
		return fmt.Errorf("failed to stop embedded postgres container: %w", err)
	}

	if err := pg.cli.ContainerRemove(ctx, pg.containerID, container.RemoveOptions{}); err != nil {
		return fmt.Errorf("failed to remove embedded postgres container: %w", err)
	}

	spawnLogger.Emit(logger.STOP, "Embedded postgres container removed\n")
	return nil
}

type pullEvent struct {
	Status   string `json:"status"`
	Error    string `json:"error"`
	Progress string `json:"progress"`
}

func drainPullEvents(out io.Reader) error {
	eventStream := json.NewDecoder(out)
	for {
		var event pullEvent
		if err := eventStream.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			return fmt.Errorf("failed to decode image pull event: %w", err)
		}

		if event.Error != "" {
			return fmt.Errorf("image pull failed: %s", event.Error)
		} else if event.Progress != "" {
			spawnLogger.Emit(logger.DEBUG, "%s\n", event.Progress)
		} else if event.Status != "" {
			spawnLogger.Emit(logger.DEBUG, "%s\n", event.Status)
		}
	}
}
