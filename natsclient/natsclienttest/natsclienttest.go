// Package natsclienttest starts a NATS server in a container and connects a
// natsclient.Client to it for integration tests.
package natsclienttest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/7-Dany/Stress-Strain/natsclient"
)

// Image is the NATS server image the container runs
const Image = "nats:2.11.7-alpine"

// Server is a connected Client backed by a NATS container
type Server struct {
	container testcontainers.Container
	Client    *natsclient.Client
	URL       string
}

// Option configures the container
type Option func(*config)

type config struct {
	timeout      time.Duration
	startTimeout time.Duration
}

// WithStartTimeout sets the container startup timeout
func WithStartTimeout(timeout time.Duration) Option {
	return func(cfg *config) {
		cfg.startTimeout = timeout
	}
}

// Start runs a NATS container and connects a Client to it.
// Both are torn down by t.Cleanup.
func Start(t testing.TB, opts ...Option) *Server {
	t.Helper()

	cfg := &config{
		timeout:      5 * time.Second,
		startTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        Image,
			ExposedPorts: []string{"4222/tcp"},
			WaitingFor:   wait.ForListeningPort("4222/tcp").WithStartupTimeout(cfg.startTimeout),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start NATS container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "4222")
	if err != nil {
		t.Fatalf("Failed to get mapped port: %v", err)
	}
	url := fmt.Sprintf("nats://%s:%s", host, port.Port())

	client, err := natsclient.NewClient(url, natsclient.WithTimeout(cfg.timeout), natsclient.WithMaxReconnects(0))
	if err != nil {
		t.Fatalf("Failed to create NATS client: %v", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		t.Fatalf("Failed to connect to NATS: %v", err)
	}
	t.Cleanup(func() { _ = client.Close(context.Background()) })

	return &Server{container: container, Client: client, URL: url}
}
