//go:build integration

package mongo_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/xraph/grove"

	"github.com/xraph/jobq/store"
	mongostore "github.com/xraph/jobq/store/mongo"
	"github.com/xraph/jobq/store/storetest"
)

// setupEndpoint starts a MongoDB container and returns its connection URI.
func setupEndpoint(t *testing.T) string {
	t.Helper()

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForLog("Waiting for connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start mongo container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	endpoint, err := container.Endpoint(ctx, "mongodb")
	if err != nil {
		t.Fatalf("endpoint: %v", err)
	}
	return endpoint
}

func TestConformance(t *testing.T) {
	endpoint := setupEndpoint(t)
	var n atomic.Int32
	storetest.Run(t, func(t *testing.T) store.Store {
		t.Helper()
		ctx := context.Background()
		// A fresh database per case keeps cases independent.
		dsn := fmt.Sprintf("%s/jobq_test_%d", endpoint, n.Add(1))
		drv, err := grove.OpenDriver(ctx, "mongo", dsn)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		db, err := grove.Open(drv)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		t.Cleanup(func() { _ = db.Close() })

		s := mongostore.New(db)
		if err := s.Migrate(ctx); err != nil {
			t.Fatalf("migrate: %v", err)
		}
		return s
	})
}
