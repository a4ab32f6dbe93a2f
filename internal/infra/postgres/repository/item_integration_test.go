//go:build integration

package repository_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aliskhannn/ssm-generator/internal/domain/entities"
	"github.com/aliskhannn/ssm-generator/internal/infra/postgres"
	"github.com/aliskhannn/ssm-generator/internal/infra/postgres/repository"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "ssm_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://test:test@%s:%s/ssm_test?sslmode=disable", host, port.Port())
}

func sampleItem(subject, prompt string) entities.GeneratedItem {
	return entities.GeneratedItem{
		Subject: subject,
		Topic:   subject,
		Prompt:  prompt,
		Options: []entities.Option{
			{ID: 1, Text: "Alfa", IsCorrect: true},
			{ID: 2, Text: "Beta"},
			{ID: 3, Text: "Gamma"},
			{ID: 4, Text: "Delta"},
			{ID: 5, Text: "Epsilon"},
		},
		CorrectAnswerText: "Alfa",
		Explanation:       "Spiegazione.",
	}
}

func TestItemRepository(t *testing.T) {
	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, startPostgres(t), postgres.PoolConfig{MaxConns: 2})
	require.NoError(t, err)
	defer pool.Close()

	repo := repository.NewItemRepository(pool, postgres.NewTransactor(pool))
	require.NoError(t, repo.EnsureSchema(ctx))
	require.NoError(t, repo.EnsureSchema(ctx), "schema creation is idempotent")

	require.NoError(t, repo.SaveItems(ctx, []entities.GeneratedItem{
		sampleItem("Cardiologia", "Q1?"),
		sampleItem("Cardiologia", "Q2?"),
		sampleItem("Pediatria", "Q3?"),
	}))
	require.NoError(t, repo.SaveItems(ctx, nil))

	counts, err := repo.CountBySubject(ctx)
	require.NoError(t, err)
	assert.Equal(t, []repository.SubjectCount{
		{Subject: "Cardiologia", Topic: "Cardiologia", Count: 2},
		{Subject: "Pediatria", Topic: "Pediatria", Count: 1},
	}, counts)

	items, err := repo.ListBySubject(ctx, "Cardiologia", 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Q2?", items[0].Prompt)
	assert.Len(t, items[0].Options, entities.OptionsPerItem)
}
