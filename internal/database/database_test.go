package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/fieldwork/migrations"
)

func TestMaskDSN(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"postgres://app:s3cret@db:5432/fieldwork?sslmode=disable", "postgres://app:xxxxx@db:5432/fieldwork?sslmode=disable"},
		{"postgres://app@db/fieldwork", "postgres://app@db/fieldwork"},
		{"postgres://db/fieldwork", "postgres://db/fieldwork"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaskDSN(tt.in))
	}
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, isPermanent(&pq.Error{Code: "28P01"}))
	assert.True(t, isPermanent(fmt.Errorf("ping: %w", &pq.Error{Code: "3D000"})))
	assert.False(t, isPermanent(&pq.Error{Code: "57P03"}), "cannot_connect_now is transient")
	assert.False(t, isPermanent(errors.New("connection refused")))
}

func TestConfigure(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	opts := DefaultOptions()
	opts.MaxOpenConns = 7
	Configure(db, opts)
	assert.Equal(t, 7, db.Stats().MaxOpenConnections)
}

func TestEmbeddedMigrationsOrdered(t *testing.T) {
	entries, err := migrations.FS.ReadDir(".")
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	require.Len(t, names, 5)
	assert.Equal(t, "00001_tenants.sql", names[0])
	assert.Equal(t, "00005_resources.sql", names[4])

	for _, n := range names {
		body, err := migrations.FS.ReadFile(n)
		require.NoError(t, err)
		assert.Contains(t, string(body), "-- +goose Up", n)
		assert.Contains(t, string(body), "-- +goose Down", n)
	}
}
