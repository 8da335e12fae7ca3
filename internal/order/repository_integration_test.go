//go:build integration

package order

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"cediman-be/internal/utils"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "cediman",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := postgres.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := postgres.Host(ctx)
	require.NoError(t, err)
	port, err := postgres.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://testuser:testpass@%s:%s/cediman?sslmode=disable", host, port.Port())
	database, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	require.NoError(t, database.PingContext(ctx))
	require.NoError(t, applyMigrations(database))
	return database
}

func applyMigrations(database *sql.DB) error {
	files, err := filepath.Glob(filepath.Join("..", "..", "migrations", "*.sql"))
	if err != nil {
		return err
	}
	sort.Strings(files)

	for _, f := range files {
		up, err := upSection(f)
		if err != nil {
			return err
		}
		if _, err := database.Exec(up); err != nil {
			return fmt.Errorf("apply %s: %w", filepath.Base(f), err)
		}
	}
	return nil
}

func upSection(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	up := string(content)
	if i := strings.Index(up, "-- +migrate Down"); i >= 0 {
		up = up[:i]
	}
	return strings.Replace(up, "-- +migrate Up", "", 1), nil
}

func newIntegrationOrder(id, ref string) *Order {
	now := time.Now().UTC().Truncate(time.Second)
	return &Order{
		ID:         id,
		Status:     StatusConfirmed,
		GuestEmail: "ama@example.com",
		Items: []Item{
			{ProductID: "P1", Name: "Home Jersey", Quantity: 2, UnitPrice: decimal.RequireFromString("75.50")},
			{ProductID: "P2", Name: "Scarf", Quantity: 1, UnitPrice: decimal.RequireFromString("19.99")},
		},
		Subtotal:         decimal.RequireFromString("170.99"),
		ShippingCost:     decimal.RequireFromString("25"),
		Total:            decimal.RequireFromString("195.99"),
		PaymentReference: ref,
		Shipping:         Shipping{Name: "Ama", Email: "ship@example.com", City: "Accra"},
		OrderDate:        now,
		UpdatedAt:        now,
	}
}

func TestRepositoryIntegration(t *testing.T) {
	database := setupTestDB(t)
	repo := NewRepository(database)
	ctx := context.Background()

	t.Run("Create and Get", func(t *testing.T) {
		_, err := repo.Create(ctx, newIntegrationOrder("ORD-IT-1", "PAY-IT-1"))
		require.NoError(t, err)

		got, err := repo.Get(ctx, "ORD-IT-1")
		require.NoError(t, err)
		assert.Equal(t, StatusConfirmed, got.Status)
		assert.True(t, got.Total.Equal(decimal.RequireFromString("195.99")))
		require.Len(t, got.Items, 2)
		assert.Equal(t, "P1", got.Items[0].ProductID)
		assert.Equal(t, "Accra", got.Shipping.City)
		assert.Nil(t, got.UserID)
	})

	t.Run("Duplicate reference", func(t *testing.T) {
		_, err := repo.Create(ctx, newIntegrationOrder("ORD-IT-2", "PAY-IT-1"))
		assert.ErrorIs(t, err, ErrDuplicateReference)

		_, err = repo.Get(ctx, "ORD-IT-2")
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})

	t.Run("Duplicate order id", func(t *testing.T) {
		_, err := repo.Create(ctx, newIntegrationOrder("ORD-IT-1", "PAY-IT-FRESH"))
		assert.ErrorIs(t, err, ErrDuplicateOrderID)
		assert.NotErrorIs(t, err, ErrDuplicateReference)
	})

	t.Run("Compare and swap", func(t *testing.T) {
		require.NoError(t, repo.UpdateStatus(ctx, "ORD-IT-1", StatusConfirmed, StatusSubmitted, nil, utils.StrPtr("payment verified")))

		err := repo.UpdateStatus(ctx, "ORD-IT-1", StatusConfirmed, StatusProcessing, nil, nil)
		assert.ErrorIs(t, err, ErrStatusConflict)

		err = repo.UpdateStatus(ctx, "ORD-MISSING", StatusConfirmed, StatusProcessing, nil, nil)
		assert.ErrorIs(t, err, ErrOrderNotFound)

		var n int
		require.NoError(t, database.QueryRow(`SELECT count(*) FROM order_status_history WHERE order_id = $1`, "ORD-IT-1").Scan(&n))
		assert.Equal(t, 1, n)
	})

	t.Run("Legacy reference", func(t *testing.T) {
		legacy := newIntegrationOrder("ORD-IT-3", "")
		_, err := repo.Create(ctx, legacy)
		require.NoError(t, err)
		_, err = database.Exec(`UPDATE orders SET payment = '{"reference":"PAY-LEGACY"}' WHERE id = $1`, "ORD-IT-3")
		require.NoError(t, err)

		found, err := repo.FindByPaymentReference(ctx, "PAY-LEGACY")
		require.NoError(t, err)
		assert.Equal(t, "ORD-IT-3", found.ID)
		assert.Equal(t, "PAY-LEGACY", found.PaymentReference)
	})

	t.Run("Attach reference", func(t *testing.T) {
		assert.ErrorIs(t, repo.AttachPaymentReference(ctx, "ORD-IT-3", "PAY-OTHER"), ErrReferenceLocked)
		require.NoError(t, repo.AttachPaymentReference(ctx, "ORD-IT-3", "PAY-LEGACY"))

		// ORD-IT-1 is already paid.
		assert.ErrorIs(t, repo.AttachPaymentReference(ctx, "ORD-IT-1", "PAY-OTHER"), ErrReferenceLocked)
		assert.ErrorIs(t, repo.AttachPaymentReference(ctx, "ORD-MISSING", "PAY-OTHER"), ErrOrderNotFound)

		var ref string
		require.NoError(t, database.QueryRow(`SELECT payment_reference FROM orders WHERE id = $1`, "ORD-IT-3").Scan(&ref))
		assert.Equal(t, "PAY-LEGACY", ref)
	})

	t.Run("Backfill user", func(t *testing.T) {
		n, err := repo.BackfillUserID(ctx, "AMA@example.com", "U1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		orders, err := repo.ListByUser(ctx, "U1")
		require.NoError(t, err)
		assert.Len(t, orders, 2)
	})

	t.Run("Delete cascades", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, "ORD-IT-1"))
		assert.ErrorIs(t, repo.Delete(ctx, "ORD-IT-1"), ErrOrderNotFound)

		var n int
		require.NoError(t, database.QueryRow(`SELECT count(*) FROM order_items WHERE order_id = $1`, "ORD-IT-1").Scan(&n))
		assert.Zero(t, n)
	})
}

func TestServiceIntegration_ConcurrentVerify(t *testing.T) {
	database := setupTestDB(t)
	repo := NewRepository(database)
	ctx := context.Background()

	_, err := repo.Create(ctx, newIntegrationOrder("ORD-IT-9", "PAY-IT-9"))
	require.NoError(t, err)

	gateway := new(MockGateway)
	v := successVerification("PAY-IT-9")
	v.AmountMinorUnits = 19599
	gateway.On("Verify", mock.Anything, "PAY-IT-9").Return(v, nil)

	svc := NewService(Deps{Repo: repo, Gateway: gateway})

	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func() { errs <- svc.VerifyAndConfirmPayment(ctx, "ORD-IT-9") }()
	}
	for i := 0; i < 10; i++ {
		assert.NoError(t, <-errs)
	}

	got, err := repo.Get(ctx, "ORD-IT-9")
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, got.Status)
}

func TestMigrationIntegration_LegacyReferenceBackfill(t *testing.T) {
	database := setupTestDB(t)
	repo := NewRepository(database)
	ctx := context.Background()

	legacy := map[string]string{
		"ORD-L1": "PAY-SHARED",
		"ORD-L2": "PAY-SHARED",
		"ORD-L3": "PAY-SOLO",
	}
	for id, ref := range legacy {
		_, err := repo.Create(ctx, newIntegrationOrder(id, ""))
		require.NoError(t, err)
		_, err = database.Exec(`UPDATE orders SET payment = jsonb_build_object('reference', $1::text) WHERE id = $2`, ref, id)
		require.NoError(t, err)
	}

	up, err := upSection(filepath.Join("..", "..", "migrations", "0004_backfill_payment_reference.sql"))
	require.NoError(t, err)
	_, err = database.Exec(up)
	require.NoError(t, err)

	normalized := func(id string) sql.NullString {
		var ref sql.NullString
		require.NoError(t, database.QueryRow(`SELECT payment_reference FROM orders WHERE id = $1`, id).Scan(&ref))
		return ref
	}
	assert.Equal(t, "PAY-SOLO", normalized("ORD-L3").String)
	assert.False(t, normalized("ORD-L1").Valid)
	assert.False(t, normalized("ORD-L2").Valid)
}
