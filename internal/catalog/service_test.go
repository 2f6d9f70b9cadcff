package catalog

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestUpsertValidation(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	_, err := svc.Upsert(ctx, Product{SKU: "  ", Name: "Widget"})
	require.ErrorIs(t, err, ErrInvalidProduct)

	_, err = svc.Upsert(ctx, Product{SKU: "W-1", Name: ""})
	require.ErrorIs(t, err, ErrInvalidProduct)

	_, err = svc.Upsert(ctx, Product{SKU: "W-1", Name: "Widget", ListPurchasePrice: decimal.RequireFromString("-1")})
	require.ErrorIs(t, err, ErrInvalidProduct)
}

func TestUpsertBySKU(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	created, err := svc.Upsert(ctx, Product{SKU: "W-1", Name: "Widget", ListPurchasePrice: decimal.RequireFromString("80")})
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	updated, err := svc.Upsert(ctx, Product{SKU: "W-1", Name: "Widget v2", ListPurchasePrice: decimal.RequireFromString("85")})
	require.NoError(t, err)
	require.Equal(t, created.ID, updated.ID)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "Widget v2", all[0].Name)
}

func TestReferenceUnitCost(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	created, err := svc.Upsert(ctx, Product{SKU: "W-1", Name: "Widget", ListPurchasePrice: decimal.RequireFromString("80")})
	require.NoError(t, err)

	cost, err := svc.ReferenceUnitCost(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, cost.Equal(decimal.RequireFromString("80")))

	_, err = svc.ReferenceUnitCost(ctx, 999)
	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestName(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	created, err := svc.Upsert(ctx, Product{SKU: "W-1", Name: "Widget"})
	require.NoError(t, err)

	name, err := svc.Name(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Widget", name)

	_, err = svc.Name(ctx, 999)
	require.ErrorIs(t, err, ErrProductNotFound)
}
