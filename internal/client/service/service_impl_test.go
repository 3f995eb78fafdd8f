package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/carebill/internal/client/domain"
	"github.com/smallbiznis/carebill/internal/client/repository"
	"github.com/smallbiznis/carebill/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (domain.Service, domain.Repository, *Service) {
	t.Helper()
	repo := repository.Provide()
	svc := New(Params{
		DB:    dbtest.New(t),
		Log:   zap.NewNop(),
		GenID: dbtest.Node(t),
		Repo:  repo,
	})
	return svc, repo, svc.(*Service)
}

func TestCreateClientWithPayerRates(t *testing.T) {
	svc, repo, impl := newTestService(t)
	ctx := context.Background()

	standard := decimal.RequireFromString("20.50")
	minutes := 15
	payer, err := svc.CreatePayer(ctx, domain.CreatePayerRequest{
		Name:                   "State Medicaid",
		StandardRatePerUnit:    &standard,
		StandardMinutesPerUnit: &minutes,
	})
	require.NoError(t, err)

	client, err := svc.CreateClient(ctx, domain.CreateClientRequest{
		Name:         "Jordan",
		BillingEmail: "family@example.com",
		PayerID:      payer.ID.String(),
	})
	require.NoError(t, err)

	found, err := repo.FindPayerForClient(ctx, impl.db, client.ID)
	require.NoError(t, err)
	require.NotNil(t, found)

	rates := found.Rates()
	assert.True(t, rates.StandardRate.Valid)
	assert.True(t, standard.Equal(rates.StandardRate.Decimal))
	assert.False(t, rates.SupervisoryRate.Valid)
	assert.False(t, rates.LegacyRate.Valid)
	require.NotNil(t, rates.StandardMinutes)
	assert.Equal(t, 15, *rates.StandardMinutes)

	got, err := svc.GetClient(ctx, client.ID)
	require.NoError(t, err)
	assert.Equal(t, "family@example.com", got.BillingEmail)
}

func TestCreateClientValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateClient(ctx, domain.CreateClientRequest{Name: " "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = svc.CreateClient(ctx, domain.CreateClientRequest{Name: "A", BillingEmail: "nope"})
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)

	_, err = svc.CreateClient(ctx, domain.CreateClientRequest{Name: "A", PayerID: "123"})
	assert.ErrorIs(t, err, domain.ErrPayerNotFound)

	negative := decimal.NewFromInt(-1)
	_, err = svc.CreatePayer(ctx, domain.CreatePayerRequest{Name: "X", RatePerUnit: &negative})
	assert.ErrorIs(t, err, domain.ErrInvalidRate)

	_, err = svc.GetClient(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFindPayerForClientWithoutPayer(t *testing.T) {
	svc, repo, impl := newTestService(t)
	ctx := context.Background()

	client, err := svc.CreateClient(ctx, domain.CreateClientRequest{Name: "No Payer"})
	require.NoError(t, err)

	payer, err := repo.FindPayerForClient(ctx, impl.db, client.ID)
	require.NoError(t, err)
	assert.Nil(t, payer)
}
