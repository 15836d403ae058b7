package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storesplit/internal/clock"
	"github.com/smallbiznis/storesplit/internal/expense/domain"
	"github.com/smallbiznis/storesplit/internal/expense/repository"
	"github.com/smallbiznis/storesplit/internal/expense/service"
	"github.com/smallbiznis/storesplit/pkg/patch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.Expense{}))
	return db
}

func newService(t *testing.T) domain.Service {
	t.Helper()
	node, err := snowflake.NewNode(4)
	require.NoError(t, err)
	return service.NewService(service.Params{
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Clock: clock.NewFakeClock(testNow),
	})
}

func createExpense(t *testing.T, svc domain.Service, db *gorm.DB, reimbursable bool) *domain.Expense {
	t.Helper()
	expense, err := svc.Create(context.Background(), db, domain.CreateExpenseRequest{
		StoreID:         21,
		ExpenseDate:     testNow,
		ExpenseType:     "cross_store_allocation",
		Amount:          decimal.RequireFromString("60.00"),
		Currency:        "usd",
		PaymentMethod:   "check",
		Reimbursable:    reimbursable,
		ReimbursementTo: "Acme Supplies",
	})
	require.NoError(t, err)
	return expense
}

func TestCreateSetsReimbursementStatus(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t)

	reimbursable := createExpense(t, svc, db, true)
	assert.Equal(t, domain.ReimbursementStatusPending, reimbursable.ReimbursementStatus)
	assert.Equal(t, "USD", reimbursable.Currency)

	plain := createExpense(t, svc, db, false)
	assert.Equal(t, domain.ReimbursementStatusNone, plain.ReimbursementStatus)
}

func TestCreateValidates(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, db, domain.CreateExpenseRequest{ExpenseDate: testNow, ExpenseType: "x", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrInvalidStore)

	_, err = svc.Create(ctx, db, domain.CreateExpenseRequest{StoreID: 1, ExpenseDate: testNow, ExpenseType: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Create(ctx, db, domain.CreateExpenseRequest{StoreID: 1, ExpenseDate: testNow, Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrInvalidExpenseType)

	_, err = svc.Create(ctx, db, domain.CreateExpenseRequest{StoreID: 1, ExpenseType: "x", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrInvalidExpenseDate)
}

func TestUpdateAppliesOnlyProvidedFields(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t)
	ctx := context.Background()
	expense := createExpense(t, svc, db, true)

	reimbursedAt := testNow.Add(time.Hour)
	updated, err := svc.Update(ctx, db, expense.ID, domain.Patch{
		ReimbursementStatus:    patch.Some(domain.ReimbursementStatusReimbursed),
		ReimbursedAt:           patch.Value(reimbursedAt),
		ReimbursedAmount:       patch.Value(decimal.RequireFromString("60")),
		ReimbursementMethod:    patch.Value("cash"),
		ReimbursementReference: patch.Value("RC-1"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ReimbursementStatusReimbursed, updated.ReimbursementStatus)
	assert.True(t, updated.Amount.Equal(decimal.RequireFromString("60")))
	assert.Equal(t, "check", updated.PaymentMethod)

	stored, err := svc.FindByID(ctx, db, expense.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ReimbursedAt)
	assert.True(t, stored.ReimbursedAt.Equal(reimbursedAt))
	assert.True(t, stored.ReimbursedAmount.Valid)
	require.NotNil(t, stored.ReimbursementMethod)
	assert.Equal(t, "cash", *stored.ReimbursementMethod)

	cleared, err := svc.Update(ctx, db, expense.ID, domain.Patch{
		ReimbursementStatus:    patch.Some(domain.ReimbursementStatusPending),
		ReimbursedAt:           patch.Null[time.Time](),
		ReimbursedAmount:       patch.Null[decimal.Decimal](),
		ReimbursementMethod:    patch.Null[string](),
		ReimbursementReference: patch.Null[string](),
	})
	require.NoError(t, err)
	assert.Nil(t, cleared.ReimbursedAt)
	assert.False(t, cleared.ReimbursedAmount.Valid)
	assert.Nil(t, cleared.ReimbursementMethod)
	assert.Nil(t, cleared.ReimbursementReference)
}

func TestUpdateRejectsUnknownStatusAndMissingExpense(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t)
	ctx := context.Background()
	expense := createExpense(t, svc, db, false)

	_, err := svc.Update(ctx, db, expense.ID, domain.Patch{ReimbursementStatus: patch.Some(domain.ReimbursementStatus("paid"))})
	assert.ErrorIs(t, err, domain.ErrInvalidReimbursable)

	_, err = svc.Update(ctx, db, snowflake.ID(404), domain.Patch{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t)
	ctx := context.Background()
	expense := createExpense(t, svc, db, false)

	require.NoError(t, svc.Delete(ctx, db, expense.ID))
	require.NoError(t, svc.Delete(ctx, db, expense.ID))

	_, err := svc.FindByID(ctx, db, expense.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListByIDs(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t)
	a := createExpense(t, svc, db, false)
	b := createExpense(t, svc, db, true)

	found, err := svc.ListByIDs(context.Background(), db, []snowflake.ID{a.ID, b.ID, 999})
	require.NoError(t, err)
	assert.Len(t, found, 2)
	assert.Contains(t, found, a.ID)
	assert.Contains(t, found, b.ID)

	empty, err := svc.ListByIDs(context.Background(), db, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
