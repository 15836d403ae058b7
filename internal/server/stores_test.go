package server

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	allocationdomain "github.com/smallbiznis/storesplit/internal/allocation/domain"
	"github.com/smallbiznis/storesplit/internal/config"
	"github.com/smallbiznis/storesplit/internal/providers/pdf"
	storedomain "github.com/smallbiznis/storesplit/internal/store/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockStoreService struct {
	mock.Mock
}

func (m *mockStoreService) CreateStore(ctx context.Context, actorID snowflake.ID, req storedomain.CreateStoreRequest) (storedomain.Store, error) {
	args := m.Called(ctx, actorID, req)
	return args.Get(0).(storedomain.Store), args.Error(1)
}

func (m *mockStoreService) GetStore(ctx context.Context, actorID snowflake.ID, storeID snowflake.ID) (storedomain.Store, error) {
	args := m.Called(ctx, actorID, storeID)
	return args.Get(0).(storedomain.Store), args.Error(1)
}

func (m *mockStoreService) CreateBankAccount(ctx context.Context, actorID snowflake.ID, storeID snowflake.ID, req storedomain.CreateBankAccountRequest) (storedomain.BankAccount, error) {
	args := m.Called(ctx, actorID, storeID, req)
	return args.Get(0).(storedomain.BankAccount), args.Error(1)
}

func (m *mockStoreService) ListBankAccounts(ctx context.Context, actorID snowflake.ID, storeID snowflake.ID) ([]storedomain.BankAccount, error) {
	args := m.Called(ctx, actorID, storeID)
	accounts, _ := args.Get(0).([]storedomain.BankAccount)
	return accounts, args.Error(1)
}

func newStoreTestEngine(t *testing.T, stores *mockStoreService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Config{Environment: "test"}
	engine := NewEngine(EngineParams{Cfg: cfg, Log: zap.NewNop()})
	NewServer(ServerParams{
		Gin:           engine,
		Cfg:           cfg,
		Log:           zap.NewNop(),
		AllocationSvc: &mockAllocationService{},
		AccessSvc:     &mockAccess{},
		StoreSvc:      stores,
	})
	return engine
}

func TestCreateStoreHandler(t *testing.T) {
	stores := &mockStoreService{}
	stores.On("CreateStore", mock.Anything, testActor, storedomain.CreateStoreRequest{Name: "North Outlet"}).
		Return(storedomain.Store{ID: 7, Code: "north-outlet", Name: "North Outlet"}, nil)

	rec := doRequest(t, newStoreTestEngine(t, stores), http.MethodPost, "/api/stores", map[string]any{"name": "North Outlet"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"north-outlet"`)
	assert.Contains(t, rec.Body.String(), `"id":"7"`)
	stores.AssertExpectations(t)
}

func TestCreateStoreErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{storedomain.ErrCodeTaken, http.StatusConflict},
		{storedomain.ErrInvalidName, http.StatusBadRequest},
		{storedomain.ErrForbidden, http.StatusForbidden},
	}
	for _, tc := range cases {
		stores := &mockStoreService{}
		stores.On("CreateStore", mock.Anything, testActor, mock.Anything).Return(storedomain.Store{}, tc.err)

		rec := doRequest(t, newStoreTestEngine(t, stores), http.MethodPost, "/api/stores", map[string]any{"name": "x"})
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
	}
}

func TestBankAccountHandlers(t *testing.T) {
	stores := &mockStoreService{}
	stores.On("CreateBankAccount", mock.Anything, testActor, snowflake.ID(7), storedomain.CreateBankAccountRequest{Name: "Ops", AccountNumber: "001"}).
		Return(storedomain.BankAccount{ID: 9, StoreID: 7, Name: "Ops", AccountNumber: "001"}, nil)
	stores.On("ListBankAccounts", mock.Anything, testActor, snowflake.ID(7)).
		Return([]storedomain.BankAccount{{ID: 9, StoreID: 7, Name: "Ops"}}, nil)
	stores.On("GetStore", mock.Anything, testActor, snowflake.ID(8)).
		Return(storedomain.Store{}, storedomain.ErrNotFound)
	engine := newStoreTestEngine(t, stores)

	rec := doRequest(t, engine, http.MethodPost, "/api/stores/7/bank-accounts", map[string]any{"name": "Ops", "account_number": "001"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"store_id":"7"`)

	rec = doRequest(t, engine, http.MethodGet, "/api/stores/7/bank-accounts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"9"`)

	rec = doRequest(t, engine, http.MethodGet, "/api/stores/8", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	stores.AssertExpectations(t)
}

type stubVoucher struct {
	got pdf.VoucherData
}

func (s *stubVoucher) GeneratePaymentVoucher(_ context.Context, data pdf.VoucherData) (io.Reader, error) {
	s.got = data
	return strings.NewReader("%PDF-1.3 stub"), nil
}

func TestStorePaymentVoucher(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &mockAllocationService{}
	acc := &mockAccess{}
	voucher := &stubVoucher{}

	ref := "TRX-9"
	view := &allocationdomain.PaymentView{
		Payment: allocationdomain.Payment{
			ID:            55,
			SourceStoreID: 1,
			PaymentDate:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			Method:        "bank_transfer",
			Reference:     &ref,
			Amount:        decimal.RequireFromString("150"),
			Currency:      "USD",
		},
		SourceStoreName: "Store A",
		Allocations: []allocationdomain.AllocationView{
			{
				Allocation: allocationdomain.Allocation{
					TargetStoreID:        2,
					AllocatedAmount:      decimal.RequireFromString("150"),
					AllocationPercentage: decimal.NewNullDecimal(decimal.RequireFromString("100")),
					ReimbursementStatus:  allocationdomain.ReimbursementStatusPending,
				},
			},
		},
	}
	svc.On("GetPayment", mock.Anything, snowflake.ID(55)).Return(view, nil)
	acc.On("CanAccess", mock.Anything, testActor, snowflake.ID(1)).Return(true, nil)

	cfg := config.Config{Environment: "test"}
	engine := NewEngine(EngineParams{Cfg: cfg, Log: zap.NewNop()})
	NewServer(ServerParams{
		Gin:           engine,
		Cfg:           cfg,
		Log:           zap.NewNop(),
		AllocationSvc: svc,
		AccessSvc:     acc,
		StoreSvc:      &mockStoreService{},
		PDFProvider:   voucher,
	})

	rec := doRequest(t, engine, http.MethodGet, "/api/store-payments/55/voucher", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "payment-55.pdf")

	assert.Equal(t, "TRX-9", voucher.got.Reference)
	assert.Equal(t, "150.00", voucher.got.Total)
	assert.Equal(t, "2026-03-01", voucher.got.PaymentDate)
	require.Len(t, voucher.got.Lines, 1)
	assert.Equal(t, "2", voucher.got.Lines[0].Store)
	assert.Equal(t, "100.000", voucher.got.Lines[0].Percentage)
	assert.Equal(t, "pending", voucher.got.Lines[0].Reimbursement)
}
