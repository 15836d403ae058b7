package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	allocationdomain "github.com/smallbiznis/storesplit/internal/allocation/domain"
	"github.com/smallbiznis/storesplit/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockAllocationService struct {
	mock.Mock
}

func (m *mockAllocationService) CreatePayment(ctx context.Context, actorID snowflake.ID, req allocationdomain.PaymentRequest) (*allocationdomain.PaymentView, error) {
	args := m.Called(ctx, actorID, req)
	view, _ := args.Get(0).(*allocationdomain.PaymentView)
	return view, args.Error(1)
}

func (m *mockAllocationService) UpdatePayment(ctx context.Context, actorID snowflake.ID, paymentID snowflake.ID, req allocationdomain.PaymentRequest) (*allocationdomain.PaymentView, error) {
	args := m.Called(ctx, actorID, paymentID, req)
	view, _ := args.Get(0).(*allocationdomain.PaymentView)
	return view, args.Error(1)
}

func (m *mockAllocationService) DeletePayment(ctx context.Context, actorID snowflake.ID, paymentID snowflake.ID) error {
	return m.Called(ctx, actorID, paymentID).Error(0)
}

func (m *mockAllocationService) RemoveAllocation(ctx context.Context, actorID snowflake.ID, allocationID snowflake.ID) (*allocationdomain.PaymentView, error) {
	args := m.Called(ctx, actorID, allocationID)
	view, _ := args.Get(0).(*allocationdomain.PaymentView)
	return view, args.Error(1)
}

func (m *mockAllocationService) ListPayments(ctx context.Context, actorID snowflake.ID, req allocationdomain.ListPaymentsRequest) (allocationdomain.ListPaymentsResponse, error) {
	args := m.Called(ctx, actorID, req)
	return args.Get(0).(allocationdomain.ListPaymentsResponse), args.Error(1)
}

func (m *mockAllocationService) GetPayment(ctx context.Context, paymentID snowflake.ID) (*allocationdomain.PaymentView, error) {
	args := m.Called(ctx, paymentID)
	view, _ := args.Get(0).(*allocationdomain.PaymentView)
	return view, args.Error(1)
}

func (m *mockAllocationService) UpdateAllocationReimbursement(ctx context.Context, actorID snowflake.ID, allocationID snowflake.ID, p allocationdomain.ReimbursementPatch) (*allocationdomain.AllocationView, error) {
	args := m.Called(ctx, actorID, allocationID, p)
	view, _ := args.Get(0).(*allocationdomain.AllocationView)
	return view, args.Error(1)
}

func (m *mockAllocationService) StoreCashBalance(ctx context.Context, actorID snowflake.ID, storeID snowflake.ID) (decimal.Decimal, error) {
	args := m.Called(ctx, actorID, storeID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type mockAccess struct {
	mock.Mock
}

func (m *mockAccess) CanAccess(ctx context.Context, actorID snowflake.ID, storeID snowflake.ID) (bool, error) {
	args := m.Called(ctx, actorID, storeID)
	return args.Bool(0), args.Error(1)
}

func (m *mockAccess) GrantStoreRole(ctx context.Context, userID snowflake.ID, storeID snowflake.ID, role string) error {
	return m.Called(ctx, userID, storeID, role).Error(0)
}

func (m *mockAccess) RevokeStoreRole(ctx context.Context, userID snowflake.ID, storeID snowflake.ID, role string) error {
	return m.Called(ctx, userID, storeID, role).Error(0)
}

const testActor = snowflake.ID(42)

func newTestEngine(t *testing.T, svc *mockAllocationService, acc *mockAccess) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Config{Environment: "test"}
	engine := NewEngine(EngineParams{Cfg: cfg, Log: zap.NewNop()})
	NewServer(ServerParams{
		Gin:           engine,
		Cfg:           cfg,
		Log:           zap.NewNop(),
		AllocationSvc: svc,
		AccessSvc:     acc,
	})
	return engine
}

func doRequest(t *testing.T, engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderActor, testActor.String())
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestRequestsWithoutActorAreRejected(t *testing.T) {
	engine := newTestEngine(t, &mockAllocationService{}, &mockAccess{})

	req := httptest.NewRequest(http.MethodGet, "/api/store-payments?store_id=1", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec).Type)
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
	assert.NotEmpty(t, rec.Header().Get(HeaderCorrelationID))
}

func TestCreateStorePaymentMapsBody(t *testing.T) {
	svc := &mockAllocationService{}
	engine := newTestEngine(t, svc, &mockAccess{})

	view := &allocationdomain.PaymentView{Payment: allocationdomain.Payment{ID: 900, SourceStoreID: 1}}
	svc.On("CreatePayment", mock.Anything, testActor, mock.MatchedBy(func(req allocationdomain.PaymentRequest) bool {
		return req.SourceStoreID == 1 &&
			req.Amount.Equal(decimal.RequireFromString("150")) &&
			req.Mode == allocationdomain.SplitModePercentage &&
			len(req.Allocations) == 2 &&
			req.Allocations[0].TargetStoreID == 2 &&
			req.Allocations[0].Percentage.Equal(decimal.RequireFromString("40")) &&
			req.PaymentDate.Day() == 27
	})).Return(view, nil).Once()

	rec := doRequest(t, engine, http.MethodPost, "/api/store-payments", map[string]any{
		"source_store_id": "1",
		"payment_date":    "2026-02-27",
		"method":          "bank_transfer",
		"amount":          "150",
		"mode":            "percentage",
		"allocations": []map[string]any{
			{"target_store_id": "2", "percentage": "40"},
			{"target_store_id": "3", "percentage": "60"},
		},
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "900", resp.Data.ID)
	svc.AssertExpectations(t)
}

func TestCreateStorePaymentRejectsBadIDs(t *testing.T) {
	engine := newTestEngine(t, &mockAllocationService{}, &mockAccess{})

	rec := doRequest(t, engine, http.MethodPost, "/api/store-payments", map[string]any{
		"source_store_id": "abc",
		"payment_date":    "2026-02-27",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "validation_error", payload.Type)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "source_store_id", payload.Errors[0].Field)
}

func TestDomainErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		typ    string
	}{
		{"validation", allocationdomain.ErrAllocationSum, http.StatusBadRequest, "validation_error"},
		{"access", allocationdomain.ErrStoreAccessDenied, http.StatusForbidden, "forbidden"},
		{"conflict", allocationdomain.ErrCompletedAllocation, http.StatusConflict, "conflict"},
		{"not found", allocationdomain.ErrPaymentNotFound, http.StatusNotFound, "not_found"},
		{"storage", assert.AnError, http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockAllocationService{}
			engine := newTestEngine(t, svc, &mockAccess{})
			svc.On("DeletePayment", mock.Anything, testActor, snowflake.ID(77)).Return(tc.err).Once()

			rec := doRequest(t, engine, http.MethodDelete, "/api/store-payments/77", nil)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.typ, decodeError(t, rec).Type)
		})
	}
}

func TestValidationMessageDropsCategory(t *testing.T) {
	status, payload := mapError(allocationdomain.ErrAllocationSum)
	assert.Equal(t, http.StatusBadRequest, status)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "allocations must sum to total", payload.Errors[0].Message)

	_, payload = mapError(allocationdomain.ErrCompletedAllocation)
	assert.Equal(t, "payment has a completed reimbursement", payload.Message)
}

func TestLockTimeoutMapsToServiceUnavailable(t *testing.T) {
	svc := &mockAllocationService{}
	engine := newTestEngine(t, svc, &mockAccess{})
	svc.On("DeletePayment", mock.Anything, testActor, snowflake.ID(5)).
		Return(fmt.Errorf("lock payment: %w", errors.New("ERROR: canceling statement due to lock timeout (SQLSTATE 55P03)"))).Once()

	rec := doRequest(t, engine, http.MethodDelete, "/api/store-payments/5", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, rec.Body.String())
	assert.Equal(t, "busy", decodeError(t, rec).Type)
}

func TestDeleteStorePaymentReturnsNoContent(t *testing.T) {
	svc := &mockAllocationService{}
	engine := newTestEngine(t, svc, &mockAccess{})
	svc.On("DeletePayment", mock.Anything, testActor, snowflake.ID(5)).Return(nil).Once()

	rec := doRequest(t, engine, http.MethodDelete, "/api/store-payments/5", nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	svc.AssertExpectations(t)
}

func TestRemoveAllocationRoute(t *testing.T) {
	svc := &mockAllocationService{}
	engine := newTestEngine(t, svc, &mockAccess{})
	view := &allocationdomain.PaymentView{Payment: allocationdomain.Payment{ID: 5}}
	svc.On("RemoveAllocation", mock.Anything, testActor, snowflake.ID(8)).Return(view, nil).Once()

	rec := doRequest(t, engine, http.MethodDelete, "/api/store-payments/allocations/8", nil)

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	svc.AssertExpectations(t)
}

func TestSystemActorIDIsRejectedAtTheEdge(t *testing.T) {
	svc := &mockAllocationService{}
	engine := newTestEngine(t, svc, &mockAccess{})

	for _, raw := range []string{"0", "-7", "abc"} {
		req := httptest.NewRequest(http.MethodGet, "/api/store-payments/5", nil)
		req.Header.Set(HeaderActor, raw)
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code, raw)
	}
	svc.AssertNotCalled(t, "GetPayment", mock.Anything, mock.Anything)
}

func TestActorFromContextFailsClosed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	_, err := actorFromContext(c)
	require.ErrorIs(t, err, ErrUnauthorized)

	c.Set(contextActorIDKey, "0")
	_, err = actorFromContext(c)
	require.ErrorIs(t, err, ErrUnauthorized)

	c.Set(contextActorIDKey, testActor.String())
	id, err := actorFromContext(c)
	require.NoError(t, err)
	assert.Equal(t, testActor, id)
}

func TestReimbursementPatchKeepsPresence(t *testing.T) {
	svc := &mockAllocationService{}
	engine := newTestEngine(t, svc, &mockAccess{})
	svc.On("UpdateAllocationReimbursement", mock.Anything, testActor, snowflake.ID(8), mock.MatchedBy(func(p allocationdomain.ReimbursementPatch) bool {
		return p.Status.Set && p.Status.Value == allocationdomain.ReimbursementStatusCompleted &&
			p.ReimbursementMethod.Set && p.ReimbursementMethod.Value == "cash" &&
			p.ReimbursementReference.Set && p.ReimbursementReference.Null &&
			!p.ReimbursedAmount.Set
	})).Return(&allocationdomain.AllocationView{}, nil).Once()

	rec := doRequest(t, engine, http.MethodPatch, "/api/store-payments/allocations/8/reimbursement", map[string]any{
		"status":                  "completed",
		"reimbursement_method":    "cash",
		"reimbursement_reference": nil,
	})

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	svc.AssertExpectations(t)
}

func TestReimbursementPatchRejectsNullRequiredFlag(t *testing.T) {
	svc := &mockAllocationService{}
	engine := newTestEngine(t, svc, &mockAccess{})

	rec := doRequest(t, engine, http.MethodPatch, "/api/store-payments/allocations/8/reimbursement", map[string]any{
		"reimbursement_required": nil,
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	svc.AssertNotCalled(t, "UpdateAllocationReimbursement", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGetStorePaymentChecksAccess(t *testing.T) {
	svc := &mockAllocationService{}
	acc := &mockAccess{}
	engine := newTestEngine(t, svc, acc)

	view := &allocationdomain.PaymentView{
		Payment:     allocationdomain.Payment{ID: 5, SourceStoreID: 1},
		Allocations: []allocationdomain.AllocationView{{Allocation: allocationdomain.Allocation{TargetStoreID: 2}}},
	}
	svc.On("GetPayment", mock.Anything, snowflake.ID(5)).Return(view, nil)
	acc.On("CanAccess", mock.Anything, testActor, snowflake.ID(1)).Return(false, nil)
	acc.On("CanAccess", mock.Anything, testActor, snowflake.ID(2)).Return(false, nil).Once()

	rec := doRequest(t, engine, http.MethodGet, "/api/store-payments/5", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	acc.On("CanAccess", mock.Anything, testActor, snowflake.ID(2)).Return(true, nil).Once()
	rec = doRequest(t, engine, http.MethodGet, "/api/store-payments/5", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListStorePaymentsParsesQuery(t *testing.T) {
	svc := &mockAllocationService{}
	engine := newTestEngine(t, svc, &mockAccess{})
	svc.On("ListPayments", mock.Anything, testActor, mock.MatchedBy(func(req allocationdomain.ListPaymentsRequest) bool {
		return req.StoreID == 3 &&
			req.Role == allocationdomain.StoreRoleTarget &&
			req.PageSize == 10 &&
			req.From != nil && req.To != nil && req.To.Hour() == 23
	})).Return(allocationdomain.ListPaymentsResponse{Payments: []allocationdomain.PaymentView{}}, nil).Once()

	rec := doRequest(t, engine, http.MethodGet, "/api/store-payments?store_id=3&role=target&page_size=10&from=2026-01-01&to=2026-01-31", nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	svc.AssertExpectations(t)

	rec = doRequest(t, engine, http.MethodGet, "/api/store-payments", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "store_id", decodeError(t, rec).Errors[0].Field)
}

func TestStoreCashBalance(t *testing.T) {
	svc := &mockAllocationService{}
	engine := newTestEngine(t, svc, &mockAccess{})
	svc.On("StoreCashBalance", mock.Anything, testActor, snowflake.ID(3)).Return(decimal.RequireFromString("100"), nil).Once()

	rec := doRequest(t, engine, http.MethodGet, "/api/stores/3/cash-balance", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data struct {
			Balance string `json:"balance"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "100.00", resp.Data.Balance)
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	engine := newTestEngine(t, &mockAllocationService{}, &mockAccess{})

	rec := doRequest(t, engine, http.MethodGet, "/nope", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Type)
}
