package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storesplit/internal/cashledger/domain"
	"github.com/smallbiznis/storesplit/internal/clock"
	obsmetrics "github.com/smallbiznis/storesplit/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Clock      clock.Clock         `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		log:        p.Log.Named("cashledger.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		clock:      clk,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) AddCash(ctx context.Context, tx *gorm.DB, posting domain.Posting) (*domain.CashTransaction, error) {
	return s.post(ctx, tx, domain.DirectionIn, posting)
}

func (s *Service) SubtractCash(ctx context.Context, tx *gorm.DB, posting domain.Posting) (*domain.CashTransaction, error) {
	return s.post(ctx, tx, domain.DirectionOut, posting)
}

func (s *Service) post(ctx context.Context, tx *gorm.DB, direction domain.Direction, posting domain.Posting) (*domain.CashTransaction, error) {
	if tx == nil {
		return nil, domain.ErrMissingTx
	}
	if posting.StoreID == 0 {
		return nil, domain.ErrInvalidStore
	}
	amount := posting.Amount.Round(2)
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	reason := strings.TrimSpace(posting.ReasonCode)
	if reason == "" {
		return nil, domain.ErrInvalidReasonCode
	}

	now := s.clock.Now().UTC()
	date := posting.Date
	if date.IsZero() {
		date = now
	}

	entry := &domain.CashTransaction{
		ID:              s.genID.Generate(),
		StoreID:         posting.StoreID,
		Direction:       direction,
		Amount:          amount,
		ReasonCode:      reason,
		ReferenceID:     posting.ReferenceID,
		TransactionDate: date.UTC().Truncate(time.Second),
		Description:     strings.TrimSpace(posting.Description),
		CreatedBy:       posting.Actor,
		CreatedAt:       now,
	}
	if err := s.repo.Insert(ctx, tx, entry); err != nil {
		return nil, err
	}

	s.log.Debug("cash posted",
		zap.String("store_id", entry.StoreID.String()),
		zap.String("direction", string(direction)),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("reason_code", reason),
	)
	s.obsMetrics.RecordCashPosting(ctx, string(direction), reason)
	return entry, nil
}

// GetBalance returns Σin − Σout for the store, rounded to the cent.
func (s *Service) GetBalance(ctx context.Context, db *gorm.DB, storeID snowflake.ID) (decimal.Decimal, error) {
	if storeID == 0 {
		return decimal.Zero, domain.ErrInvalidStore
	}
	in, out, err := s.repo.SumByDirection(ctx, db, storeID)
	if err != nil {
		return decimal.Zero, err
	}
	return in.Sub(out).Round(2), nil
}
