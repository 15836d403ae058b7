package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storesplit/internal/cashledger/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.CashTransaction) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.CashTransaction, error) {
	var entry domain.CashTransaction
	err := db.WithContext(ctx).Where("id = ?", id).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repo) SumByDirection(ctx context.Context, db *gorm.DB, storeID snowflake.ID) (decimal.Decimal, decimal.Decimal, error) {
	var rows []struct {
		Direction string
		Total     decimal.NullDecimal
	}
	if err := db.WithContext(ctx).
		Model(&domain.CashTransaction{}).
		Select("direction, SUM(amount) AS total").
		Where("store_id = ?", storeID).
		Group("direction").
		Scan(&rows).Error; err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	in, out := decimal.Zero, decimal.Zero
	for _, row := range rows {
		if !row.Total.Valid {
			continue
		}
		switch domain.Direction(row.Direction) {
		case domain.DirectionIn:
			in = in.Add(row.Total.Decimal)
		case domain.DirectionOut:
			out = out.Add(row.Total.Decimal)
		}
	}
	return in, out, nil
}
