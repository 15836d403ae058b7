package db

import (
	"context"

	"gorm.io/gorm"
)

// UnitOfWork runs a function inside one database transaction. The handle
// passed to fn is the only executor the function may use; repositories and
// gateways take it explicitly so every write of an operation commits or rolls
// back together.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type gormUnitOfWork struct {
	db *gorm.DB
}

func NewUnitOfWork(conn *gorm.DB) UnitOfWork {
	return &gormUnitOfWork{db: conn}
}

func (u *gormUnitOfWork) Do(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(tx.WithContext(ctx))
	})
}
