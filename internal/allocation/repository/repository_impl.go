package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storesplit/internal/allocation/domain"
	storedomain "github.com/smallbiznis/storesplit/internal/store/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertPayment(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Create(payment).Error
}

func (r *repo) SavePayment(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Save(payment).Error
}

func (r *repo) DeletePayment(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Payment{}).Error
}

func (r *repo) FindPayment(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	return r.takePayment(db.WithContext(ctx), id)
}

func (r *repo) LockPayment(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	return r.takePayment(db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *repo) takePayment(stmt *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	var payment domain.Payment
	err := stmt.Where("id = ?", id).Take(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repo) ListPayments(ctx context.Context, db *gorm.DB, filter domain.PaymentFilter) ([]*domain.Payment, error) {
	var payments []*domain.Payment
	stmt := db.WithContext(ctx).Model(&domain.Payment{})

	targeted := db.Model(&domain.Allocation{}).
		Select("payment_id").
		Where("target_store_id = ?", filter.StoreID)

	switch filter.Role {
	case domain.StoreRoleSource:
		stmt = stmt.Where("source_store_id = ?", filter.StoreID)
	case domain.StoreRoleTarget:
		stmt = stmt.Where("id IN (?)", targeted)
	default:
		stmt = stmt.Where(db.Where("source_store_id = ?", filter.StoreID).Or("id IN (?)", targeted))
	}

	if filter.From != nil {
		stmt = stmt.Where("payment_date >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		stmt = stmt.Where("payment_date <= ?", filter.To.UTC())
	}
	if filter.BeforeID != nil {
		stmt = stmt.Where("id < ?", *filter.BeforeID)
	}

	stmt = stmt.Order("id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	if err := stmt.Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repo) InsertAllocation(ctx context.Context, db *gorm.DB, allocation *domain.Allocation) error {
	return db.WithContext(ctx).Create(allocation).Error
}

func (r *repo) SaveAllocation(ctx context.Context, db *gorm.DB, allocation *domain.Allocation) error {
	return db.WithContext(ctx).Save(allocation).Error
}

func (r *repo) DeleteAllocation(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Allocation{}).Error
}

func (r *repo) DeleteAllocationsByPayment(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) error {
	return db.WithContext(ctx).Where("payment_id = ?", paymentID).Delete(&domain.Allocation{}).Error
}

func (r *repo) FindAllocation(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Allocation, error) {
	return r.takeAllocation(db.WithContext(ctx), id)
}

func (r *repo) LockAllocation(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Allocation, error) {
	return r.takeAllocation(db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *repo) takeAllocation(stmt *gorm.DB, id snowflake.ID) (*domain.Allocation, error) {
	var allocation domain.Allocation
	err := stmt.Where("id = ?", id).Take(&allocation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &allocation, nil
}

// LockAllocations locks every allocation of paymentID in id order. Callers
// must already hold the payment lock.
func (r *repo) LockAllocations(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) ([]*domain.Allocation, error) {
	var allocations []*domain.Allocation
	if err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("payment_id = ?", paymentID).
		Order("id asc").
		Find(&allocations).Error; err != nil {
		return nil, err
	}
	return allocations, nil
}

// LockStoreAllocation locks the oldest allocation of paymentID that targets
// storeID, if one exists.
func (r *repo) LockStoreAllocation(ctx context.Context, db *gorm.DB, paymentID snowflake.ID, storeID snowflake.ID) (*domain.Allocation, error) {
	var allocation domain.Allocation
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("payment_id = ? AND target_store_id = ?", paymentID, storeID).
		Order("id asc").
		Take(&allocation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &allocation, nil
}

func (r *repo) ListAllocations(ctx context.Context, db *gorm.DB, paymentIDs []snowflake.ID) ([]*domain.Allocation, error) {
	var allocations []*domain.Allocation
	if len(paymentIDs) == 0 {
		return allocations, nil
	}
	if err := db.WithContext(ctx).
		Where("payment_id IN ?", paymentIDs).
		Order("payment_id asc, id asc").
		Find(&allocations).Error; err != nil {
		return nil, err
	}
	return allocations, nil
}

func (r *repo) StoreNames(ctx context.Context, db *gorm.DB, ids []snowflake.ID) (map[snowflake.ID]string, error) {
	names := make(map[snowflake.ID]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	var stores []storedomain.Store
	if err := db.WithContext(ctx).
		Select("id, name").
		Where("id IN ?", ids).
		Find(&stores).Error; err != nil {
		return nil, err
	}
	for _, store := range stores {
		names[store.ID] = store.Name
	}
	return names, nil
}

func (r *repo) BankAccountNames(ctx context.Context, db *gorm.DB, ids []snowflake.ID) (map[snowflake.ID]string, error) {
	names := make(map[snowflake.ID]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	var accounts []storedomain.BankAccount
	if err := db.WithContext(ctx).
		Select("id, name").
		Where("id IN ?", ids).
		Find(&accounts).Error; err != nil {
		return nil, err
	}
	for _, account := range accounts {
		names[account.ID] = account.Name
	}
	return names, nil
}
