package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/storesplit/internal/access"
	auditdomain "github.com/smallbiznis/storesplit/internal/audit/domain"
	"github.com/smallbiznis/storesplit/internal/clock"
	"github.com/smallbiznis/storesplit/internal/logger"
	"github.com/smallbiznis/storesplit/internal/store/domain"
	"github.com/smallbiznis/storesplit/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxCodeLength = 64

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Access   access.Service
	AuditSvc auditdomain.Service `optional:"true"`
	Clock    clock.Clock         `optional:"true"`
}

type service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	access   access.Service
	auditSvc auditdomain.Service
	clock    clock.Clock
}

func NewService(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &service{
		db:       p.DB,
		log:      p.Log.Named("store.service"),
		genID:    p.GenID,
		access:   p.Access,
		auditSvc: p.AuditSvc,
		clock:    c,
	}
}

func (s *service) CreateStore(ctx context.Context, actorID snowflake.ID, req domain.CreateStoreRequest) (domain.Store, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Store{}, domain.ErrInvalidName
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		code = name
	}
	code = slug.Make(code)
	if code == "" || len(code) > maxCodeLength {
		return domain.Store{}, domain.ErrInvalidCode
	}

	now := s.clock.Now().UTC()
	store := domain.Store{
		ID:        s.genID.Generate(),
		Code:      code,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.db.WithContext(ctx).Create(&store).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Store{}, domain.ErrCodeTaken
		}
		return domain.Store{}, err
	}

	if actorID != access.SystemActor {
		if err := s.access.GrantStoreRole(ctx, actorID, store.ID, access.RoleOwner); err != nil {
			if delErr := s.db.WithContext(ctx).Delete(&domain.Store{}, "id = ?", store.ID).Error; delErr != nil {
				logger.WithContext(ctx, s.log).Error("failed to remove store after owner grant failure",
					zap.String("store_id", store.ID.String()),
					zap.Error(delErr),
				)
			}
			return domain.Store{}, err
		}
	}

	s.audit(ctx, store.ID, actorID, "store.created", "store", store.ID, map[string]any{
		"code": store.Code,
		"name": store.Name,
	})

	return store, nil
}

func (s *service) GetStore(ctx context.Context, actorID snowflake.ID, storeID snowflake.ID) (domain.Store, error) {
	if err := s.requireAccess(ctx, actorID, storeID); err != nil {
		return domain.Store{}, err
	}
	return s.findStore(ctx, s.db, storeID)
}

func (s *service) CreateBankAccount(ctx context.Context, actorID snowflake.ID, storeID snowflake.ID, req domain.CreateBankAccountRequest) (domain.BankAccount, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.BankAccount{}, domain.ErrInvalidAccountName
	}
	if err := s.requireAccess(ctx, actorID, storeID); err != nil {
		return domain.BankAccount{}, err
	}
	if _, err := s.findStore(ctx, s.db, storeID); err != nil {
		return domain.BankAccount{}, err
	}

	now := s.clock.Now().UTC()
	account := domain.BankAccount{
		ID:            s.genID.Generate(),
		StoreID:       storeID,
		Name:          name,
		AccountNumber: strings.TrimSpace(req.AccountNumber),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.db.WithContext(ctx).Create(&account).Error; err != nil {
		return domain.BankAccount{}, err
	}

	s.audit(ctx, storeID, actorID, "bank_account.created", "bank_account", account.ID, map[string]any{
		"name": account.Name,
	})

	return account, nil
}

func (s *service) ListBankAccounts(ctx context.Context, actorID snowflake.ID, storeID snowflake.ID) ([]domain.BankAccount, error) {
	if err := s.requireAccess(ctx, actorID, storeID); err != nil {
		return nil, err
	}

	var accounts []domain.BankAccount
	err := s.db.WithContext(ctx).
		Where("store_id = ?", storeID).
		Order("name ASC, id ASC").
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *service) findStore(ctx context.Context, conn *gorm.DB, storeID snowflake.ID) (domain.Store, error) {
	var store domain.Store
	err := conn.WithContext(ctx).Where("id = ?", storeID).Take(&store).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Store{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Store{}, err
	}
	return store, nil
}

func (s *service) requireAccess(ctx context.Context, actorID snowflake.ID, storeID snowflake.ID) error {
	if storeID == 0 {
		return access.ErrInvalidStore
	}
	ok, err := s.access.CanAccess(ctx, actorID, storeID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrForbidden
	}
	return nil
}

func (s *service) audit(ctx context.Context, storeID snowflake.ID, actorID snowflake.ID, action string, targetType string, targetID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	actorType := string(auditdomain.ActorTypeUser)
	var actor *string
	if actorID == access.SystemActor {
		actorType = string(auditdomain.ActorTypeSystem)
	} else {
		id := actorID.String()
		actor = &id
	}
	target := targetID.String()
	if err := s.auditSvc.AuditLog(ctx, &storeID, actorType, actor, action, targetType, &target, metadata); err != nil {
		logger.WithContext(ctx, s.log).Warn("failed to write store audit log",
			zap.String("action", action),
			zap.Error(err),
		)
	}
}
