package access

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectStorePayment = "store_payment"
	ActionManage       = "manage"

	RoleOwner   = "owner"
	RoleManager = "manager"
	RoleClerk   = "clerk"
)

// SystemActor is always allowed; background jobs use it.
const SystemActor snowflake.ID = 0

var (
	ErrInvalidStore = errors.New("invalid_store")
	ErrInvalidRole  = errors.New("invalid_role")
)

// Service answers whether an actor may manage payments of a store.
type Service interface {
	CanAccess(ctx context.Context, actorID snowflake.ID, storeID snowflake.ID) (bool, error)
	GrantStoreRole(ctx context.Context, userID snowflake.ID, storeID snowflake.ID, role string) error
	RevokeStoreRole(ctx context.Context, userID snowflake.ID, storeID snowflake.ID, role string) error
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer builds an enforcer whose grouping rows persist through the gorm
// adapter in casbin_rule.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

// NewMemoryEnforcer builds an enforcer without persistence.
func NewMemoryEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("access.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) CanAccess(ctx context.Context, actorID snowflake.ID, storeID snowflake.ID) (bool, error) {
	if actorID == SystemActor {
		return true, nil
	}
	if storeID == 0 {
		return false, ErrInvalidStore
	}

	allowed, err := s.enforcer.Enforce(subject(actorID), domain(storeID), ObjectStorePayment, ActionManage)
	if err != nil {
		return false, err
	}
	if !allowed {
		s.log.Debug("store access denied",
			zap.String("actor_id", actorID.String()),
			zap.String("store_id", storeID.String()),
		)
	}
	return allowed, nil
}

func (s *ServiceImpl) GrantStoreRole(ctx context.Context, userID snowflake.ID, storeID snowflake.ID, role string) error {
	roleName, err := normalizeRole(role)
	if err != nil {
		return err
	}
	if storeID == 0 {
		return ErrInvalidStore
	}
	has, err := s.enforcer.HasGroupingPolicy(subject(userID), roleName, domain(storeID))
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject(userID), roleName, domain(storeID))
	return err
}

func (s *ServiceImpl) RevokeStoreRole(ctx context.Context, userID snowflake.ID, storeID snowflake.ID, role string) error {
	roleName, err := normalizeRole(role)
	if err != nil {
		return err
	}
	if storeID == 0 {
		return ErrInvalidStore
	}
	_, err = s.enforcer.RemoveGroupingPolicy(subject(userID), roleName, domain(storeID))
	return err
}

func subject(userID snowflake.ID) string {
	return fmt.Sprintf("user:%s", userID.String())
}

func domain(storeID snowflake.ID) string {
	return fmt.Sprintf("store:%s", storeID.String())
}

func normalizeRole(role string) (string, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	switch role {
	case RoleOwner, RoleManager, RoleClerk:
		return "role:" + role, nil
	default:
		return "", ErrInvalidRole
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{"role:owner", ObjectStorePayment, ActionManage},
		{"role:manager", ObjectStorePayment, ActionManage},
		// Clerks see payments but cannot split or reimburse them.
		{"role:clerk", ObjectStorePayment, "view"},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
