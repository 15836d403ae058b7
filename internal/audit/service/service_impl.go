package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/storesplit/internal/audit/domain"
	"github.com/smallbiznis/storesplit/internal/audit/masking"
	"github.com/smallbiznis/storesplit/internal/clock"
	"github.com/smallbiznis/storesplit/pkg/db/pagination"
	"github.com/smallbiznis/storesplit/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Values under these metadata keys keep only their last four characters.
var sensitiveKeys = []string{"reimbursement_reference", "reference", "account_number"}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  auditdomain.Repository
	Clock clock.Clock `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  auditdomain.Repository
	clock clock.Clock
}

func NewService(p Params) auditdomain.Service {
	svc := &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: p.Clock,
	}
	if svc.clock == nil {
		svc.clock = clock.SystemClock{}
	}
	return svc
}

// AuditLog appends one entry. A zero store id is stored as NULL.
func (s *Service) AuditLog(ctx context.Context, storeID *snowflake.ID, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	entry, err := s.newEntry(ctx, storeID, actorType, actorID, action, targetType, targetID, metadata)
	if err != nil {
		return err
	}
	if err := s.repo.Insert(ctx, s.db, entry); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", entry.Action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) newEntry(ctx context.Context, storeID *snowflake.ID, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) (*auditdomain.AuditLog, error) {
	action = strings.TrimSpace(action)
	if action == "" {
		return nil, auditdomain.ErrInvalidAction
	}
	if storeID != nil && *storeID == 0 {
		storeID = nil
	}

	entry := &auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		StoreID:    storeID,
		ActorType:  orDefault(actorType, string(auditdomain.ActorTypeSystem)),
		ActorID:    trimmedOrNil(actorID),
		Action:     action,
		TargetType: orDefault(targetType, "unknown"),
		TargetID:   trimmedOrNil(targetID),
		CreatedAt:  s.clock.Now().UTC(),
	}
	if masked := masking.MaskFields(metadata, sensitiveKeys...); masked != nil {
		entry.Metadata = datatypes.JSONMap(masked)
	}
	if cid := correlation.FromContext(ctx); cid != "" {
		entry.CorrelationID = &cid
	}
	return entry, nil
}

// List pages a store's trail newest first. Page tokens encode the last
// row's (created_at, id).
func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	var resp auditdomain.ListAuditLogResponse
	if req.StoreID == 0 {
		return resp, auditdomain.ErrInvalidStore
	}
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return resp, auditdomain.ErrInvalidTimeRange
	}
	cursor, err := decodeCursor(req.PageToken)
	if err != nil {
		return resp, err
	}

	limit := req.Limit()
	rows, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		StoreID:    req.StoreID,
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		ActorType:  req.ActorType,
		ActorID:    req.ActorID,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		Cursor:     cursor,
		Limit:      limit,
	})
	if err != nil {
		return resp, err
	}

	if info := pagination.BuildCursorPageInfo(rows, limit, encodeCursor); info != nil {
		resp.PageInfo = *info
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}

	resp.AuditLogs = make([]auditdomain.AuditLog, 0, len(rows))
	for _, row := range rows {
		if row != nil {
			resp.AuditLogs = append(resp.AuditLogs, *row)
		}
	}
	return resp, nil
}

func decodeCursor(token string) (*auditdomain.AuditCursor, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	raw, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil, auditdomain.ErrInvalidPageToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, raw.CreatedAt)
	if err != nil {
		return nil, auditdomain.ErrInvalidPageToken
	}
	id, err := snowflake.ParseString(strings.TrimSpace(raw.ID))
	if err != nil || id == 0 {
		return nil, auditdomain.ErrInvalidPageToken
	}
	return &auditdomain.AuditCursor{ID: id, CreatedAt: createdAt}, nil
}

func encodeCursor(row *auditdomain.AuditLog) string {
	token, err := pagination.EncodeCursor(pagination.Cursor{
		ID:        row.ID.String(),
		CreatedAt: row.CreatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return ""
	}
	return token
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}
