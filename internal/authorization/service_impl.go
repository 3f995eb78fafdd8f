package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

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
	ObjectInvoice   = "invoice"
	ObjectTimesheet = "timesheet"
	ObjectQueue     = "queue"
	ObjectAudit     = "audit"
	ObjectClient    = "client"
)

const (
	ActionInvoiceGenerate    = "invoice.generate"
	ActionInvoiceView        = "invoice.view"
	ActionInvoiceApprove     = "invoice.approve"
	ActionInvoiceRecalculate = "invoice.recalculate"
	ActionInvoiceUpdate      = "invoice.update"
	ActionInvoiceVoid        = "invoice.void"

	ActionTimesheetCreate  = "timesheet.create"
	ActionTimesheetUpdate  = "timesheet.update"
	ActionTimesheetApprove = "timesheet.approve"
	ActionTimesheetDelete  = "timesheet.delete"
	ActionTimesheetView    = "timesheet.view"

	ActionQueueView     = "queue.view"
	ActionQueueDispatch = "queue.dispatch"
	ActionQueueRemove   = "queue.remove"
	ActionQueueRequeue  = "queue.requeue"
	ActionQueueRecover  = "queue.recover"

	ActionClientManage = "client.manage"
	ActionClientView   = "client.view"

	ActionAuditView = "audit.view"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	enforcer *casbin.SyncedEnforcer
}

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
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		genID:    p.GenID,
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) CanPerform(ctx context.Context, userID, action string) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, ErrInvalidActor
	}
	action = strings.TrimSpace(action)
	object, ok := objectFor(action)
	if !ok {
		return false, ErrInvalidAction
	}

	role, err := s.roleForUser(ctx, userID)
	if err != nil {
		return false, err
	}
	if role == "" {
		return false, nil
	}

	subject := "user:" + userID
	if err := s.ensureGrouping(subject, roleName(role)); err != nil {
		return false, err
	}
	return s.enforcer.Enforce(subject, object, action)
}

func (s *ServiceImpl) Authorize(ctx context.Context, userID, action string) error {
	allowed, err := s.CanPerform(ctx, userID, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("capability denied", zap.String("user_id", userID), zap.String("action", action))
		return ErrForbidden
	}
	return nil
}

// AssignRole records the practice role for a user, replacing any previous one.
func (s *ServiceImpl) AssignRole(ctx context.Context, userID, role string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrInvalidActor
	}
	role = strings.ToLower(strings.TrimSpace(role))
	switch role {
	case RoleAdmin, RoleBiller, RoleProvider, RoleSystem:
	default:
		return fmt.Errorf("unknown role %q", role)
	}

	return s.db.WithContext(ctx).Exec(
		`INSERT INTO practice_members (id, user_id, role, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET role = excluded.role`,
		s.genID.Generate(),
		userID,
		role,
		time.Now().UTC(),
	).Error
}

func (s *ServiceImpl) roleForUser(ctx context.Context, userID string) (string, error) {
	if userID == RoleSystem {
		return RoleSystem, nil
	}
	var row struct {
		Role string `gorm:"column:role"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT role FROM practice_members WHERE user_id = ? LIMIT 1`,
		userID,
	).Scan(&row).Error; err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(row.Role)), nil
}

func (s *ServiceImpl) ensureGrouping(subject, role string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == role {
			continue
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(rule[0], rule[1]); err != nil {
			return err
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, role)
	if err != nil || has {
		return err
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, role)
	return err
}

func roleName(role string) string {
	return "role:" + role
}

func objectFor(action string) (string, bool) {
	object, _, found := strings.Cut(action, ".")
	if !found || object == "" {
		return "", false
	}
	switch object {
	case ObjectInvoice, ObjectTimesheet, ObjectQueue, ObjectAudit, ObjectClient:
		return object, true
	}
	return "", false
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	all := []string{
		ActionInvoiceGenerate, ActionInvoiceView, ActionInvoiceApprove, ActionInvoiceRecalculate,
		ActionInvoiceUpdate, ActionInvoiceVoid,
		ActionTimesheetCreate, ActionTimesheetUpdate, ActionTimesheetApprove, ActionTimesheetDelete,
		ActionTimesheetView,
		ActionQueueView, ActionQueueDispatch, ActionQueueRemove, ActionQueueRequeue, ActionQueueRecover,
		ActionClientManage, ActionClientView,
		ActionAuditView,
	}

	grants := map[string][]string{
		RoleAdmin: all,
		RoleBiller: {
			ActionInvoiceGenerate, ActionInvoiceView, ActionInvoiceApprove, ActionInvoiceRecalculate,
			ActionInvoiceUpdate,
			ActionTimesheetView, ActionTimesheetApprove,
			ActionQueueView, ActionQueueDispatch, ActionQueueRemove, ActionQueueRequeue,
			ActionClientManage, ActionClientView,
		},
		RoleProvider: {
			ActionTimesheetCreate, ActionTimesheetUpdate, ActionTimesheetDelete, ActionTimesheetView,
			ActionClientView,
		},
		RoleSystem: {
			ActionInvoiceGenerate, ActionInvoiceView,
			ActionQueueView, ActionQueueDispatch, ActionQueueRecover,
		},
	}

	for role, actions := range grants {
		for _, action := range actions {
			object, _ := objectFor(action)
			if _, err := enforcer.AddPolicy(roleName(role), object, action); err != nil {
				return err
			}
		}
	}
	_, err := enforcer.AddGroupingPolicy("user:"+RoleSystem, roleName(RoleSystem))
	return err
}
