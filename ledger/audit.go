package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type actorKey struct{}

// SystemActor is recorded when no actor is attached to the context
// (CLI seed, tests).
const SystemActor = "system"

// WithActor attaches the acting user to ctx. The HTTP layer sets it from
// the authenticated token subject.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the acting user or SystemActor.
func ActorFrom(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return SystemActor
}

// Audit object types.
const (
	ObjectAccount         = "account"
	ObjectMember          = "member"
	ObjectSupplier        = "supplier"
	ObjectRevenueType     = "revenue_type"
	ObjectInboundPayment  = "inbound_payment"
	ObjectOutboundPayment = "outbound_payment"
)

// audit appends one entry in the current atomic unit.
func (s *Service) audit(ctx context.Context, st Store, action AuditAction, objectType string, objectID int64, format string, args ...any) error {
	return st.AppendAudit(ctx, AuditEntry{
		ID:          uuid.NewString(),
		Timestamp:   s.now().UTC().Truncate(time.Second),
		Actor:       ActorFrom(ctx),
		Action:      action,
		ObjectType:  objectType,
		ObjectID:    objectID,
		Description: fmt.Sprintf(format, args...),
	})
}

// AuditLog returns audit entries matching filter, newest first.
func (s *Service) AuditLog(ctx context.Context, filter AuditFilter) ([]AuditEntry, error) {
	return s.store.QueryAudit(ctx, filter)
}
