package auth

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventRegistered     ActivityEventType = "auth.registered"
	ActivityEventLoginSuccess   ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure   ActivityEventType = "auth.login.failure"
	ActivityEventTokenRefreshed ActivityEventType = "auth.token.refreshed"
	ActivityEventLogout         ActivityEventType = "auth.logout"
	ActivityEventPasswordChange ActivityEventType = "auth.password.changed"

	ActivityEventFamilyCreated   ActivityEventType = "family.created"
	ActivityEventFamilyJoined    ActivityEventType = "family.joined"
	ActivityEventFamilyLeft      ActivityEventType = "family.left"
	ActivityEventFamilyDissolved ActivityEventType = "family.dissolved"
	ActivityEventMemberRemoved   ActivityEventType = "family.member.removed"
	ActivityEventFamilyRenamed   ActivityEventType = "family.renamed"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	ActorID    string
	UserID     string
	FamilyID   string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// emitActivity records e, logging failures instead of surfacing them.
func emitActivity(ctx context.Context, sink ActivitySink, logger Logger, e ActivityEvent) {
	if err := sink.Record(ctx, e); err != nil {
		logger.Warn("failed to record activity", "event", string(e.EventType), "error", err)
	}
}
