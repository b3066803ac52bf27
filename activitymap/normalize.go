// Package activitymap turns account and family activity events into a flat
// record for audit pipelines.
package activitymap

import (
	"context"
	"strings"
	"time"

	auth "github.com/goliatone/go-family-auth"
)

const (
	// MetadataKeyFamilyID carries the family of a user scoped event.
	MetadataKeyFamilyID = "family_id"
	// MetadataKeySubjectID carries the affected user when it differs from the actor.
	MetadataKeySubjectID = "subject_id"
)

const (
	ObjectTypeUser   = "user"
	ObjectTypeFamily = "family"

	defaultActorID = "system"
)

// Normalized is a transport agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	actorFallback string
	now           func() time.Time
}

// WithActorFallback sets the actor id used when the event has neither an
// actor nor a user.
func WithActorFallback(actorID string) Option {
	return func(o *normalizeOptions) {
		o.actorFallback = strings.TrimSpace(actorID)
	}
}

// WithNow sets the time used for events without OccurredAt.
func WithNow(now func() time.Time) Option {
	return func(o *normalizeOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// Normalize converts an activity event. Family events point at the family,
// account events point at the user. The channel is the verb prefix.
func Normalize(event auth.ActivityEvent, opts ...Option) Normalized {
	options := normalizeOptions{
		actorFallback: defaultActorID,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	verb := string(event.EventType)
	actorID := firstNonEmpty(
		strings.TrimSpace(event.ActorID),
		strings.TrimSpace(event.UserID),
		options.actorFallback,
	)

	metadata := cloneMap(event.Metadata)
	objectType, objectID := ObjectTypeUser, strings.TrimSpace(event.UserID)

	if isFamilyVerb(verb) && event.FamilyID != "" {
		objectType, objectID = ObjectTypeFamily, event.FamilyID
		if event.UserID != "" && event.UserID != actorID {
			metadata = withKey(metadata, MetadataKeySubjectID, event.UserID)
		}
	} else if event.FamilyID != "" {
		metadata = withKey(metadata, MetadataKeyFamilyID, event.FamilyID)
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = options.now()
	}

	return Normalized{
		ActorID:    actorID,
		Verb:       verb,
		ObjectType: objectType,
		ObjectID:   objectID,
		Channel:    channelOf(verb),
		Metadata:   metadata,
		OccurredAt: occurredAt,
	}
}

// Sink returns an ActivitySink passing normalized records to emit.
func Sink(emit func(ctx context.Context, record Normalized) error, opts ...Option) auth.ActivitySink {
	return auth.ActivitySinkFunc(func(ctx context.Context, event auth.ActivityEvent) error {
		return emit(ctx, Normalize(event, opts...))
	})
}

// LoggerSink logs normalized records at info level.
func LoggerSink(logger auth.Logger, opts ...Option) auth.ActivitySink {
	return Sink(func(_ context.Context, r Normalized) error {
		logger.Info("activity",
			"verb", r.Verb,
			"actor_id", r.ActorID,
			"object_type", r.ObjectType,
			"object_id", r.ObjectID,
			"channel", r.Channel,
			"metadata", r.Metadata,
			"at", r.OccurredAt.Format(time.RFC3339),
		)
		return nil
	}, opts...)
}

func isFamilyVerb(verb string) bool {
	return channelOf(verb) == ObjectTypeFamily
}

func channelOf(verb string) string {
	channel, _, _ := strings.Cut(verb, ".")
	return channel
}

func withKey(m map[string]any, key string, value any) map[string]any {
	if m == nil {
		m = map[string]any{}
	}
	if _, exists := m[key]; !exists {
		m[key] = value
	}
	return m
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
