package audit

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"usermanager.org/internal/ids"
	"usermanager.org/internal/obs"
)

const defaultWriteTimeout = 5 * time.Second

// Entry is one immutable audit record.
type Entry struct {
	ID          string
	Actor       string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	IsActive    bool
	IsDeleted   bool
}

// ListOptions narrows ListRecent.
type ListOptions struct {
	// IncludeInactive also returns entries flagged inactive or deleted.
	IncludeInactive bool
}

// Store appends and lists audit entries. Entries are never updated or removed.
type Store interface {
	Append(ctx context.Context, e Entry) error
	// ListRecent returns entries newest first, ties broken by descending ID.
	ListRecent(ctx context.Context, opts ListOptions) ([]Entry, error)
}

// Log is the best-effort audit writer used by the auth service.
type Log struct {
	store           Store
	now             func() time.Time
	logger          *slog.Logger
	writeTimeout    time.Duration
	includeInactive bool
}

// Option configures a Log.
type Option func(*Log)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the logger that receives entry mirrors and write failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithWriteTimeout bounds a single append.
func WithWriteTimeout(d time.Duration) Option {
	return func(l *Log) {
		if d > 0 {
			l.writeTimeout = d
		}
	}
}

// WithIncludeInactive makes ListRecent return inactive and deleted entries too.
func WithIncludeInactive(include bool) Option {
	return func(l *Log) { l.includeInactive = include }
}

// New returns a Log writing to store.
func New(store Store, opts ...Option) *Log {
	l := &Log{
		store:        store,
		now:          time.Now,
		logger:       obs.Logger(),
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record appends an entry for actor. It never returns an error: a failed
// write is logged and counted in usermanager_audit_write_failures_total.
// The write ignores cancellation of ctx so a caller that went away cannot
// drop the record of an operation that already happened.
func (l *Log) Record(ctx context.Context, actor, description string) {
	actor = strings.TrimSpace(actor)
	description = strings.TrimSpace(description)
	rid := RequestIDFromContext(ctx)

	if err := l.append(ctx, actor, description); err != nil {
		obs.AuditWriteFailed()
		l.logger.ErrorContext(ctx, "audit write failed",
			slog.String("actor", actor),
			slog.String("description", description),
			slog.String("request_id", rid),
			slog.Any("error", err),
		)
		return
	}
	l.logger.InfoContext(ctx, "audit",
		slog.String("actor", actor),
		slog.String("description", description),
		slog.String("request_id", rid),
	)
}

func (l *Log) append(ctx context.Context, actor, description string) error {
	if l == nil || l.store == nil {
		return errors.New("audit store is not configured")
	}
	if actor == "" || description == "" {
		return errors.New("audit actor and description are required")
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.writeTimeout)
	defer cancel()

	now := l.now().UTC()
	return l.store.Append(ctx, Entry{
		ID:          ids.New(),
		Actor:       actor,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
		IsActive:    true,
	})
}

// ListRecent returns entries newest first.
func (l *Log) ListRecent(ctx context.Context) ([]Entry, error) {
	if l == nil || l.store == nil {
		return nil, errors.New("audit store is not configured")
	}
	return l.store.ListRecent(ctx, ListOptions{IncludeInactive: l.includeInactive})
}

// Visible reports whether e is returned by a listing with opts.
func Visible(e Entry, opts ListOptions) bool {
	return opts.IncludeInactive || (e.IsActive && !e.IsDeleted)
}

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id attached by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}
