package security

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/simplesurance/automerger/internal/logfields"
)

const loggerName = "security"

// Service runs functions in scoped authorization contexts.
// Begin and end of every scope are logged as audit events.
type Service struct {
	logger *zap.Logger
}

func NewService() *Service {
	return &Service{
		logger: zap.L().Named(loggerName),
	}
}

// WithPermission runs fn with a context that grants perm.
// An impersonation of the parent context is not inherited.
func (s *Service) WithPermission(ctx context.Context, perm Permission, reason string, fn func(context.Context) error) error {
	if reason == "" {
		return errors.New("reason is empty")
	}

	return s.run(ctx, &Authorization{Permission: perm, Reason: reason}, fn)
}

// Impersonating runs fn with a context in which operations are performed as
// principal.
// The elevated permission of the parent context is kept for operations that
// do not act on behalf of the principal.
func (s *Service) Impersonating(ctx context.Context, principal *Principal, reason string, fn func(context.Context) error) error {
	if principal == nil || principal.Login == "" {
		return errors.New("principal is empty")
	}

	if reason == "" {
		return errors.New("reason is empty")
	}

	return s.run(ctx, &Authorization{
		Permission:   FromContext(ctx).Permission,
		Impersonated: principal,
		Reason:       reason,
	}, fn)
}

func (s *Service) run(ctx context.Context, auth *Authorization, fn func(context.Context) error) (err error) {
	logger := s.logger.With(
		zap.String("security.permission", auth.Permission.String()),
		zap.String("security.reason", auth.Reason),
	)
	if auth.Impersonated != nil {
		logger = logger.With(zap.String("security.impersonated", auth.Impersonated.Login))
	}

	start := time.Now()
	logger.Debug("authorization context entered", logfields.Event("authorization_context_entered"))

	defer func() {
		logger.Debug(
			"authorization context released",
			logfields.Event("authorization_context_released"),
			zap.Duration("duration", time.Since(start)),
			zap.Bool("success", err == nil),
		)
	}()

	return fn(ContextWithAuthorization(ctx, auth))
}
