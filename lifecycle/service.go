// Package lifecycle drives borrow and return requests through their states.
// Every transition commits together with its ledger movement and outbox row.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"lablink/apperr"
	"lablink/db"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Authorizer is the capability check consulted before staff transitions.
type Authorizer interface {
	CanApprove(ctx context.Context, actorID, departmentID string) (bool, error)
}

type Service struct {
	repo   *db.Repo
	auth   Authorizer
	v      *validator.Validate
	log    *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(repo *db.Repo, auth Authorizer, log *slog.Logger, opts ...Option) *Service {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	s := &Service{
		repo:   repo,
		auth:   auth,
		v:      v,
		log:    log,
		tracer: otel.Tracer("lablink/lifecycle"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) validate(in any) error {
	err := s.v.Struct(in)
	var ves validator.ValidationErrors
	if errors.As(err, &ves) && len(ves) > 0 {
		fe := ves[0]
		if fe.Param() != "" {
			return apperr.Validationf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
		}
		return apperr.Validationf("%s failed %s", fe.Field(), fe.Tag())
	}
	return err
}

func (s *Service) authorize(ctx context.Context, actorID, departmentID string) error {
	ok, err := s.auth.CanApprove(ctx, actorID, departmentID)
	if err != nil {
		return apperr.Unavailable("access control", err)
	}
	if !ok {
		return apperr.Forbiddenf("not allowed to act on this department's requests")
	}
	return nil
}

func (s *Service) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "lifecycle."+name, trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.kind", string(apperr.KindOf(err))))
	}
	span.End()
}
