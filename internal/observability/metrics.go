package observability

import (
	"context"
	"errors"

	"github.com/youme-api/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the pairing and auth instruments.
type Metrics struct {
	codesGenerated metric.Int64Counter
	codeCollisions metric.Int64Counter
	linkAttempts   metric.Int64Counter
	unlinks        metric.Int64Counter
	codesExpired   metric.Int64Counter
	authStates     metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var m Metrics
	var errs []error
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		errs = append(errs, err)
		return c
	}
	m.codesGenerated = counter("youme.couple_codes.generated", "Couple codes issued")
	m.codeCollisions = counter("youme.couple_codes.collisions", "Code generations that hit an existing code")
	m.linkAttempts = counter("youme.couple.link_attempts", "Couple code submissions by result")
	m.unlinks = counter("youme.couple.unlinks", "Successful unlinks")
	m.codesExpired = counter("youme.couple_codes.expired", "Codes removed by the stale-code sweep")
	m.authStates = counter("youme.auth.transitions", "Auth state transitions by status")
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Metrics) CodeGenerated(ctx context.Context) { m.codesGenerated.Add(ctx, 1) }

func (m *Metrics) CodeCollision(ctx context.Context) { m.codeCollisions.Add(ctx, 1) }

func (m *Metrics) LinkAttempt(ctx context.Context, result domain.LinkResult) {
	m.linkAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("result", string(result))))
}

func (m *Metrics) Unlinked(ctx context.Context) { m.unlinks.Add(ctx, 1) }

func (m *Metrics) CodesExpired(ctx context.Context, n int) { m.codesExpired.Add(ctx, int64(n)) }

// AuthTransition returns a subscriber that counts auth state transitions.
func (m *Metrics) AuthTransition(ctx context.Context) func(domain.AuthState) {
	return func(st domain.AuthState) {
		m.authStates.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(st.Status))))
	}
}
