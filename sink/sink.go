// Package sink persists the outcome of an optimization cycle: the
// ranked address file and, optionally, the DNS record pointing at the
// fastest address.
package sink

import (
	"context"
	"fmt"
	"net/netip"

	"go.ntppool.org/common/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"go.ntppool.org/cdnopt/ranking"
)

// Publisher points the managed DNS record at addr.
type Publisher interface {
	Publish(ctx context.Context, addr netip.Addr) error
}

type Sink struct {
	Path      string
	TopK      int
	Publisher Publisher
	UpdateDNS bool
}

type Outcome struct {
	Written   int
	Published bool
	Target    netip.Addr
}

// Persist writes the top entries of list to the artifact and then, if
// enabled and something was reachable, publishes the best address. A
// failed write skips the DNS update.
func (s *Sink) Persist(ctx context.Context, list ranking.List) (Outcome, error) {
	log := logger.FromContext(ctx)
	span := trace.SpanFromContext(ctx)

	out := Outcome{}

	top := list.Top(s.TopK)
	if err := WriteArtifact(s.Path, top); err != nil {
		return out, fmt.Errorf("writing %s: %w", s.Path, err)
	}
	out.Written = len(top)
	log.DebugContext(ctx, "wrote results", "path", s.Path, "count", out.Written)
	span.AddEvent("results written", trace.WithAttributes(attribute.Int("count", out.Written)))

	best, ok := list.Best()
	if !ok {
		log.InfoContext(ctx, "no reachable addresses")
		return out, nil
	}
	out.Target = best.Addr

	if !s.UpdateDNS || s.Publisher == nil {
		return out, nil
	}

	span.AddEvent("publishing", trace.WithAttributes(attribute.String("ip", best.Addr.String())))
	if err := s.Publisher.Publish(ctx, best.Addr); err != nil {
		return out, fmt.Errorf("updating dns to %s: %w", best.Addr, err)
	}
	out.Published = true

	return out, nil
}
