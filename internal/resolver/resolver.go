package resolver

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwheet/MovieHound/internal/magnet"
	"github.com/jwheet/MovieHound/internal/metrics"
)

// Item is one pending catalog entry to resolve.
type Item struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Year       string `json:"year"`
	ExternalID string `json:"externalId,omitempty"` // IMDb id, empty when unknown
	CatalogID  string `json:"catalogId"`            // TMDB id
}

// Query is what a tier passes to its adapter.
type Query struct {
	Item
	Quality      Quality
	ForceQuality bool
}

// Adapter is one candidate source. Implementations return
// source.ErrSourceUnavailable-wrapped errors for network or parse failures.
type Adapter interface {
	Search(ctx context.Context, q Query) ([]Candidate, error)
}

// AdapterFunc adapts a plain function to Adapter.
type AdapterFunc func(ctx context.Context, q Query) ([]Candidate, error)

func (f AdapterFunc) Search(ctx context.Context, q Query) ([]Candidate, error) { return f(ctx, q) }

// CatalogLookup resolves an external id to a canonical title and year.
type CatalogLookup interface {
	Lookup(ctx context.Context, externalID string) (title, year string, err error)
}

// Tier is one step of the fallback chain.
type Tier struct {
	Name    string
	Adapter Adapter

	// PaceKey groups tiers that hit the same upstream. Defaults to Name.
	PaceKey string
	// Interval is the pause after each call, and the minimum gap between
	// the end of one call to PaceKey and the start of the next.
	Interval time.Duration

	// RequiresExternalID skips the tier for items without one.
	RequiresExternalID bool
	// UseCatalogTitle searches with the looked-up title instead of the row's.
	UseCatalogTitle bool

	Select SelectFunc
}

func (t Tier) paceKey() string {
	if t.PaceKey != "" {
		return t.PaceKey
	}
	return t.Name
}

// Outcome is the result of one resolution attempt.
type Outcome struct {
	ItemID    string     `json:"itemId"`
	Found     bool       `json:"found"`
	Candidate *Candidate `json:"candidate,omitempty"`
	Tier      string     `json:"tier,omitempty"`
}

// catalogPaceKey is the pacer lane of the catalog lookup.
const catalogPaceKey = "catalog"

// Resolver walks tiers in order and stops at the first acceptable candidate.
// Every upstream call, the catalog lookup included, is followed by a pause
// of its interval before the resolution goes on. The pacer keeps calls to
// one upstream sequential and spaced across callers, so the resolver is safe
// for concurrent use.
type Resolver struct {
	tiers          []Tier
	lookup         CatalogLookup
	lookupInterval time.Duration
	pacer          *Pacer
	metrics        *metrics.Metrics
	logger         zerolog.Logger
}

type Option func(*Resolver)

func WithMetrics(m *metrics.Metrics) Option { return func(r *Resolver) { r.metrics = m } }
func WithPacer(p *Pacer) Option             { return func(r *Resolver) { r.pacer = p } }

// WithCatalogLookup sets the title lookup used by UseCatalogTitle tiers and
// the pause that follows each lookup.
func WithCatalogLookup(l CatalogLookup, interval time.Duration) Option {
	return func(r *Resolver) {
		r.lookup = l
		r.lookupInterval = interval
	}
}

func New(tiers []Tier, logger zerolog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		tiers:  tiers,
		pacer:  NewPacer(nil),
		logger: logger.With().Str("component", "resolver").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Tiers returns the tier names in priority order.
func (r *Resolver) Tiers() []string {
	names := make([]string, len(r.tiers))
	for i, t := range r.tiers {
		names[i] = t.Name
	}
	return names
}

// Resolve tries each tier in order. Exhausting all tiers is a normal outcome
// with Found false. The only error returned is ctx's.
func (r *Resolver) Resolve(ctx context.Context, item Item, want Quality, force bool) (Outcome, error) {
	out := Outcome{ItemID: item.ID}
	catalog, catalogOK := item, true
	looked := false

	for _, tier := range r.tiers {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if tier.RequiresExternalID && item.ExternalID == "" {
			continue
		}

		q := Query{Item: item, Quality: want, ForceQuality: force}
		if tier.UseCatalogTitle {
			if !looked {
				var err error
				if catalog, catalogOK, err = r.catalogItem(ctx, item); err != nil {
					return out, err
				}
				looked = true
			}
			if tier.RequiresExternalID && !catalogOK {
				r.logger.Debug().Str("item", item.Title).Str("tier", tier.Name).Msg("No catalog title, skipping tier")
				continue
			}
			q.Item = catalog
		}

		cand, ok, err := r.try(ctx, tier, q)
		if err != nil {
			return out, err
		}
		if !ok {
			continue
		}

		out.Found = true
		out.Candidate = &cand
		out.Tier = tier.Name
		r.metrics.Resolved(tier.Name)
		r.logger.Info().Str("item", item.Title).Str("tier", tier.Name).Str("quality", string(cand.Quality)).Msg("Resolved item")
		return out, nil
	}

	r.metrics.Resolved("")
	r.logger.Debug().Str("item", item.Title).Msg("All tiers exhausted")
	return out, nil
}

// paced runs fn on key's lane and then pauses for interval. Only waiting for
// the lane can fail; a cancelled pause is noticed by the caller's next
// context check.
func (r *Resolver) paced(ctx context.Context, key string, interval time.Duration, fn func()) error {
	release, err := r.pacer.Acquire(ctx, key, interval)
	if err != nil {
		return err
	}
	fn()
	release()
	_ = r.pacer.Sleep(ctx, interval)
	return nil
}

func (r *Resolver) try(ctx context.Context, tier Tier, q Query) (Candidate, bool, error) {
	var cands []Candidate
	var err error
	if werr := r.paced(ctx, tier.paceKey(), tier.Interval, func() {
		r.metrics.TierAttempt(tier.Name)
		cands, err = tier.Adapter.Search(ctx, q)
	}); werr != nil {
		return Candidate{}, false, werr
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return Candidate{}, false, ctxErr
		}
		r.metrics.TierFailure(tier.Name)
		r.logger.Warn().Err(err).Str("tier", tier.Name).Str("item", q.Title).Msg("Tier failed, trying next")
		return Candidate{}, false, nil
	}

	valid := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if err := magnet.Validate(c.Locator); err != nil {
			r.logger.Debug().Err(err).Str("tier", tier.Name).Msg("Dropping candidate with bad locator")
			continue
		}
		if c.SourceID == "" {
			c.SourceID = tier.Name
		}
		valid = append(valid, c)
	}

	sel := tier.Select
	if sel == nil {
		sel = SelectBestCandidate
	}
	c, ok := sel(valid, q.Quality, q.ForceQuality)
	return c, ok, nil
}

// catalogItem replaces the row's title and year with the catalog's. ok is
// false when a lookup was attempted and failed; the row is returned as is.
func (r *Resolver) catalogItem(ctx context.Context, item Item) (Item, bool, error) {
	if r.lookup == nil || item.ExternalID == "" {
		return item, true, nil
	}

	var title, year string
	var err error
	if werr := r.paced(ctx, catalogPaceKey, r.lookupInterval, func() {
		title, year, err = r.lookup.Lookup(ctx, item.ExternalID)
	}); werr != nil {
		return item, false, werr
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return item, false, ctxErr
		}
		r.logger.Debug().Err(err).Str("externalId", item.ExternalID).Msg("Catalog lookup failed, using row title")
		return item, false, nil
	}
	if strings.TrimSpace(title) != "" {
		item.Title = title
	}
	if year != "" {
		item.Year = year
	}
	return item, true, nil
}
