package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/odysseus0/campusfeed/internal/docstore"
	"github.com/odysseus0/campusfeed/internal/model"
)

const (
	MarkerCollection       = "rss_execution_markers"
	markerTimeField        = "lastExecutionTime"
	defaultRefreshInterval = 30 * time.Minute
)

type GateState int

const (
	GateNeverRun GateState = iota
	GateCooling
	GateReady
)

func (s GateState) String() string {
	switch s {
	case GateNeverRun:
		return "never_run"
	case GateCooling:
		return "cooling"
	case GateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// GateDecision is the gate's verdict for one collection. LastRun doubles as
// the freshness cutoff for the upsert and is nil in the NeverRun state.
type GateDecision struct {
	State   GateState
	LastRun *time.Time
}

func (d GateDecision) Allowed() bool {
	return d.State != GateCooling
}

// Gate persists one execution marker per collection and refuses runs closer
// together than the interval.
type Gate struct {
	store    docstore.Store
	interval time.Duration
}

func NewGate(store docstore.Store, interval time.Duration) *Gate {
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	return &Gate{store: store, interval: interval}
}

func (g *Gate) Interval() time.Duration {
	return g.interval
}

// Check reads the marker for src. A missing marker yields NeverRun. A read
// failure or malformed marker also yields NeverRun together with a
// KindMetadata error the caller is expected to log and ignore.
func (g *Gate) Check(ctx context.Context, src model.FeedSource, now time.Time) (GateDecision, error) {
	doc, err := g.store.Get(ctx, MarkerCollection, src.Collection)
	if errors.Is(err, docstore.ErrNotFound) {
		return GateDecision{State: GateNeverRun}, nil
	}
	if err != nil {
		return GateDecision{State: GateNeverRun}, newError(KindMetadata, "read execution marker", err)
	}
	last, ok := doc.Time(markerTimeField)
	if !ok {
		return GateDecision{State: GateNeverRun}, newError(KindMetadata, "read execution marker",
			fmt.Errorf("malformed %s for %s", markerTimeField, src.Collection))
	}
	if now.Sub(last) < g.interval {
		return GateDecision{State: GateCooling, LastRun: &last}, nil
	}
	return GateDecision{State: GateReady, LastRun: &last}, nil
}

// Mark records t as the last execution time of src's collection.
func (g *Gate) Mark(ctx context.Context, src model.FeedSource, t time.Time) error {
	err := g.store.Set(ctx, MarkerCollection, src.Collection, docstore.Document{
		"collectionName": src.Collection,
		markerTimeField:  t.UTC(),
	})
	if err != nil {
		return newError(KindMetadata, "write execution marker", err)
	}
	return nil
}

// Marker returns the stored marker, or ErrNotFound.
func (g *Gate) Marker(ctx context.Context, collection string) (model.ExecutionMarker, error) {
	doc, err := g.store.Get(ctx, MarkerCollection, collection)
	if err != nil {
		return model.ExecutionMarker{}, err
	}
	last, ok := doc.Time(markerTimeField)
	if !ok {
		return model.ExecutionMarker{}, fmt.Errorf("malformed %s for %s", markerTimeField, collection)
	}
	return model.ExecutionMarker{Collection: collection, LastExecutionTime: last}, nil
}
