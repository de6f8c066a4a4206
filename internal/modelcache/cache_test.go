package modelcache_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/dashforge/dashforge/agent-core/internal/modelcache"
	"github.com/dashforge/dashforge/agent-core/pkg/models"
)

type fakeLister struct {
	calls int
	list  []models.ModelDescriptor
	err   error
}

func (f *fakeLister) ListModels(ctx context.Context) ([]models.ModelDescriptor, error) {
	f.calls++
	return f.list, f.err
}

// movableClock is a manually advanced time source.
type movableClock struct {
	at time.Time
}

func (c *movableClock) now() time.Time          { return c.at }
func (c *movableClock) advance(d time.Duration) { c.at = c.at.Add(d) }

func price(in, out float64) *models.ModelPrice {
	return &models.ModelPrice{Input: in, Output: out}
}

func TestModels_ServesSnapshotWithinTTL(t *testing.T) {
	clock := &movableClock{at: time.Unix(1_700_000_000, 0)}
	lister := &fakeLister{list: []models.ModelDescriptor{{ID: "gpt-4o", Pricing: price(2.5, 10)}}}
	cache := modelcache.New(lister, 5*time.Minute, modelcache.WithClock(clock.now))

	ctx := context.Background()
	cache.Models(ctx)
	clock.advance(4 * time.Minute)
	got := cache.Models(ctx)

	if lister.calls != 1 {
		t.Errorf("lister called %d times within the TTL window, want 1", lister.calls)
	}
	if len(got) != 1 || got[0].ID != "gpt-4o" {
		t.Errorf("Models() = %v, want cached snapshot", got)
	}
}

func TestModels_RefreshesAfterExpiry(t *testing.T) {
	clock := &movableClock{at: time.Unix(1_700_000_000, 0)}
	lister := &fakeLister{list: []models.ModelDescriptor{{ID: "a"}}}
	cache := modelcache.New(lister, 5*time.Minute, modelcache.WithClock(clock.now))

	ctx := context.Background()
	cache.Models(ctx)
	clock.advance(5*time.Minute + time.Second)
	lister.list = []models.ModelDescriptor{{ID: "b"}}
	got := cache.Models(ctx)

	if lister.calls != 2 {
		t.Errorf("lister called %d times across an expired window, want 2", lister.calls)
	}
	if len(got) != 1 || got[0].ID != "b" {
		t.Errorf("Models() = %v, want refreshed snapshot", got)
	}
}

func TestModels_FailureCachesEmptyForFullWindow(t *testing.T) {
	clock := &movableClock{at: time.Unix(1_700_000_000, 0)}
	lister := &fakeLister{err: errors.New("pricing endpoint down")}
	cache := modelcache.New(lister, 5*time.Minute, modelcache.WithClock(clock.now))

	ctx := context.Background()
	if got := cache.Models(ctx); len(got) != 0 {
		t.Errorf("Models() after failure = %v, want empty", got)
	}

	// Repeated lookups within the window must not hammer the endpoint.
	clock.advance(time.Minute)
	cache.Models(ctx)
	cache.Models(ctx)
	if lister.calls != 1 {
		t.Errorf("lister called %d times after a failed refresh, want 1 per TTL window", lister.calls)
	}

	// After the window the failure is retried and can recover.
	clock.advance(5 * time.Minute)
	lister.err = nil
	lister.list = []models.ModelDescriptor{{ID: "back"}}
	if got := cache.Models(ctx); len(got) != 1 || got[0].ID != "back" {
		t.Errorf("Models() after recovery = %v, want refreshed list", got)
	}
}

func TestComputePricing(t *testing.T) {
	lister := &fakeLister{list: []models.ModelDescriptor{
		{ID: "gpt-4o", Pricing: price(2.5, 10)},
		{ID: "free-model"},
	}}
	cache := modelcache.New(lister, time.Minute)
	ctx := context.Background()

	got := cache.ComputePricing(ctx, "gpt-4o", 1_000_000, 500_000)
	if got == nil {
		t.Fatal("ComputePricing() = nil for a priced model")
	}
	wantInput, wantOutput := 2.5, 5.0
	if !closeTo(got.Input, wantInput) || !closeTo(got.Output, wantOutput) || !closeTo(got.Total, wantInput+wantOutput) {
		t.Errorf("ComputePricing() = %+v, want input=%v output=%v total=%v", got, wantInput, wantOutput, wantInput+wantOutput)
	}

	if got := cache.ComputePricing(ctx, "free-model", 1000, 1000); got != nil {
		t.Errorf("ComputePricing() = %+v for a model without unit prices, want nil", got)
	}
	if got := cache.ComputePricing(ctx, "unknown-model", 1000, 1000); got != nil {
		t.Errorf("ComputePricing() = %+v for an unknown model, want nil", got)
	}
}

func closeTo(got, want float64) bool {
	return math.Abs(got-want) < 1e-9
}

func TestParseModelList(t *testing.T) {
	wrapped := []byte(`{"success": true, "data": [{"id": "gpt-4o", "pricing": {"input": 2.5, "output": 10}}]}`)
	list, err := modelcache.ParseModelList(wrapped)
	if err != nil {
		t.Fatalf("ParseModelList(wrapped) error: %v", err)
	}
	if len(list) != 1 || list[0].ID != "gpt-4o" || list[0].Pricing == nil || list[0].Pricing.Input != 2.5 {
		t.Errorf("ParseModelList(wrapped) = %+v", list)
	}

	bare := []byte(`[{"id": "a"}, {"id": "b"}]`)
	list, err = modelcache.ParseModelList(bare)
	if err != nil {
		t.Fatalf("ParseModelList(bare) error: %v", err)
	}
	if len(list) != 2 || list[1].ID != "b" {
		t.Errorf("ParseModelList(bare) = %+v", list)
	}

	if _, err := modelcache.ParseModelList([]byte(`{"success": false}`)); err == nil {
		t.Error("ParseModelList(unsuccessful wrapper) = nil error, want unrecognized shape")
	}
	if _, err := modelcache.ParseModelList([]byte(`"nope"`)); err == nil {
		t.Error("ParseModelList(scalar) = nil error, want unrecognized shape")
	}
}
