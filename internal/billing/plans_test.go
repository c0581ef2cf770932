package billing

import (
	"testing"

	"shopimport/internal/types"
)

func TestNewCatalog(t *testing.T) {
	c := NewCatalog()
	if c == nil {
		t.Fatal("NewCatalog returned nil")
	}
	if len(c.All()) != 3 {
		t.Fatalf("expected 3 plans, got %d", len(c.All()))
	}
}

func TestGet_KnownPlans(t *testing.T) {
	c := NewCatalog()

	tests := []struct {
		id    types.PlanID
		price float64
		quota int
	}{
		{types.PlanFree, 0.00, 20},
		{types.PlanStandard, 9.99, 500},
		{types.PlanPro, 19.99, types.UnlimitedQuota},
	}

	for _, tt := range tests {
		p, ok := c.Get(tt.id)
		if !ok {
			t.Errorf("Get(%s): not found", tt.id)
			continue
		}
		if p.Price != tt.price {
			t.Errorf("%s: Price = %.2f, want %.2f", tt.id, p.Price, tt.price)
		}
		if p.ProductQuota != tt.quota {
			t.Errorf("%s: ProductQuota = %d, want %d", tt.id, p.ProductQuota, tt.quota)
		}
		if p.Interval != BillingInterval {
			t.Errorf("%s: Interval = %v, want %v", tt.id, p.Interval, BillingInterval)
		}
	}
}

func TestGet_UnknownPlan(t *testing.T) {
	c := NewCatalog()
	if _, ok := c.Get(types.PlanID("ULTIMATE")); ok {
		t.Error("Get(ULTIMATE): expected not found")
	}
	if _, ok := c.Get(types.PlanID("")); ok {
		t.Error("Get(\"\"): expected not found")
	}
}

func TestMatchPrice(t *testing.T) {
	c := NewCatalog()

	tests := []struct {
		name    string
		amount  float64
		wantID  types.PlanID
		matched bool
	}{
		{"exact standard", 9.99, types.PlanStandard, true},
		{"exact pro", 19.99, types.PlanPro, true},
		{"exact free", 0.00, types.PlanFree, true},
		{"standard within tolerance below", 9.98, types.PlanStandard, true},
		{"standard within tolerance above", 10.00, types.PlanStandard, true},
		{"pro within tolerance", 19.98, types.PlanPro, true},
		// 10.01-9.99 is slightly under 0.02 in float64, so it matches.
		{"boundary amount matches under float comparison", 10.01, types.PlanStandard, true},
		{"beyond tolerance no match", 10.02, "", false},
		{"beyond tolerance below no match", 9.96, "", false},
		{"nothing close", 5.00, "", false},
		{"negative amount no match", -9.99, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := c.MatchPrice(tt.amount)
			if ok != tt.matched {
				t.Fatalf("MatchPrice(%.2f): matched = %v, want %v", tt.amount, ok, tt.matched)
			}
			if ok && p.ID != tt.wantID {
				t.Errorf("MatchPrice(%.2f): plan = %s, want %s", tt.amount, p.ID, tt.wantID)
			}
		})
	}
}

func TestMatchPrice_SmallAmountNeverResolvesFree(t *testing.T) {
	// 0.01 is within tolerance of FREE's 0.00 price; that is the only amount
	// besides 0.00 that may resolve to FREE.
	c := NewCatalog()
	p, ok := c.MatchPrice(0.01)
	if !ok || p.ID != types.PlanFree {
		t.Fatalf("MatchPrice(0.01) = (%v, %v), want FREE", p.ID, ok)
	}

	if _, ok := c.MatchPrice(0.05); ok {
		t.Error("MatchPrice(0.05): expected no match")
	}
}

func TestFree(t *testing.T) {
	c := NewCatalog()
	free := c.Free()
	if free.ID != types.PlanFree {
		t.Fatalf("Free() returned %s", free.ID)
	}
	if free.Unlimited() {
		t.Error("free plan must not be unlimited")
	}
}

func TestAll_ReturnsCopy(t *testing.T) {
	c := NewCatalog()
	plans := c.All()
	plans[0].Price = 99.99

	if c.Free().Price != 0.00 {
		t.Error("mutating All() result leaked into the catalog")
	}
}
