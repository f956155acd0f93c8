package fund

import (
	"errors"
	"math"
	"testing"

	"venue-core/internal/errs"
	"venue-core/internal/ledger"
	"venue-core/pkg/catalog"
)

func testFunds() []catalog.Fund {
	return []catalog.Fund{
		{ID: "FUND_K8", Name: "K8 Growth", InitialNAV: 1.2345, DailyVol: 0.02, MinInvestment: 100, RedemptionFee: 0.005},
	}
}

func newTestEngine() (*Engine, *ledger.Ledger) {
	led := ledger.NewLedger(20000)
	return NewEngine(testFunds(), led, nil), led
}

func TestSubscribeIssuesShares(t *testing.T) {
	eng, led := newTestEngine()

	h, err := eng.Subscribe("u1", "FUND_K8", 10000)
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}

	wantShares := 10000 / 1.2345
	if math.Abs(h.Shares-wantShares) > 1e-9 {
		t.Fatalf("shares = %v, expected %v", h.Shares, wantShares)
	}
	if got := led.Account("u1").CashBalance; got != 10000 {
		t.Fatalf("balance after subscribe = %v, expected 10000", got)
	}
}

func TestSubscribeValidation(t *testing.T) {
	eng, led := newTestEngine()

	tests := []struct {
		name   string
		fundID string
		amount float64
	}{
		{"zero amount", "FUND_K8", 0},
		{"negative amount", "FUND_K8", -5},
		{"unknown fund", "NOPE", 1000},
		{"below minimum", "FUND_K8", 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := eng.Subscribe("u1", tt.fundID, tt.amount); err == nil {
				t.Fatal("expected rejection")
			}
		})
	}
	if got := led.Account("u1").CashBalance; got != 20000 {
		t.Fatalf("balance after rejections = %v, expected 20000", got)
	}
}

func TestSubscribeRejectsInsufficientBalance(t *testing.T) {
	led := ledger.NewLedger(500)
	eng := NewEngine(testFunds(), led, nil)

	_, err := eng.Subscribe("u1", "FUND_K8", 1000)
	var ib *errs.InsufficientBalanceError
	if !errors.As(err, &ib) {
		t.Fatalf("error = %v, expected InsufficientBalanceError", err)
	}
}

// Subscribe then immediately redeem everything at an unchanged NAV returns
// amount * (1 - redemptionFee).
func TestRedeemRoundTrip(t *testing.T) {
	eng, led := newTestEngine()

	h, err := eng.Subscribe("u1", "FUND_K8", 10000)
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}

	proceeds, err := eng.Redeem("u1", "FUND_K8", h.Shares)
	if err != nil {
		t.Fatalf("Redeem returned error: %v", err)
	}

	want := 10000 * (1 - 0.005)
	if math.Abs(proceeds-want) > 1e-6 {
		t.Fatalf("proceeds = %v, expected %v", proceeds, want)
	}
	if math.Abs(led.Account("u1").CashBalance-(10000+want)) > 1e-6 {
		t.Fatalf("balance = %v, expected %v", led.Account("u1").CashBalance, 10000+want)
	}

	// Fully redeemed holding is removed.
	if holdings := eng.Holdings("u1"); len(holdings) != 0 {
		t.Fatalf("holdings after full redeem = %v, expected none", holdings)
	}
}

func TestRedeemBeyondHoldingRejected(t *testing.T) {
	eng, _ := newTestEngine()

	h, err := eng.Subscribe("u1", "FUND_K8", 1000)
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}

	if _, err := eng.Redeem("u1", "FUND_K8", h.Shares*2); err == nil {
		t.Fatal("over-redeem succeeded")
	}
	if _, err := eng.Redeem("u2", "FUND_K8", 1); err == nil {
		t.Fatal("redeem with no holding succeeded")
	}
}

func TestAdvanceNAVStaysPositiveAndMonotonic(t *testing.T) {
	eng, _ := newTestEngine()

	var lastUpdated = map[string]int64{}
	for i := 0; i < 1000; i++ {
		eng.AdvanceNAV()
		for _, f := range eng.Funds() {
			if f.NAV <= 0 {
				t.Fatalf("NAV for %s went non-positive: %v", f.ID, f.NAV)
			}
			ts := f.UpdatedAt.UnixNano()
			if prev, ok := lastUpdated[f.ID]; ok && ts <= prev {
				t.Fatalf("UpdatedAt for %s not strictly increasing", f.ID)
			}
			lastUpdated[f.ID] = ts
		}
	}
}

func TestNAVUnknownFund(t *testing.T) {
	eng, _ := newTestEngine()

	_, err := eng.NAV("NOPE")
	var nf *errs.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("error = %v, expected NotFoundError", err)
	}
}

func TestRepeatSubscribeAccumulatesShares(t *testing.T) {
	eng, _ := newTestEngine()

	h1, err := eng.Subscribe("u1", "FUND_K8", 1000)
	if err != nil {
		t.Fatalf("first Subscribe returned error: %v", err)
	}
	h2, err := eng.Subscribe("u1", "FUND_K8", 1000)
	if err != nil {
		t.Fatalf("second Subscribe returned error: %v", err)
	}
	if h2.Shares <= h1.Shares {
		t.Fatalf("shares did not accumulate: %v then %v", h1.Shares, h2.Shares)
	}
}
