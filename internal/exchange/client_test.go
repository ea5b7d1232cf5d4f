package exchange

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/shopspring/decimal"

	"hlmaker/internal/config"
	"hlmaker/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newDryRunClient() *Client {
	return &Client{
		dryRun: true,
		rl:     NewRateLimiter(),
		logger: testLogger(),
	}
}

func TestDryRunPlaceOrderReturnsClientIDBasedID(t *testing.T) {
	t.Parallel()
	c := newDryRunClient()

	intent := types.OrderIntent{
		Symbol:   "BTC",
		Side:     types.Buy,
		Price:    decimal.NewFromFloat(100),
		Size:     decimal.NewFromFloat(1),
		ClientID: "cid-1",
	}
	id, err := c.PlaceOrder(context.Background(), intent, true)
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v", err)
	}
	if id == "" {
		t.Error("PlaceOrder() returned empty exchange id")
	}
}

func TestDryRunModifyOrdersAllOK(t *testing.T) {
	t.Parallel()
	c := newDryRunClient()

	mods := []ModifyRequest{
		{ExchangeID: "1", NewPrice: decimal.NewFromFloat(100), NewSize: decimal.NewFromFloat(1)},
		{ExchangeID: "2", NewPrice: decimal.NewFromFloat(101), NewSize: decimal.NewFromFloat(1)},
	}
	results, err := c.ModifyOrders(context.Background(), mods)
	if err != nil {
		t.Fatalf("ModifyOrders() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("ModifyOrders() len = %d, want 2", len(results))
	}
	for _, r := range results {
		if !r.OK {
			t.Errorf("ModifyOrders() result %+v, want OK", r)
		}
	}
}

func TestModifyOrdersEmptyIsNoop(t *testing.T) {
	t.Parallel()
	c := newDryRunClient()

	results, err := c.ModifyOrders(context.Background(), nil)
	if err != nil {
		t.Fatalf("ModifyOrders() error = %v", err)
	}
	if results != nil {
		t.Errorf("ModifyOrders(nil) = %v, want nil", results)
	}
}

func TestDryRunCancelOrdersNoError(t *testing.T) {
	t.Parallel()
	c := newDryRunClient()

	if err := c.CancelOrders(context.Background(), "BTC", []string{"1", "2"}); err != nil {
		t.Fatalf("CancelOrders() error = %v", err)
	}
}

func TestCancelOrdersEmptyIsNoop(t *testing.T) {
	t.Parallel()
	c := newDryRunClient()

	if err := c.CancelOrders(context.Background(), "BTC", nil); err != nil {
		t.Fatalf("CancelOrders(nil) error = %v", err)
	}
}

func TestDryRunCancelAllNoError(t *testing.T) {
	t.Parallel()
	c := newDryRunClient()

	if err := c.CancelAll(context.Background(), "BTC"); err != nil {
		t.Fatalf("CancelAll() error = %v", err)
	}
}

func TestDryRunArmDeadMansSwitchNoError(t *testing.T) {
	t.Parallel()
	c := newDryRunClient()

	if err := c.ArmDeadMansSwitch(context.Background(), 15_000_000_000); err != nil {
		t.Fatalf("ArmDeadMansSwitch() error = %v", err)
	}
}

func TestNewClientDryRunFromConfig(t *testing.T) {
	t.Parallel()

	cfg := config.Config{DryRun: true, Venue: config.VenueConfig{RESTBaseURL: "http://localhost"}}
	auth := &Auth{}
	c := NewClient(cfg, auth, testLogger())

	if !c.dryRun {
		t.Error("client.dryRun should be true when config.DryRun is true")
	}
}

func TestContainsCrossKeyword(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"order would cross the book":  true,
		"Order would Match resting":   true,
		"insufficient margin":         false,
		"invalid price":               false,
	}
	for msg, want := range cases {
		if got := containsCrossKeyword(msg); got != want {
			t.Errorf("containsCrossKeyword(%q) = %v, want %v", msg, got, want)
		}
	}
}
