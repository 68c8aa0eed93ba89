package services

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/bounceparty/api/internal/repositories"
)

func TestPricingRulesService_UpdateNormalisesAndSaves(t *testing.T) {
	repo := &stubRulesRepo{}
	now := time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC)
	svc, err := NewPricingRulesService(PricingRulesServiceDeps{Rules: repo, Clock: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("NewPricingRulesService: %v", err)
	}

	input := *testPricingRules()
	input.ID = "ignored"
	input.IncludedCities = []string{" Royal Oak", "detroit", "Detroit", ""}
	input.IncludedZipCodes = []string{"48067 ", "48067"}

	saved, err := svc.UpdateRules(context.Background(), UpdatePricingRulesCommand{Rules: input, ActorID: "admin@example.com"})
	if err != nil {
		t.Fatalf("UpdateRules: %v", err)
	}
	if saved.ID != "default" || !saved.UpdatedAt.Equal(now) {
		t.Fatalf("unexpected identity %q %v", saved.ID, saved.UpdatedAt)
	}
	if !slices.Equal(saved.IncludedCities, []string{"detroit", "Royal Oak"}) {
		t.Fatalf("unexpected cities %v", saved.IncludedCities)
	}
	if !slices.Equal(saved.IncludedZipCodes, []string{"48067"}) {
		t.Fatalf("unexpected zips %v", saved.IncludedZipCodes)
	}
	if len(repo.saved) != 1 {
		t.Fatalf("expected one save, got %d", len(repo.saved))
	}

	got, err := svc.GetRules(context.Background())
	if err != nil {
		t.Fatalf("GetRules: %v", err)
	}
	if got.TaxRateBasisPoints != input.TaxRateBasisPoints {
		t.Fatalf("expected stored rules back, got %+v", got)
	}
}

func TestPricingRulesService_RejectsInvalidRules(t *testing.T) {
	repo := &stubRulesRepo{}
	svc, _ := NewPricingRulesService(PricingRulesServiceDeps{Rules: repo})

	bad := *testPricingRules()
	bad.PerMileAfterBaseCents = -1
	if _, err := svc.UpdateRules(context.Background(), UpdatePricingRulesCommand{Rules: bad}); !errors.Is(err, ErrPricingRulesInvalid) {
		t.Fatalf("expected ErrPricingRulesInvalid, got %v", err)
	}
	if len(repo.saved) != 0 {
		t.Fatal("expected invalid rules not to be saved")
	}
}

func TestPricingRulesService_ErrorMapping(t *testing.T) {
	missing := &stubRulesRepo{err: repositories.NewStoreError("rules.get", repositories.StoreErrorNotFound, nil)}
	svc, _ := NewPricingRulesService(PricingRulesServiceDeps{Rules: missing})
	if _, err := svc.GetRules(context.Background()); !errors.Is(err, ErrPricingRulesMissing) {
		t.Fatalf("expected ErrPricingRulesMissing, got %v", err)
	}

	down := &stubRulesRepo{err: errors.New("firestore unavailable")}
	svc, _ = NewPricingRulesService(PricingRulesServiceDeps{Rules: down})
	if _, err := svc.UpdateRules(context.Background(), UpdatePricingRulesCommand{Rules: *testPricingRules()}); !errors.Is(err, ErrPricingRulesUnavailable) {
		t.Fatalf("expected ErrPricingRulesUnavailable, got %v", err)
	}
}
