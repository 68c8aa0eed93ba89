package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/bounceparty/api/internal/repositories"
)

const pricingRulesDocumentID = "default"

// ErrPricingRulesUnavailable indicates the rules store could not be reached.
var ErrPricingRulesUnavailable = errors.New("pricing rules: unavailable")

// PricingRulesServiceDeps wires the rules repository.
type PricingRulesServiceDeps struct {
	Rules  repositories.PricingRulesRepository
	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type pricingRulesService struct {
	rules  repositories.PricingRulesRepository
	now    func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewPricingRulesService constructs the admin rules service.
func NewPricingRulesService(deps PricingRulesServiceDeps) (PricingRulesService, error) {
	if deps.Rules == nil {
		return nil, errors.New("pricing rules service: repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &pricingRulesService{
		rules:  deps.Rules,
		now:    func() time.Time { return clock().UTC().Truncate(orderTimestampPrecision) },
		logger: logger,
	}, nil
}

func (s *pricingRulesService) GetRules(ctx context.Context) (PricingRules, error) {
	rules, err := s.rules.Get(ctx)
	if err != nil {
		return PricingRules{}, s.translate(err)
	}
	return rules, nil
}

// UpdateRules validates and replaces the singleton schedule.
func (s *pricingRulesService) UpdateRules(ctx context.Context, cmd UpdatePricingRulesCommand) (PricingRules, error) {
	rules := cmd.Rules
	rules.ID = pricingRulesDocumentID
	rules.IncludedCities = normaliseRuleList(rules.IncludedCities)
	rules.IncludedZipCodes = normaliseRuleList(rules.IncludedZipCodes)
	if err := ValidatePricingRules(&rules); err != nil {
		return PricingRules{}, err
	}
	rules.UpdatedAt = s.now()

	if err := s.rules.Save(ctx, rules); err != nil {
		return PricingRules{}, s.translate(err)
	}
	s.logger(ctx, "pricing_rules.updated", map[string]any{
		"actor":              actorOrDefault(cmd.ActorID, defaultOrderEventActor),
		"baseRadiusMiles":    rules.BaseRadiusMiles,
		"taxRateBasisPoints": rules.TaxRateBasisPoints,
		"includedCities":     len(rules.IncludedCities),
		"includedZipCodes":   len(rules.IncludedZipCodes),
	})
	return rules, nil
}

func (s *pricingRulesService) translate(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if repositories.IsNotFound(err) {
		return ErrPricingRulesMissing
	}
	return fmt.Errorf("%w: %v", ErrPricingRulesUnavailable, err)
}

// normaliseRuleList trims entries and drops blanks and case-insensitive duplicates.
func normaliseRuleList(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, trimmed)
	}
	slices.SortFunc(out, func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})
	return out
}
