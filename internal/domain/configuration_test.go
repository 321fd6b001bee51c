package domain_test

import (
	"testing"

	"github.com/vladislavdragonenkov/pcshop/internal/domain"
)

func makeConfiguration() domain.Configuration {
	cfg := domain.Configuration{
		ID:     "cfg-1",
		UserID: "user-1",
		Status: domain.ConfigurationStatusDraft,
		Items: []domain.ConfigurationItem{
			{ID: "ci-1", StockItemID: "cpu-1", Qty: 1, PriceMinor: 30000},
			{ID: "ci-2", StockItemID: "ram-1", Qty: 2, PriceMinor: 5000},
		},
	}
	cfg.RecalculateTotal()
	return cfg
}

func TestConfigurationRecalculateTotal(t *testing.T) {
	cfg := makeConfiguration()
	if cfg.TotalMinor != 40000 {
		t.Fatalf("expected total 40000, got %d", cfg.TotalMinor)
	}

	// Клиентская сумма перетирается пересчётом.
	cfg.TotalMinor = 1
	cfg.RecalculateTotal()
	if cfg.TotalMinor != 40000 {
		t.Fatalf("expected recalculated total 40000, got %d", cfg.TotalMinor)
	}
}

func TestConfigurationValidate(t *testing.T) {
	cfg := makeConfiguration()
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}

	cfg.UserID = ""
	cfg.Items[0].Qty = 0
	cfg.TotalMinor = -1
	if errs := cfg.Validate(); len(errs) == 0 {
		t.Fatal("expected validation errors, got none")
	}
}

func TestConfigurationStatusCanTransitionTo(t *testing.T) {
	cases := []struct {
		from    domain.ConfigurationStatus
		to      domain.ConfigurationStatus
		allowed bool
	}{
		{domain.ConfigurationStatusDraft, domain.ConfigurationStatusSubmitted, true},
		{domain.ConfigurationStatusSubmitted, domain.ConfigurationStatusApproved, true},
		{domain.ConfigurationStatusSubmitted, domain.ConfigurationStatusRejected, true},
		// Перескок через состояния запрещён.
		{domain.ConfigurationStatusDraft, domain.ConfigurationStatusApproved, false},
		{domain.ConfigurationStatusDraft, domain.ConfigurationStatusRejected, false},
		{domain.ConfigurationStatusApproved, domain.ConfigurationStatusSubmitted, false},
		{domain.ConfigurationStatusRejected, domain.ConfigurationStatusApproved, false},
		{domain.ConfigurationStatusApproved, domain.ConfigurationStatusDraft, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}
