package config

import "testing"

func TestDefaultPlanCatalogIsValid(t *testing.T) {
	if err := validatePlanCatalog(DefaultPlanCatalog()); err != nil {
		t.Fatalf("default catalog rejected: %v", err)
	}
}

func TestValidatePlanCatalogRejectsUnknownCode(t *testing.T) {
	catalog := PlanCatalog{Plans: []PlanDefinition{{Code: "platinum", Name: "Platinum"}}}
	if err := validatePlanCatalog(catalog); err == nil {
		t.Fatalf("expected unknown plan code to be rejected")
	}
}

func TestValidatePlanCatalogRejectsDuplicates(t *testing.T) {
	catalog := PlanCatalog{Plans: []PlanDefinition{{Code: "pro"}, {Code: "pro"}}}
	if err := validatePlanCatalog(catalog); err == nil {
		t.Fatalf("expected duplicate plan code to be rejected")
	}
}

func TestValidatePlanCatalogRejectsEmpty(t *testing.T) {
	if err := validatePlanCatalog(PlanCatalog{}); err == nil {
		t.Fatalf("expected empty catalog to be rejected")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("PUBLIC_BASE_URL", "https://app.example.com/")
	t.Setenv("ORG_RECONCILE_TIMEOUT", "bogus")

	cfg := Load()
	if !cfg.AuthCookieSecure {
		t.Fatalf("expected secure cookies in production")
	}
	if cfg.PublicBaseURL != "https://app.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.PublicBaseURL)
	}
	if cfg.ReconcileTimeout.Seconds() != 10 {
		t.Fatalf("expected default reconcile timeout, got %s", cfg.ReconcileTimeout)
	}
	if cfg.AuthCookieName != "_sid" {
		t.Fatalf("unexpected cookie name %q", cfg.AuthCookieName)
	}
}
