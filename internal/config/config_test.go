package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formengine/pkg/validation"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "formengine.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {

	cfg, err := Load(nil, []string{"form-1"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	want := PaymentConfig{PollInterval: 3 * time.Second, MaxWait: 10 * time.Minute, Gateway: GatewayManual}
	if diff := cmp.Diff(want, cfg.Payment); diff != "" {
		t.Fatalf("payment defaults mismatch (-want +got):\n%s", diff)
	}
	if cfg.Capacity.SlotCeiling != 25 || cfg.Capacity.ExamDateCeiling != 300 {
		t.Fatalf("unexpected ceilings %+v", cfg.Capacity)
	}
	if diff := cmp.Diff([]string{"form-1"}, cfg.Args); diff != "" {
		t.Fatalf("args mismatch (-want +got):\n%s", diff)
	}
	if cfg.File != "" {
		t.Fatalf("expected no config file, got %q", cfg.File)
	}
}

func TestLoad_Precedence(t *testing.T) {
	path := writeConfig(t, `
backend:
  url: http://file.example
  timeout: 5s
log:
  level: debug
capacity:
  slot_ceiling: 10
  cache_ttl: 1m
payment:
  poll_interval: 1s
`)
	t.Setenv("FORMENGINE_LOG_LEVEL", "warn")
	t.Setenv("FORMENGINE_CAPACITY_SLOT_CEILING", "12")

	cfg, err := Load(nil, []string{"--config", path, "--log-level", "error"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Backend.URL != "http://file.example" || cfg.Backend.Timeout != 5*time.Second {
		t.Fatalf("file values not applied: %+v", cfg.Backend)
	}
	if cfg.Log.Level != "error" {
		t.Fatalf("flag must win over env and file, got %q", cfg.Log.Level)
	}
	if cfg.Capacity.SlotCeiling != 12 {
		t.Fatalf("env must win over file, got %d", cfg.Capacity.SlotCeiling)
	}
	if cfg.Capacity.CacheTTL != time.Minute || cfg.Payment.PollInterval != time.Second {
		t.Fatalf("durations not decoded: %+v %+v", cfg.Capacity, cfg.Payment)
	}
	if cfg.File != path {
		t.Fatalf("expected file %q, got %q", path, cfg.File)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(nil, []string{"--config", filepath.Join(t.TempDir(), "nope.yaml")}); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}

func TestLoad_UnknownFlag(t *testing.T) {
	if _, err := Load(nil, []string{"--bogus"}); err == nil {
		t.Fatalf("expected flag parse error")
	}
}

func TestValidate(t *testing.T) {
	base, err := Load(nil, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing url", func(c *Config) { c.Backend.URL = "" }},
		{"zero ceiling", func(c *Config) { c.Capacity.SlotCeiling = 0 }},
		{"bad policy", func(c *Config) { c.Validation.FailurePolicy = "maybe" }},
		{"wait below interval", func(c *Config) { c.Payment.MaxWait = time.Second }},
		{"unknown gateway", func(c *Config) { c.Payment.Gateway = "paypal" }},
		{"stripe without key", func(c *Config) { c.Payment.Gateway = GatewayStripe }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}

	stripe := base
	stripe.Payment = PaymentConfig{
		PollInterval: time.Second,
		MaxWait:      time.Minute,
		Gateway:      "Stripe",
		StripeKey:    "sk_test",
		SuccessURL:   "https://example.com/ok",
		CancelURL:    "https://example.com/cancel",
	}
	if err := stripe.Validate(); err != nil {
		t.Fatalf("stripe config: %v", err)
	}
	policy, err := base.FailurePolicy()
	if err != nil || policy != validation.FailOpen {
		t.Fatalf("policy: %v %v", policy, err)
	}
}
