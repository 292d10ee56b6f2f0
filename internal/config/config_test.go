package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadTariffRulesDefaultsWithoutPath(t *testing.T) {
	rules, err := LoadTariffRules("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rules != DefaultTariffRules() {
		t.Fatalf("expected defaults, got %+v", rules)
	}
}

func TestLoadTariffRulesOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tariff.yaml")
	body := "holiday_multiplier: 1.5\nweekend_multiplier: 1.25\nextra_stop_fee: 50000\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	rules, err := LoadTariffRules(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rules.HolidayMultiplier != 1.5 || rules.WeekendMultiplier != 1.25 || rules.ExtraStopFee != 50000 {
		t.Fatalf("file values not applied: %+v", rules)
	}
	if rules.DepositRate != DefaultTariffRules().DepositRate {
		t.Fatalf("missing key should keep default, got %v", rules.DepositRate)
	}
}

func TestLoadTariffRulesRejectsBadDeposit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tariff.yaml")
	if err := os.WriteFile(path, []byte("deposit_rate: 2\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadTariffRules(path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestSurchargeMultiplier(t *testing.T) {
	r := TariffRules{HolidayMultiplier: 1.5, WeekendMultiplier: 1.2}
	cases := []struct {
		holiday, weekend bool
		want             float64
	}{
		{false, false, 1},
		{true, false, 1.5},
		{false, true, 1.2},
		{true, true, 1.5},
	}
	for _, tc := range cases {
		if got := r.SurchargeMultiplier(tc.holiday, tc.weekend); got != tc.want {
			t.Fatalf("holiday=%v weekend=%v: got %v want %v", tc.holiday, tc.weekend, got, tc.want)
		}
	}
	low := TariffRules{HolidayMultiplier: 0.5}
	if got := low.SurchargeMultiplier(true, false); got != 1 {
		t.Fatalf("multiplier below 1 must clamp, got %v", got)
	}
}

func TestLoadEnvDefaultsAndOverrides(t *testing.T) {
	t.Setenv("APP_ADDR", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("RATE_LIMIT_RPS", "12.5")
	t.Setenv("STORE_DRIVER", "Memory")

	env := LoadEnv()
	if env.AppAddr != ":8080" {
		t.Fatalf("expected default addr, got %q", env.AppAddr)
	}
	if len(env.CORSOrigins) != 2 || env.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", env.CORSOrigins)
	}
	if env.RateLimitRPS != 12.5 {
		t.Fatalf("unexpected rps %v", env.RateLimitRPS)
	}
	if env.StoreDriver != "memory" {
		t.Fatalf("store driver should be lower-cased, got %q", env.StoreDriver)
	}
}

func TestDSNFromParts(t *testing.T) {
	env := Env{DBUser: "app", DBPassword: "pw", DBHost: "db:3306", DBName: "charter"}
	dsn := env.DSN()
	for _, want := range []string{"app:pw@tcp(db:3306)/charter", "parseTime=true", "clientFoundRows=true"} {
		if !strings.Contains(dsn, want) {
			t.Fatalf("dsn %q missing %q", dsn, want)
		}
	}
	env.DBDSN = "explicit"
	if env.DSN() != "explicit" {
		t.Fatalf("explicit DSN must win")
	}
}
