package config

import (
	"os"
	"testing"
)

func TestRiskProfilePresets(t *testing.T) {
	conservative := RiskProfile("conservative")
	balanced := RiskProfile("balanced")
	aggressive := RiskProfile("aggressive")

	if conservative.MaxPositionSize >= balanced.MaxPositionSize {
		t.Error("Conservative position cap should be below balanced")
	}
	if balanced.MaxPositionSize >= aggressive.MaxPositionSize {
		t.Error("Balanced position cap should be below aggressive")
	}
	if conservative.StopLossPercent >= aggressive.StopLossPercent {
		t.Error("Conservative stop should be tighter than aggressive")
	}
}

func TestRiskProfileUnknownFallsBackToBalanced(t *testing.T) {
	profile := RiskProfile("yolo")
	if profile.Profile != "balanced" {
		t.Errorf("Unknown profile should fall back to balanced, got %s", profile.Profile)
	}
}

func TestLoadAppliesProfileDefaults(t *testing.T) {
	os.Setenv("RISK_PROFILE", "conservative")
	defer os.Unsetenv("RISK_PROFILE")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.RiskConfig.MaxPositionSize != 10 {
		t.Errorf("Conservative profile should set 10%% position cap, got %f", cfg.RiskConfig.MaxPositionSize)
	}
	if cfg.RiskConfig.MaxOpenPositions != 3 {
		t.Errorf("Conservative profile should allow 3 open positions, got %d", cfg.RiskConfig.MaxOpenPositions)
	}
}

func TestLoadEnvOverridesBeatProfile(t *testing.T) {
	os.Setenv("RISK_PROFILE", "conservative")
	os.Setenv("RISK_MAX_POSITION_SIZE", "20")
	defer os.Unsetenv("RISK_PROFILE")
	defer os.Unsetenv("RISK_MAX_POSITION_SIZE")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.RiskConfig.MaxPositionSize != 20 {
		t.Errorf("Explicit env setting should win over the profile, got %f", cfg.RiskConfig.MaxPositionSize)
	}
}

func TestStrategyDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.StrategyConfig.MinConfidence != 65 {
		t.Errorf("Default static confidence floor should be 65, got %f", cfg.StrategyConfig.MinConfidence)
	}
	if cfg.StrategyConfig.BaselineThreshold != 75 {
		t.Errorf("Default baseline threshold should be 75, got %f", cfg.StrategyConfig.BaselineThreshold)
	}
	if cfg.StrategyConfig.EnsembleMinPatterns != 3 {
		t.Errorf("Default ensemble minimum should be 3 patterns, got %d", cfg.StrategyConfig.EnsembleMinPatterns)
	}
}
