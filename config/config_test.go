package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 8081 || cfg.Storage.Driver != "postgres" {
		t.Errorf("server/storage defaults %+v %+v", cfg.Server, cfg.Storage)
	}
	if cfg.Engine.RTPStandard != 0.85 || cfg.Engine.RTPDemo != 0.95 {
		t.Errorf("rtp defaults %+v", cfg.Engine)
	}
	if cfg.Engine.SessionIdleTimeout != 30*time.Minute || cfg.Redis.ReplayTTL != 24*time.Hour {
		t.Errorf("durations %v %v", cfg.Engine.SessionIdleTimeout, cfg.Redis.ReplayTTL)
	}
	p := cfg.Profiles()
	if p.Demo.Bias == nil || p.Demo.Bias.Low != 1.5 || p.Standard.Bias != nil {
		t.Errorf("profiles %+v", p)
	}
	if !cfg.Policy().Multiplier.Equal(decimal.NewFromInt(2)) {
		t.Errorf("policy %+v", cfg.Policy())
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://localhost/cases")
	t.Setenv("ENGINE_RTPSTANDARD", "0.10")
	t.Setenv("ENGINE_SESSIONIDLETIMEOUT", "5m")
	t.Setenv("STORAGE_DRIVER", "memory")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9090 || cfg.Database.URL != "postgres://localhost/cases" {
		t.Errorf("server %+v database %+v", cfg.Server, cfg.Database)
	}
	if cfg.Engine.RTPStandard != 0.10 || cfg.Engine.SessionIdleTimeout != 5*time.Minute || cfg.Storage.Driver != "memory" {
		t.Errorf("engine %+v storage %+v", cfg.Engine, cfg.Storage)
	}
}

func TestLoad_RejectsBadRTP(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENGINE_RTPDEMO", "1.5")
	if _, err := Load(); err == nil {
		t.Error("rtp above 1 should be rejected")
	}
}
