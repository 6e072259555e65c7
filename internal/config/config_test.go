package config

import "testing"

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Gate.SuspensionTTLHours != 24 {
		t.Errorf("expected SuspensionTTLHours=24, got %d", cfg.Gate.SuspensionTTLHours)
	}
	if cfg.Redis.TTLDays != 7 {
		t.Errorf("expected TTLDays=7, got %d", cfg.Redis.TTLDays)
	}
	if cfg.Gateway.Port != 18890 {
		t.Errorf("expected Port=18890, got %d", cfg.Gateway.Port)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gateway.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for gateway.port=0")
	}

	cfg = DefaultConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = " "
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for enabled redis without addr")
	}

	cfg = DefaultConfig()
	cfg.Notify.Telegram.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for enabled telegram without token")
	}

	cfg = DefaultConfig()
	cfg.Log.Level = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown log level")
	}
}

func TestValidate_NormalizesDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gate.SuspensionTTLHours = 0
	cfg.Log.Level = "WARN"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if cfg.Gate.SuspensionTTLHours != 24 {
		t.Errorf("expected normalized TTL, got %d", cfg.Gate.SuspensionTTLHours)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("expected lower-cased level, got %q", cfg.Log.Level)
	}
}
