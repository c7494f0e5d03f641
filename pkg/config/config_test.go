package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func TestLoadDefaults(t *testing.T) {
	logger := newTestLogger()

	cfg, err := Load(logger)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.HTTP.Port != 8080 {
		t.Errorf("expected default HTTP port 8080, got %d", cfg.HTTP.Port)
	}
	if cfg.Detection.AMDConfidenceThreshold != 0.85 {
		t.Errorf("expected AMD threshold 0.85, got %f", cfg.Detection.AMDConfidenceThreshold)
	}
	if cfg.Detection.KeywordConfidenceThreshold != 0.75 {
		t.Errorf("expected keyword threshold 0.75, got %f", cfg.Detection.KeywordConfidenceThreshold)
	}
	if cfg.Detection.MinSignalsRequired != 1 {
		t.Errorf("expected min signals 1, got %d", cfg.Detection.MinSignalsRequired)
	}
	if cfg.Detection.EnableAggressiveDetection {
		t.Error("aggressive detection should default to off")
	}
	if cfg.Retry.MaxRetries != 3 {
		t.Errorf("expected 3 max retries, got %d", cfg.Retry.MaxRetries)
	}
	if len(cfg.Retry.RetryDelays) != 3 {
		t.Fatalf("expected 3 retry delays, got %d", len(cfg.Retry.RetryDelays))
	}
	if cfg.Retry.RetryDelays[0] != 2*time.Minute {
		t.Errorf("expected first retry delay 2m, got %v", cfg.Retry.RetryDelays[0])
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	logger := newTestLogger()

	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("DETECTION_AMD_CONFIDENCE_THRESHOLD", "0.9")
	t.Setenv("DETECTION_ENABLE_AGGRESSIVE", "true")
	t.Setenv("RETRY_DELAYS", "1m,3m")

	cfg, err := Load(logger)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.HTTP.Port != 9090 {
		t.Errorf("expected HTTP port 9090, got %d", cfg.HTTP.Port)
	}
	if cfg.Detection.AMDConfidenceThreshold != 0.9 {
		t.Errorf("expected AMD threshold 0.9, got %f", cfg.Detection.AMDConfidenceThreshold)
	}
	if !cfg.Detection.EnableAggressiveDetection {
		t.Error("aggressive detection should be enabled")
	}
	if len(cfg.Retry.RetryDelays) != 2 || cfg.Retry.RetryDelays[1] != 3*time.Minute {
		t.Errorf("unexpected retry delays: %v", cfg.Retry.RetryDelays)
	}
}

func TestValidateRejectsBadThreshold(t *testing.T) {
	logger := newTestLogger()

	t.Setenv("DETECTION_AMD_CONFIDENCE_THRESHOLD", "1.5")

	if _, err := Load(logger); err == nil {
		t.Error("expected validation error for threshold above 1")
	}
}

func TestValidateRequiresTwilioToken(t *testing.T) {
	logger := newTestLogger()

	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "+15550001111")

	if _, err := Load(logger); err == nil {
		t.Error("expected validation error for missing auth token")
	}
}

func TestDatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db.internal",
		Port:     3306,
		Username: "atlas",
		Password: "secret",
		Database: "atlas",
	}

	want := "atlas:secret@tcp(db.internal:3306)/atlas?parseTime=true&charset=utf8mb4"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN mismatch:\ngot  %s\nwant %s", got, want)
	}
}

func TestParseDurations(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{"standard", "2m,5m,10m", 3, false},
		{"spaces", " 1m , 2m ", 2, false},
		{"empty", "", 0, false},
		{"trailing comma", "1m,", 1, false},
		{"invalid", "1m,bogus", 0, true},
		{"negative", "-1m", 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseDurations(tc.input, "TEST")
			if tc.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != tc.want {
				t.Errorf("expected %d durations, got %d", tc.want, len(got))
			}
		})
	}
}
