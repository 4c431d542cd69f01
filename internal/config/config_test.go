package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

// The defaults test reads the real process environment, so shed anything the
// host may have set for these keys before running.
func TestMain(m *testing.M) {
	for _, k := range []string{"PORT", "GIN_MODE", "LOG_LEVEL", "API_BASE_PATH", "DB_PATH", "SWEEP_SCHEDULE"} {
		os.Unsetenv(k)
	}
	os.Exit(m.Run())
}

func TestLoad_DefaultsAreValid(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load with defaults: %v", err)
	}
	if cfg.Port != "8080" || cfg.GinMode != "release" || cfg.LogLevel != "info" {
		t.Fatalf("unexpected server defaults: %+v", cfg)
	}
	if cfg.APIBasePath != "/api" {
		t.Fatalf("APIBasePath default = %q; want /api", cfg.APIBasePath)
	}
	if cfg.DBPath != "citizenlink.db" || cfg.SweepSchedule != "@hourly" {
		t.Fatalf("unexpected storage defaults: %+v", cfg)
	}
	if cfg.Mail.SendGridKey != "" || cfg.Mail.FromEmail != "" {
		t.Fatalf("mail should be empty by default: %+v", cfg.Mail)
	}
	if cfg.IdempotencyTTL != 24*time.Hour {
		t.Fatalf("IdempotencyTTL default = %v", cfg.IdempotencyTTL)
	}
}

func TestLoad_OverridesAndNormalization(t *testing.T) {
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird") // unknown mode falls back to release

	t.Setenv("LOG_LEVEL", "warning") // alias for warn
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("SWAGGER_ENABLED", "on")
	t.Setenv("API_BASE_PATH", "api/v1/")

	t.Setenv("DB_PATH", "db.sqlite")
	t.Setenv("SWEEP_SCHEDULE", "@every 30m")

	t.Setenv("SENDGRID_API_KEY", "sg-key")
	t.Setenv("MAIL_FROM", "noreply@citizenlink.test")

	// Unparseable numbers keep the defaults.
	t.Setenv("RATE_RPS", "x")
	t.Setenv("RATE_BURST", "nope")

	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")
	t.Setenv("IDEMPOTENCY_TTL", "48h")

	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "8088" || cfg.ReadTimeout != 2*time.Second || cfg.ReadHeaderTimeout != time.Second ||
		cfg.WriteTimeout != 3*time.Second || cfg.IdleTimeout != 4*time.Second ||
		cfg.MaxHeaderBytes != 8192 || cfg.GinMode != "release" {
		t.Fatalf("server fields: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled || cfg.APIBasePath != "/api/v1" {
		t.Fatalf("logging and docs fields: %+v", cfg)
	}
	if cfg.DBPath != "db.sqlite" || cfg.SweepSchedule != "@every 30m" {
		t.Fatalf("storage fields: %+v", cfg)
	}
	if cfg.Mail.SendGridKey != "sg-key" || cfg.Mail.FromEmail != "noreply@citizenlink.test" {
		t.Fatalf("mail fields: %+v", cfg.Mail)
	}
	if cfg.RateRPS != 5.0 || cfg.RateBurst != 10 {
		t.Fatalf("rate fields should keep defaults on bad parse: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security fields: %+v", cfg.Security)
	}
	if cfg.IdempotencyTTL != 48*time.Hour {
		t.Fatalf("IdempotencyTTL = %v", cfg.IdempotencyTTL)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure ||
		cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel fields: %+v", cfg.OTEL)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name    string
		key     string
		value   string
		wantMsg string
	}{
		{"log level", "LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"blank port", "PORT", "   ", "PORT must not be empty"},
		{"zero timeout", "READ_TIMEOUT", "0s", "timeouts must be positive"},
		{"zero header bytes", "MAX_HEADER_BYTES", "0", "MAX_HEADER_BYTES"},
		{"blank db path", "DB_PATH", "   ", "DB_PATH must not be empty"},
		{"blank sweep schedule", "SWEEP_SCHEDULE", "   ", "SWEEP_SCHEDULE must not be empty"},
		{"negative rps", "RATE_RPS", "-1", "RATE_RPS"},
		{"zero burst", "RATE_BURST", "0", "RATE_BURST"},
		{"negative hsts", "HSTS_MAX_AGE", "-1s", "HSTS_MAX_AGE"},
		{"zero idempotency ttl", "IDEMPOTENCY_TTL", "0s", "IDEMPOTENCY_TTL"},
		{"sample ratio out of range", "OTEL_TRACES_SAMPLER_ARG", "1.5", "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("want error containing %q, got %v", tc.wantMsg, err)
			}
		})
	}
}

func TestMustLoad(t *testing.T) {
	t.Run("valid defaults", func(t *testing.T) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("MustLoad panicked on valid defaults: %v", r)
			}
		}()
		if cfg := MustLoad(); cfg.APIBasePath == "" {
			t.Fatal("empty config from MustLoad")
		}
	})
	t.Run("panics on invalid env", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "verbose")
		defer func() {
			if recover() == nil {
				t.Fatal("MustLoad should panic when Load fails")
			}
		}()
		_ = MustLoad()
	})
}

func TestEnvReaders(t *testing.T) {
	t.Setenv("X_EMPTY", "")
	if envStr("X_EMPTY", "d") != "d" {
		t.Fatal("envStr should default on empty value")
	}
	t.Setenv("X_SET", "val")
	if envStr("X_SET", "d") != "val" {
		t.Fatal("envStr should read the set value")
	}

	t.Setenv("F", "3.14")
	if envFloat("F", 0) != 3.14 {
		t.Fatal("envFloat parse")
	}
	if envFloat("F_UNSET", 1.23) != 1.23 {
		t.Fatal("envFloat default")
	}

	t.Setenv("I", "42")
	if envInt("I", 0) != 42 {
		t.Fatal("envInt parse")
	}
	t.Setenv("I_BAD", "x")
	if envInt("I_BAD", 7) != 7 {
		t.Fatal("envInt default on bad parse")
	}

	t.Setenv("D", "150ms")
	if envDur("D", time.Second) != 150*time.Millisecond {
		t.Fatal("envDur parse")
	}
	t.Setenv("D_BAD", "zzz")
	if envDur("D_BAD", 2*time.Second) != 2*time.Second {
		t.Fatal("envDur default on bad parse")
	}
}

func TestEnvBool(t *testing.T) {
	for i, v := range []string{"1", "true", "TRUE", " yes ", "Y", "on", "On"} {
		key := fmt.Sprintf("B_T_%d", i)
		t.Setenv(key, v)
		if !envBool(key, false) {
			t.Fatalf("envBool(%q) = false; want true", v)
		}
	}
	for i, v := range []string{"0", "false", "FALSE", " no ", "N", "off", "Off"} {
		key := fmt.Sprintf("B_F_%d", i)
		t.Setenv(key, v)
		if envBool(key, true) {
			t.Fatalf("envBool(%q) = true; want false", v)
		}
	}
	t.Setenv("B_EMPTY", "")
	if !envBool("B_EMPTY", true) || envBool("B_EMPTY", false) {
		t.Fatal("envBool should default on empty value")
	}
	t.Setenv("B_JUNK", "maybe")
	if !envBool("B_JUNK", true) {
		t.Fatal("envBool should default on unrecognized value")
	}
}

func TestSplitCSV(t *testing.T) {
	if out := splitCSV(""); out != nil {
		t.Fatalf("splitCSV(\"\") = %#v; want nil", out)
	}
	got := splitCSV(" a, ,b ,  c  ,")
	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("splitCSV = %#v", got)
	}
}

func TestNormalizeBasePath(t *testing.T) {
	cases := map[string]string{
		"":      "/",
		" / ":   "/",
		"v1":    "/v1",
		"/v1/":  "/v1",
		"/api":  "/api",
		"api//": "/api",
	}
	for in, want := range cases {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q; want %q", in, got, want)
		}
	}
}
