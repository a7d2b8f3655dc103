package config

import (
	"strings"
	"testing"
)

func TestValidatorAccumulatesErrors(t *testing.T) {
	v := NewValidator().
		RequireNonEmpty("host", "").
		RequirePositive("port", -1).
		RequireOneOf("mode", "bogus", "a", "b")

	if !v.HasErrors() {
		t.Fatalf("expected errors")
	}
	if len(v.Errors()) != 3 {
		t.Fatalf("expected 3 errors, got %d", len(v.Errors()))
	}
	err := v.Error()
	if err == nil {
		t.Fatalf("expected combined error")
	}
	for _, field := range []string{"host", "port", "mode"} {
		if !strings.Contains(err.Error(), field) {
			t.Fatalf("combined error missing field %q: %v", field, err)
		}
	}
}

func TestValidatorCleanPass(t *testing.T) {
	v := NewValidator().
		RequireNonEmpty("host", "localhost").
		RequirePort("port", 5432).
		RequireFloatRange("threshold", 0.82, 0, 1).
		RequireLessThan("overlap", 400, 3000)

	if v.HasErrors() {
		t.Fatalf("unexpected errors: %v", v.Error())
	}
	if v.Error() != nil {
		t.Fatalf("expected nil error")
	}
}

func TestValidatePostgresConfig(t *testing.T) {
	if err := ValidatePostgresConfig("localhost", 5432, "postgres", "deepresearch", "disable"); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if err := ValidatePostgresConfig("", 0, "", "", "tls"); err == nil {
		t.Fatalf("invalid config accepted")
	}
}

func TestValidatePGVectorConfig(t *testing.T) {
	if err := ValidatePGVectorConfig("localhost", 5432, "postgres", "deepresearch", "disable", 256, "corpus_chunks"); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if err := ValidatePGVectorConfig("localhost", 5432, "postgres", "deepresearch", "disable", 0, ""); err == nil {
		t.Fatalf("zero dimension accepted")
	}
}

func TestValidateRedisConfig(t *testing.T) {
	if err := ValidateRedisConfig("localhost:6379", 0, "deepresearch:session:"); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if err := ValidateRedisConfig("", 20, ""); err == nil {
		t.Fatalf("invalid config accepted")
	}
}

func TestValidateMongoConfig(t *testing.T) {
	if err := ValidateMongoConfig("mongodb://localhost:27017", "deepresearch", "sessions"); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if err := ValidateMongoConfig("", "", ""); err == nil {
		t.Fatalf("invalid config accepted")
	}
}

func TestValidateProviderConfig(t *testing.T) {
	if err := ValidateProviderConfig("key", "model-x", 0.7, 4096); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if err := ValidateProviderConfig("", "", 3.5, 0); err == nil {
		t.Fatalf("invalid config accepted")
	}
}

func TestValidateWindowing(t *testing.T) {
	if err := ValidateWindowing(3000, 400, 8); err != nil {
		t.Fatalf("valid windowing rejected: %v", err)
	}
	if err := ValidateWindowing(100, 100, 8); err == nil {
		t.Fatalf("zero-stride windowing accepted")
	}
	if err := ValidateWindowing(0, 0, 0); err == nil {
		t.Fatalf("zero windowing accepted")
	}
}

func TestValidateNoveltyThresholds(t *testing.T) {
	if err := ValidateNoveltyThresholds(0.82, 0.70); err != nil {
		t.Fatalf("valid thresholds rejected: %v", err)
	}
	if err := ValidateNoveltyThresholds(1.5, -0.1); err == nil {
		t.Fatalf("out-of-range thresholds accepted")
	}
}
