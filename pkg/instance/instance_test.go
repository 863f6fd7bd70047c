package instance

import "testing"

func TestGetIDPrefersEnvironment(t *testing.T) {
	t.Setenv(envInstanceID, " api-7 ")
	if got := GetID(); got != "api-7" {
		t.Fatalf("expected api-7 got %q", got)
	}
}

func TestGetIDFallsBack(t *testing.T) {
	t.Setenv(envInstanceID, "")
	if got := GetID(); got == "" {
		t.Fatal("expected a non-empty fallback id")
	}
}
