package domain_test

import (
	"fmt"
	"testing"

	"github.com/PabloGalante/carebot/internal/domain"
)

func TestCustomData_Truthy(t *testing.T) {
	c := domain.CustomData{
		"t_bool":   true,
		"f_bool":   false,
		"t_str":    "yes",
		"f_str":    "",
		"t_num":    float64(1),
		"f_num":    float64(0),
		"nil":      nil,
		"empty_ob": map[string]any{},
	}

	for key, want := range map[string]bool{
		"t_bool":   true,
		"f_bool":   false,
		"t_str":    true,
		"f_str":    false,
		"t_num":    true,
		"f_num":    false,
		"nil":      false,
		"empty_ob": true,
		"missing":  false,
	} {
		if got := c.Truthy(key); got != want {
			t.Errorf("Truthy(%q) = %v, want %v", key, got, want)
		}
	}
}

func TestCustomData_Text(t *testing.T) {
	c := domain.CustomData{"appointment_id": float64(4521), "name": "APT-1"}

	if got := c.Text("appointment_id"); got != "4521" {
		t.Errorf("expected 4521, got %q", got)
	}
	if got := c.Text("name"); got != "APT-1" {
		t.Errorf("expected APT-1, got %q", got)
	}
	if got := c.Text("missing"); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestParsePriority(t *testing.T) {
	for _, raw := range []string{"low", "Medium", " HIGH ", "emergency"} {
		if _, ok := domain.ParsePriority(raw); !ok {
			t.Errorf("expected %q to parse", raw)
		}
	}
	if _, ok := domain.ParsePriority("critical"); ok {
		t.Errorf("expected critical to be rejected")
	}
}

func TestErrorKind(t *testing.T) {
	if got := domain.ErrorKind(fmt.Errorf("post: %w", domain.ErrNetworkFailure)); got != "network" {
		t.Errorf("expected network, got %q", got)
	}
	if got := domain.ErrorKind(fmt.Errorf("decode: %w", domain.ErrMalformedResponse)); got != "malformed" {
		t.Errorf("expected malformed, got %q", got)
	}
}
