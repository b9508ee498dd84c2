package env

import (
	"testing"
	"time"
)

func TestStr(t *testing.T) {
	t.Setenv("ENV_TEST_STR", "")
	if got := Str("ENV_TEST_STR", "fallback"); got != "fallback" {
		t.Errorf("empty: got %q", got)
	}
	t.Setenv("ENV_TEST_STR", "value")
	if got := Str("ENV_TEST_STR", "fallback"); got != "value" {
		t.Errorf("set: got %q", got)
	}
}

func TestIntFloatBool(t *testing.T) {
	t.Setenv("ENV_TEST_INT", "42")
	t.Setenv("ENV_TEST_BAD_INT", "forty")
	t.Setenv("ENV_TEST_FLOAT", "-35.5")
	t.Setenv("ENV_TEST_BOOL", "false")

	if got := Int("ENV_TEST_INT", 1); got != 42 {
		t.Errorf("Int = %d, want 42", got)
	}
	if got := Int("ENV_TEST_BAD_INT", 7); got != 7 {
		t.Errorf("malformed Int = %d, want fallback 7", got)
	}
	if got := Float("ENV_TEST_FLOAT", 0); got != -35.5 {
		t.Errorf("Float = %v, want -35.5", got)
	}
	if got := Bool("ENV_TEST_BOOL", true); got {
		t.Errorf("Bool = true, want false")
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		val  string
		want time.Duration
	}{
		{"", 5 * time.Second},
		{"750ms", 750 * time.Millisecond},
		{"3", 3 * time.Second},
		{"1.5", 1500 * time.Millisecond},
		{"soon", 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.val, func(t *testing.T) {
			t.Setenv("ENV_TEST_DURATION", tt.val)
			if got := Duration("ENV_TEST_DURATION", 5*time.Second); got != tt.want {
				t.Errorf("Duration(%q) = %v, want %v", tt.val, got, tt.want)
			}
		})
	}
}

func TestList(t *testing.T) {
	t.Setenv("ENV_TEST_LIST", " a, ,b ,c")
	got := List("ENV_TEST_LIST", nil)
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("List = %v", got)
	}
	t.Setenv("ENV_TEST_LIST", ",,")
	if got := List("ENV_TEST_LIST", []string{"x"}); len(got) != 1 || got[0] != "x" {
		t.Errorf("List fallback = %v", got)
	}
}
