package config

import (
	"testing"
	"time"
)

func TestGetEnvFloat(t *testing.T) {
	t.Setenv("TEST_FLOAT", "0.25")
	if got := GetEnvFloat("TEST_FLOAT", 1); got != 0.25 {
		t.Errorf("GetEnvFloat = %v, want 0.25", got)
	}
	t.Setenv("TEST_FLOAT", "abc")
	if got := GetEnvFloat("TEST_FLOAT", 1); got != 1 {
		t.Errorf("invalid value should fall back, got %v", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	cases := map[string]bool{"true": true, "1": true, "yes": true, "off": false, "0": false}
	for in, want := range cases {
		t.Setenv("TEST_BOOL", in)
		if got := GetEnvBool("TEST_BOOL", !want); got != want {
			t.Errorf("GetEnvBool(%q) = %v, want %v", in, got, want)
		}
	}
	t.Setenv("TEST_BOOL", "")
	if !GetEnvBool("TEST_BOOL", true) {
		t.Error("empty value should fall back")
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_DUR", "33ms")
	if got := GetEnvDuration("TEST_DUR", time.Second); got != 33*time.Millisecond {
		t.Errorf("GetEnvDuration = %v", got)
	}
	if got := GetEnvDuration("TEST_DUR_UNSET", time.Second); got != time.Second {
		t.Errorf("unset should fall back, got %v", got)
	}
}
