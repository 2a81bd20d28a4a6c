package utils

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRedactSecrets(t *testing.T) {
	in := map[string]interface{}{
		"acquisition": map[string]interface{}{
			"github_token":  "ghp_abcdefghijkl",
			"clone_timeout": "5m0s",
		},
		"api": map[string]interface{}{"addr": ":9001", "Token": ""},
	}
	out := RedactSecrets(in).(map[string]interface{})

	acq := out["acquisition"].(map[string]interface{})
	if acq["github_token"] != "[REDACTED]" || acq["clone_timeout"] != "5m0s" {
		t.Errorf("acquisition = %v", acq)
	}
	if out["api"].(map[string]interface{})["Token"] != "" {
		t.Error("empty secrets should stay empty")
	}
	if in["acquisition"].(map[string]interface{})["github_token"] != "ghp_abcdefghijkl" {
		t.Error("RedactSecrets mutated its input")
	}
}

func TestRedactString(t *testing.T) {
	got := RedactString("fatal: could not read https://ghp_abcdefghijkl@github.com/a/b", "ghp_abcdefghijkl")
	if strings.Contains(got, "ghp_abcdefghijkl") || !strings.Contains(got, "gh****kl") {
		t.Errorf("RedactString() = %s", got)
	}
	if RedactString("unchanged", "") != "unchanged" {
		t.Error("empty secret should be a no-op")
	}
}

func TestRetryWithContext(t *testing.T) {
	t.Run("succeeds after transient errors", func(t *testing.T) {
		calls := 0
		err := RetryWithContext(context.Background(), 3, time.Millisecond, func() error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})
		if err != nil || calls != 3 {
			t.Errorf("err = %v, calls = %d", err, calls)
		}
	})

	t.Run("permanent stops immediately", func(t *testing.T) {
		calls := 0
		sentinel := errors.New("bad request")
		err := RetryWithContext(context.Background(), 5, time.Millisecond, func() error {
			calls++
			return Permanent(sentinel)
		})
		if !errors.Is(err, sentinel) || calls != 1 {
			t.Errorf("err = %v, calls = %d", err, calls)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := RetryWithContext(ctx, 3, time.Hour, func() error { return errors.New("fail") })
		if err == nil {
			t.Error("expected an error")
		}
	})
}

func TestSlugify(t *testing.T) {
	tests := []struct{ in, want string }{
		{"PancakeSwap", "pancakeswap"},
		{"Trader Joe", "trader_joe"},
		{"Crème Brûlée DEX", "creme_brulee_dex"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSafeWriteAndReadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	want := map[string]int{"a": 1}
	if err := WriteFileJSON(path, want); err != nil {
		t.Fatalf("WriteFileJSON() error = %v", err)
	}
	got := map[string]int{}
	if err := ReadFileJSON(path, &got); err != nil {
		t.Fatalf("ReadFileJSON() error = %v", err)
	}
	if got["a"] != 1 {
		t.Errorf("got %v", got)
	}
	if !FileExists(path) || FileExists(path+".tmp") {
		t.Error("temporary file left behind or target missing")
	}
}

func TestParseDurationExtended(t *testing.T) {
	d, err := ParseDurationExtended("30d")
	if err != nil || d != 30*24*time.Hour {
		t.Errorf("ParseDurationExtended(30d) = %v, %v", d, err)
	}
	if _, err := ParseDurationExtended("soon"); err == nil {
		t.Error("expected error for garbage input")
	}
}
