package obslog

import "testing"

func TestNew_Levels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		logger, err := New(level)
		if err != nil {
			t.Fatalf("level %q: unexpected error: %v", level, err)
		}
		if logger == nil {
			t.Fatalf("level %q: expected non-nil logger", level)
		}
	}
}
