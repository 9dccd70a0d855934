package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/routectl/ctlplane/internal/prefix"
)

func TestRegister_NoPanic(t *testing.T) {
	// sync.Once inside Register() makes repeated calls a no-op.
	Register()
	Register()
}

func TestXMPPMetrics_IncDecoderError(t *testing.T) {
	counter := XMPPDecoderErrorsTotal.WithLabelValues(prefix.FamilyInet4.String(), "bad-prefix")
	before := testutil.ToFloat64(counter)
	XMPPMetrics{}.IncDecoderError(prefix.FamilyInet4, "bad-prefix")
	after := testutil.ToFloat64(counter)
	if after != before+1 {
		t.Fatalf("expected counter to increment by 1, went from %v to %v", before, after)
	}
}
