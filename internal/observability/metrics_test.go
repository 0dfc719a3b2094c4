package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRealtimeCollectors(t *testing.T) {
	before := testutil.ToFloat64(streamsActive)
	StreamOpened()
	StreamOpened()
	StreamClosed()
	if got := testutil.ToFloat64(streamsActive) - before; got != 1 {
		t.Fatalf("streams_active delta=%v want 1", got)
	}

	msgBefore := testutil.ToFloat64(eventsTotal.WithLabelValues("message"))
	EventRelayed("message")
	if got := testutil.ToFloat64(eventsTotal.WithLabelValues("message")) - msgBefore; got != 1 {
		t.Fatalf("events_total{message} delta=%v want 1", got)
	}

	ovBefore := testutil.ToFloat64(streamOverflows)
	StreamOverflowed()
	if got := testutil.ToFloat64(streamOverflows) - ovBefore; got != 1 {
		t.Fatalf("overflows delta=%v want 1", got)
	}
}

func TestSMSDispatched_ByOutcome(t *testing.T) {
	for _, outcome := range []string{SMSDelivered, SMSFailed, SMSSuppressed} {
		before := testutil.ToFloat64(smsDispatch.WithLabelValues(outcome))
		SMSDispatched(outcome)
		if got := testutil.ToFloat64(smsDispatch.WithLabelValues(outcome)) - before; got != 1 {
			t.Fatalf("%s delta=%v want 1", outcome, got)
		}
	}
}
