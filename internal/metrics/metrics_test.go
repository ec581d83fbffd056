package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordIngested(t *testing.T) {
	before := testutil.ToFloat64(EmailsIngested.WithLabelValues("stored"))
	RecordIngested("stored", 3)
	if got := testutil.ToFloat64(EmailsIngested.WithLabelValues("stored")) - before; got != 3 {
		t.Errorf("stored delta = %v, want 3", got)
	}
}

func TestRecordExternalCall(t *testing.T) {
	okBefore := testutil.ToFloat64(ExternalCalls.WithLabelValues("gmail", "ok"))
	errBefore := testutil.ToFloat64(ExternalCalls.WithLabelValues("gmail", "error"))

	RecordExternalCall("gmail", nil)
	RecordExternalCall("gmail", errors.New("boom"))

	if got := testutil.ToFloat64(ExternalCalls.WithLabelValues("gmail", "ok")) - okBefore; got != 1 {
		t.Errorf("ok delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(ExternalCalls.WithLabelValues("gmail", "error")) - errBefore; got != 1 {
		t.Errorf("error delta = %v, want 1", got)
	}
}

func TestRecordSearch(t *testing.T) {
	RecordSearch("hybrid", 20*time.Millisecond)
	if n := testutil.CollectAndCount(SearchDuration); n == 0 {
		t.Error("expected search histogram series")
	}
}
