package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetProgress(t *testing.T) {
	c := Capture{Supervisor: "test-progress", ID: 1}
	defer Delete(c)

	SetProgress(c, Progress{Frames: 250, FPS: 25, Bitrate: 838900, Speed: 1.01, OutputBytes: 1 << 20, EncodedSeconds: 10})

	if got := testutil.ToFloat64(captureFrames.WithLabelValues("test-progress", "1")); got != 250 {
		t.Errorf("frames gauge = %v, want 250", got)
	}
	if got := testutil.ToFloat64(captureBitrate.WithLabelValues("test-progress", "1")); got != 838900 {
		t.Errorf("bitrate gauge = %v, want 838900", got)
	}
	if got := testutil.ToFloat64(captureOutputBytes.WithLabelValues("test-progress", "1")); got != 1<<20 {
		t.Errorf("output bytes gauge = %v, want %d", got, 1<<20)
	}
}

func TestSetStateOneHot(t *testing.T) {
	c := Capture{Supervisor: "test-state", ID: 2}
	defer Delete(c)

	SetState(c, "running")
	SetState(c, "exited")

	for _, s := range States {
		want := 0.0
		if s == "exited" {
			want = 1
		}
		if got := testutil.ToFloat64(captureState.WithLabelValues("test-state", "2", s)); got != want {
			t.Errorf("state %s = %v, want %v", s, got, want)
		}
	}
}

func TestDelete(t *testing.T) {
	c := Capture{Supervisor: "test-delete", ID: 3}
	SetProgress(c, Progress{Frames: 1})
	SetState(c, "running")
	IncProgressDropped(c)
	Delete(c)

	if captureFrames.DeleteLabelValues("test-delete", "3") {
		t.Error("frames series survived Delete")
	}
	if captureState.DeleteLabelValues("test-delete", "3", "running") {
		t.Error("state series survived Delete")
	}
	if progressDropped.DeleteLabelValues("test-delete", "3") {
		t.Error("dropped series survived Delete")
	}
}

func TestSupervisorsDoNotShareSeries(t *testing.T) {
	a := Capture{Supervisor: "test-a", ID: 1}
	b := Capture{Supervisor: "test-b", ID: 1}
	defer Delete(b)

	SetProgress(a, Progress{Frames: 10})
	SetProgress(b, Progress{Frames: 20})

	if got := testutil.ToFloat64(captureFrames.WithLabelValues("test-a", "1")); got != 10 {
		t.Errorf("supervisor a frames = %v, want 10", got)
	}
	if got := testutil.ToFloat64(captureFrames.WithLabelValues("test-b", "1")); got != 20 {
		t.Errorf("supervisor b frames = %v, want 20", got)
	}

	Delete(a)
	if !captureFrames.DeleteLabelValues("test-b", "1") {
		t.Error("Delete of one supervisor's capture removed the other's series")
	}
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(launchFailures)
	IncLaunchFailures()
	if got := testutil.ToFloat64(launchFailures); got != before+1 {
		t.Errorf("launch failures = %v, want %v", got, before+1)
	}

	beforeField := testutil.ToFloat64(fieldErrors.WithLabelValues("frame"))
	IncFieldErrors("frame")
	if got := testutil.ToFloat64(fieldErrors.WithLabelValues("frame")); got != beforeField+1 {
		t.Errorf("field errors = %v, want %v", got, beforeField+1)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	IncStarted()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "capturenode_capture_started_total") {
		t.Error("started counter missing from exposition")
	}
}
