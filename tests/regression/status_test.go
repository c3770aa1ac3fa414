package regression_test

import (
	"testing"
)

// TestStatus_ReturnsOK verifies that GET /api/status returns 200.
func TestStatus_ReturnsOK(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.get(t, "/api/status")
	defer resp.Body.Close()
	requireStatus(t, resp, 200)
}

// TestStatus_ContentTypeJSON verifies Content-Type is application/json.
func TestStatus_ContentTypeJSON(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.get(t, "/api/status")
	defer resp.Body.Close()
	requireContentType(t, resp, "application/json")
}

// TestStatus_Shape verifies the response has the expected top-level keys.
func TestStatus_Shape(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.get(t, "/api/status")

	var body struct {
		Version  string `json:"version"`
		Progress struct {
			State string `json:"state"`
		} `json:"progress"`
		Schedule *struct {
			Cron string `json:"cron"`
		} `json:"schedule"`
	}
	decodeJSON(t, resp, &body)

	if body.Version == "" {
		t.Error("expected version to be non-empty")
	}
	if body.Progress.State == "" {
		t.Error("expected progress.state to be non-empty")
	}
}

func TestLogs_Shape(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.get(t, "/api/logs")
	requireStatus(t, resp, 200)

	var body struct {
		Items []struct {
			Message string `json:"message"`
			Line    string `json:"line"`
		} `json:"items"`
	}
	decodeJSON(t, resp, &body)
	for _, it := range body.Items {
		if it.Line == "" {
			t.Errorf("log item without rendered line: %+v", it)
		}
	}
}
