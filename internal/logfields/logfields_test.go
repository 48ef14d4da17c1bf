package logfields

import (
	"log/slog"
	"testing"
	"time"
)

// TestHelperKeyNames verifies string-based helper key/value stability.
func TestHelperKeyNames(t *testing.T) {
	cases := []struct {
		name    string
		attrKey string
		attrVal string
		attr    slog.Attr
	}{
		{"PassID", KeyPassID, "p1", PassID("p1")},
		{"Stage", KeyStage, "transform", Stage("transform")},
		{"Path", KeyPath, "/tmp/x", Path("/tmp/x")},
		{"Step", KeyStep, "sass", Step("sass")},
		{"Entry", KeyEntry, "main", Entry("main")},
		{"Artifact", KeyArtifact, "resources/js/main.js", Artifact("resources/js/main.js")},
		{"Category", KeyCategory, "style", Category("style")},
		{"Method", KeyMethod, "GET", Method("GET")},
		{"UserAgent", KeyUserAgent, "ua", UserAgent("ua")},
		{"RemoteAddr", KeyRemoteAddr, "1.2.3.4", RemoteAddr("1.2.3.4")},
	}

	for _, tc := range cases {
		if tc.attr.Key != tc.attrKey {
			// Key drift would break log ingestion schemas.
			t.Fatalf("%s: expected key %s, got %s", tc.name, tc.attrKey, tc.attr.Key)
		}
		if got := tc.attr.Value.String(); got != tc.attrVal {
			t.Fatalf("%s: expected value %s, got %v", tc.name, tc.attrVal, got)
		}
	}
}

// TestNumericHelpers verifies keys for numeric & float helpers.
func TestNumericHelpers(t *testing.T) {
	if v := Status(200); v.Key != KeyStatus {
		t.Fatalf("Status key mismatch: %s", v.Key)
	}
	if v := Port(3000); v.Key != KeyPort {
		t.Fatalf("Port key mismatch: %s", v.Key)
	}
	if v := Count(3); v.Key != KeyCount {
		t.Fatalf("Count key mismatch: %s", v.Key)
	}
	if v := Duration(1500 * time.Microsecond); v.Key != KeyDurationMS || v.Value.Float64() != 1.5 {
		t.Fatalf("Duration mismatch: %s=%v", v.Key, v.Value)
	}
}

// TestErrorHelper ensures Error() handles nil and non-nil errors predictably.
func TestErrorHelper(t *testing.T) {
	attr := Error(nil)
	if attr.Key != KeyError {
		t.Fatalf("Error key mismatch: %s", attr.Key)
	}
	if attr.Value.String() != "" {
		t.Fatalf("Expected empty error string, got %s", attr.Value.String())
	}
	attr = Error(errTest{})
	if attr.Value.String() != "err-test" {
		t.Fatalf("Expected 'err-test', got %s", attr.Value.String())
	}
}

type errTest struct{}

func (e errTest) Error() string { return "err-test" }
