package updater

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormalizeVersion(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"v1.2.3", "1.2.3"},
		{"1.2.3", "1.2.3"},
		{"", ""},
		{"vv1.0.0", "v1.0.0"},
	}
	for _, tt := range tests {
		if got := normalizeVersion(tt.input); got != tt.want {
			t.Errorf("normalizeVersion(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestIsNewer(t *testing.T) {
	tests := []struct {
		name    string
		current string
		latest  string
		want    bool
	}{
		{"newer patch", "0.2.0", "0.2.1", true},
		{"newer minor", "0.2.0", "0.3.0", true},
		{"newer major", "1.9.9", "2.0.0", true},
		{"same version", "0.2.0", "0.2.0", false},
		{"older", "0.3.0", "0.2.0", false},
		{"dev never updates", "dev", "0.2.0", false},
		{"empty latest", "0.2.0", "", false},
		{"two part current", "0.2", "0.3.0", true},
		{"numeric not lexicographic", "0.9.0", "0.10.0", true},
		{"prerelease suffix ignored", "0.3.0", "0.3.1rc1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNewer(tt.current, tt.latest); got != tt.want {
				t.Errorf("isNewer(%q, %q) = %v, want %v", tt.current, tt.latest, got, tt.want)
			}
		})
	}
}

func withTestServer(t *testing.T, ts *httptest.Server) {
	t.Helper()
	origEndpoint := releaseEndpoint
	origClient := httpClient
	releaseEndpoint = ts.URL
	httpClient = ts.Client()
	t.Cleanup(func() {
		releaseEndpoint = origEndpoint
		httpClient = origClient
	})
}

func releaseServer(t *testing.T, release ReleaseInfo, statusCode int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(statusCode)
		if statusCode == http.StatusOK {
			if err := json.NewEncoder(w).Encode(release); err != nil {
				t.Errorf("encoding test response: %v", err)
			}
		}
	}))
}

func TestCheckVersion_UpdateAvailable(t *testing.T) {
	release := ReleaseInfo{TagName: "v0.3.0", HTMLURL: "https://example.com/releases/v0.3.0"}
	ts := releaseServer(t, release, http.StatusOK)
	defer ts.Close()
	withTestServer(t, ts)

	result := CheckVersion("v0.2.0")
	if !result.UpdateAvailable {
		t.Error("expected an available update")
	}
	if result.LatestVersion != "0.3.0" || result.CurrentVersion != "0.2.0" {
		t.Errorf("versions = %q -> %q", result.CurrentVersion, result.LatestVersion)
	}
	if result.ReleaseURL != release.HTMLURL {
		t.Errorf("release URL = %q", result.ReleaseURL)
	}
}

func TestCheckVersion_AlreadyLatest(t *testing.T) {
	ts := releaseServer(t, ReleaseInfo{TagName: "v0.2.0"}, http.StatusOK)
	defer ts.Close()
	withTestServer(t, ts)

	if CheckVersion("v0.2.0").UpdateAvailable {
		t.Error("no update expected at latest")
	}
}

func TestCheckVersion_NetworkErrorIsQuiet(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	ts.Close()
	withTestServer(t, ts)

	result := CheckVersion("v0.2.0")
	if result.UpdateAvailable {
		t.Error("no update expected on network error")
	}
	if result.CurrentVersion != "0.2.0" {
		t.Errorf("CurrentVersion = %q", result.CurrentVersion)
	}
}

func TestCheckVersion_APIErrorStatus(t *testing.T) {
	ts := releaseServer(t, ReleaseInfo{}, http.StatusForbidden)
	defer ts.Close()
	withTestServer(t, ts)

	if CheckVersion("v0.2.0").UpdateAvailable {
		t.Error("no update expected on API error")
	}
}
