package cloudapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/use-agent/cloudbrowser/config"
	"github.com/use-agent/cloudbrowser/models"
)

func testClient(host string) *Client {
	return NewClient(config.CloudBrowserConfig{
		APIHost:  host,
		APIToken: "some_token",
		BrowserSettings: map[string]any{
			"locale": "en-US",
		},
	})
}

func TestCreateProfileWireFormat(t *testing.T) {
	var gotPath, gotToken string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("x-cloud-api-token")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"id":     "prof-123",
			"ws_url": "ws://127.0.0.1:9222/devtools/browser/abc",
		})
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	profile, err := c.CreateProfile(context.Background(), "socks5://someproxy")
	if err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}

	if gotPath != "/profiles/one_time" {
		t.Errorf("path = %q, want /profiles/one_time", gotPath)
	}
	if gotToken != "some_token" {
		t.Errorf("token header = %q", gotToken)
	}
	if gotBody["proxy"] != "socks5://someproxy" {
		t.Errorf("proxy in body = %v", gotBody["proxy"])
	}
	settings, _ := gotBody["browser_settings"].(map[string]any)
	if settings["locale"] != "en-US" {
		t.Errorf("browser_settings in body = %v", gotBody["browser_settings"])
	}

	if profile.ID != "prof-123" {
		t.Errorf("profile ID = %q", profile.ID)
	}
	if profile.WSURL == "" {
		t.Error("profile WSURL empty")
	}
}

func TestCreateProfileOmitsEmptyProxy(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]string{"ws_url": "ws://example/devtools"})
	}))
	defer srv.Close()

	profile, err := testClient(srv.URL).CreateProfile(context.Background(), "")
	if err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
	if _, present := gotBody["proxy"]; present {
		t.Errorf("empty proxy should be omitted, body = %v", gotBody)
	}
	// A response without an id still gets a local identity.
	if profile.ID == "" {
		t.Error("expected a generated profile ID")
	}
}

func TestCreateProfileErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusPaymentRequired)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).CreateProfile(context.Background(), "")
	if err == nil {
		t.Fatal("expected error on non-2xx status")
	}
	if models.CodeOf(err) != models.ErrCodeProvisioning {
		t.Errorf("expected %s, got %v", models.ErrCodeProvisioning, err)
	}
}

func TestCreateProfileMissingWSURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "prof-1"})
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).CreateProfile(context.Background(), "")
	if err == nil {
		t.Fatal("expected error when ws_url is missing")
	}
	if models.CodeOf(err) != models.ErrCodeProvisioning {
		t.Errorf("expected %s, got %v", models.ErrCodeProvisioning, err)
	}
}

func TestDestroyProfile(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := testClient(srv.URL).DestroyProfile(context.Background(), "prof-123"); err != nil {
		t.Fatalf("DestroyProfile: %v", err)
	}
	if gotMethod != http.MethodDelete {
		t.Errorf("method = %s, want DELETE", gotMethod)
	}
	if gotPath != "/profiles/prof-123" {
		t.Errorf("path = %q", gotPath)
	}
}
