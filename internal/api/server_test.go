package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nerrad567/gray-logic-cloud/internal/door"
	"github.com/nerrad567/gray-logic-cloud/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-cloud/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-cloud/internal/particle"
)

const testJWTSecret = "0123456789abcdef0123456789abcdef"

// ─── Mock Dependencies ──────────────────────────────────────────────────────

type fakeCloudDispatcher struct {
	configured     bool
	stats          particle.ThrottleStats
	validateOnline bool
	validateErr    error
	installed      []particle.Credentials
	cleared        bool
}

func (f *fakeCloudDispatcher) Configured() bool                      { return f.configured }
func (f *fakeCloudDispatcher) ThrottleStats() particle.ThrottleStats { return f.stats }

func (f *fakeCloudDispatcher) ValidateCredentials(_ context.Context, _ particle.Credentials) (bool, error) {
	return f.validateOnline, f.validateErr
}

func (f *fakeCloudDispatcher) SetCredentials(creds particle.Credentials) {
	f.installed = append(f.installed, creds)
}

func (f *fakeCloudDispatcher) ClearCredentials() { f.cleared = true }

type fakeDoor struct {
	status    door.Status
	err       error
	requested []string
}

func (f *fakeDoor) Status() door.Status { return f.status }

func (f *fakeDoor) RequestTargetByName(value string) error {
	if f.err != nil {
		return f.err
	}
	f.requested = append(f.requested, value)
	return nil
}

type fakeStore struct {
	creds    particle.Credentials
	has      bool
	saveErr  error
	eraseErr error
}

func (f *fakeStore) Load(context.Context) (particle.Credentials, error) {
	if !f.has {
		return particle.Credentials{}, particle.ErrNotConfigured
	}
	return f.creds, nil
}

func (f *fakeStore) Save(_ context.Context, creds particle.Credentials) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.creds = creds
	f.has = true
	return nil
}

func (f *fakeStore) Erase(context.Context) error {
	if f.eraseErr != nil {
		return f.eraseErr
	}
	f.has = false
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func newTestServer(t *testing.T, dispatcher *fakeCloudDispatcher, doorCtrl DoorController, store particle.CredentialStore) *Server {
	t.Helper()
	s, err := New(Deps{
		Config:     config.APIConfig{},
		Security:   config.SecurityConfig{JWT: config.JWTConfig{Secret: testJWTSecret}},
		Logger:     logging.Default(),
		Dispatcher: dispatcher,
		Door:       doorCtrl,
		Store:      store,
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func signedToken(t *testing.T, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "tester",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return token
}

func doRequest(t *testing.T, s *Server, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.buildRouter().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var decoded map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("response is not valid JSON: %v (%s)", err, rec.Body.String())
	}
	return decoded
}

var testStoredCreds = particle.Credentials{
	AccessToken: strings.Repeat("a", particle.AccessTokenLength),
	DeviceID:    strings.Repeat("d", particle.DeviceIDLength),
}

// ─── Authentication ─────────────────────────────────────────────────────────

func TestHealthRequiresNoAuth(t *testing.T) {
	s := newTestServer(t, &fakeCloudDispatcher{configured: true}, nil, &fakeStore{})

	rec := doRequest(t, s, http.MethodGet, "/api/v1/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
	if body["configured"] != true {
		t.Errorf("configured field = %v, want true", body["configured"])
	}
}

func TestProtectedRoutesRejectMissingToken(t *testing.T) {
	s := newTestServer(t, &fakeCloudDispatcher{}, &fakeDoor{}, &fakeStore{})

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/door"},
		{http.MethodPut, "/api/v1/door/target"},
		{http.MethodGet, "/api/v1/throttle"},
		{http.MethodGet, "/api/v1/credentials"},
	}

	for _, p := range paths {
		rec := doRequest(t, s, p.method, p.path, "", "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s status = %d, want 401", p.method, p.path, rec.Code)
		}
	}
}

func TestAuthRejectsWrongSecret(t *testing.T) {
	s := newTestServer(t, &fakeCloudDispatcher{}, &fakeDoor{}, &fakeStore{})

	forged := signedToken(t, "wrong-secret-wrong-secret-wrong!")
	rec := doRequest(t, s, http.MethodGet, "/api/v1/door", forged, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAuthRejectsExpiredToken(t *testing.T) {
	s := newTestServer(t, &fakeCloudDispatcher{}, &fakeDoor{}, &fakeStore{})

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "tester",
		"exp": time.Now().Add(-time.Hour).Unix(),
	}).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}

	rec := doRequest(t, s, http.MethodGet, "/api/v1/door", expired, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

// ─── Door Endpoints ─────────────────────────────────────────────────────────

func TestGetDoor(t *testing.T) {
	ctrl := &fakeDoor{status: door.Status{
		Device:  "garage-door",
		Current: door.StateOpening,
		Target:  door.StateOpen,
	}}
	s := newTestServer(t, &fakeCloudDispatcher{}, ctrl, &fakeStore{})

	rec := doRequest(t, s, http.MethodGet, "/api/v1/door", signedToken(t, testJWTSecret), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["current_state"] != "opening" {
		t.Errorf("current_state = %v, want opening", body["current_state"])
	}
}

func TestGetDoorDisabled(t *testing.T) {
	s := newTestServer(t, &fakeCloudDispatcher{}, nil, &fakeStore{})

	rec := doRequest(t, s, http.MethodGet, "/api/v1/door", signedToken(t, testJWTSecret), "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestSetDoorTarget(t *testing.T) {
	ctrl := &fakeDoor{status: door.Status{Current: door.StateOpening, Target: door.StateOpen}}
	s := newTestServer(t, &fakeCloudDispatcher{}, ctrl, &fakeStore{})

	rec := doRequest(t, s, http.MethodPut, "/api/v1/door/target",
		signedToken(t, testJWTSecret), `{"target":"open"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (%s)", rec.Code, rec.Body.String())
	}
	if len(ctrl.requested) != 1 || ctrl.requested[0] != "open" {
		t.Errorf("requested = %v, want [open]", ctrl.requested)
	}
}

func TestSetDoorTargetErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		doorErr    error
		wantStatus int
	}{
		{"command in flight", `{"target":"open"}`, door.ErrCommandInFlight, http.StatusConflict},
		{"transitional target", `{"target":"opening"}`, door.ErrInvalidTarget, http.StatusBadRequest},
		{"unknown target", `{"target":"ajar"}`, door.ErrUnknownState, http.StatusBadRequest},
		{"missing target", `{}`, nil, http.StatusBadRequest},
		{"invalid JSON", `{`, nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := &fakeDoor{err: tt.doorErr}
			s := newTestServer(t, &fakeCloudDispatcher{}, ctrl, &fakeStore{})

			rec := doRequest(t, s, http.MethodPut, "/api/v1/door/target",
				signedToken(t, testJWTSecret), tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestGetThrottle(t *testing.T) {
	dispatcher := &fakeCloudDispatcher{stats: particle.ThrottleStats{
		Enabled:   true,
		Window:    10 * time.Second,
		CacheSize: 10,
		Tracked:   2,
	}}
	s := newTestServer(t, dispatcher, nil, &fakeStore{})

	rec := doRequest(t, s, http.MethodGet, "/api/v1/throttle", signedToken(t, testJWTSecret), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["tracked"] != float64(2) {
		t.Errorf("tracked = %v, want 2", body["tracked"])
	}
}

// ─── Credential Endpoints ───────────────────────────────────────────────────

func TestGetCredentialsNotConfigured(t *testing.T) {
	s := newTestServer(t, &fakeCloudDispatcher{}, nil, &fakeStore{})

	rec := doRequest(t, s, http.MethodGet, "/api/v1/credentials", signedToken(t, testJWTSecret), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["configured"] != false {
		t.Errorf("configured = %v, want false", body["configured"])
	}
}

func TestGetCredentialsMasksToken(t *testing.T) {
	s := newTestServer(t, &fakeCloudDispatcher{}, nil, &fakeStore{creds: testStoredCreds, has: true})

	rec := doRequest(t, s, http.MethodGet, "/api/v1/credentials", signedToken(t, testJWTSecret), "")
	body := decodeBody(t, rec)
	if body["access_token"] != "aaaa..." {
		t.Errorf("access_token = %v, want masked form", body["access_token"])
	}
	if body["device_id"] != testStoredCreds.DeviceID {
		t.Errorf("device_id = %v", body["device_id"])
	}
}

func TestSetCredentials(t *testing.T) {
	dispatcher := &fakeCloudDispatcher{validateOnline: true}
	store := &fakeStore{}
	s := newTestServer(t, dispatcher, nil, store)

	payload := `{"access_token":"` + testStoredCreds.AccessToken + `","device_id":"` + testStoredCreds.DeviceID + `"}`
	rec := doRequest(t, s, http.MethodPut, "/api/v1/credentials", signedToken(t, testJWTSecret), payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}

	if !store.has || store.creds != testStoredCreds {
		t.Error("credentials were not persisted")
	}
	if len(dispatcher.installed) != 1 || dispatcher.installed[0] != testStoredCreds {
		t.Error("credentials were not installed on the dispatcher")
	}
	body := decodeBody(t, rec)
	if body["online"] != true {
		t.Errorf("online = %v, want true", body["online"])
	}
}

func TestSetCredentialsWrongLength(t *testing.T) {
	store := &fakeStore{}
	s := newTestServer(t, &fakeCloudDispatcher{}, nil, store)

	rec := doRequest(t, s, http.MethodPut, "/api/v1/credentials",
		signedToken(t, testJWTSecret), `{"access_token":"short","device_id":"short"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if store.has {
		t.Error("invalid credentials must not be persisted")
	}
}

func TestSetCredentialsUpstreamRejection(t *testing.T) {
	dispatcher := &fakeCloudDispatcher{validateErr: particle.ErrTransport}
	store := &fakeStore{}
	s := newTestServer(t, dispatcher, nil, store)

	payload := `{"access_token":"` + testStoredCreds.AccessToken + `","device_id":"` + testStoredCreds.DeviceID + `"}`
	rec := doRequest(t, s, http.MethodPut, "/api/v1/credentials", signedToken(t, testJWTSecret), payload)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
	if store.has {
		t.Error("rejected credentials must not be persisted")
	}
	if len(dispatcher.installed) != 0 {
		t.Error("rejected credentials must not be installed")
	}
}

func TestDeleteCredentials(t *testing.T) {
	dispatcher := &fakeCloudDispatcher{}
	store := &fakeStore{creds: testStoredCreds, has: true}
	s := newTestServer(t, dispatcher, nil, store)

	rec := doRequest(t, s, http.MethodDelete, "/api/v1/credentials", signedToken(t, testJWTSecret), "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if store.has {
		t.Error("credentials were not erased")
	}
	if !dispatcher.cleared {
		t.Error("dispatcher credentials were not cleared")
	}
}
