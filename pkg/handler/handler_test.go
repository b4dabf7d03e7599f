package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/app"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/config"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/pkg/handler"
)

func TestMain(m *testing.M) {
	log.SetFormatter(&log.JSONFormatter{})
	os.Exit(m.Run())
}

func newServer(t *testing.T) *httptest.Server {
	t.Setenv("SHIFTADVISOR_DATA_DIR", t.TempDir())
	t.Setenv("FOREST_TREES", "10")
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := config.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	a, err := app.Build(cfg, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(a.Close)

	ts := httptest.NewServer(handler.CreateRouter(a))
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, ts *httptest.Server, method, path, token string, body interface{}) (int, map[string]interface{}) {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, _ := http.NewRequest(method, ts.URL+path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	result := map[string]interface{}{}
	var raw interface{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err == nil {
		switch v := raw.(type) {
		case map[string]interface{}:
			result = v
		case []interface{}:
			result["items"] = v
		}
	}

	return resp.StatusCode, result
}

func login(t *testing.T, ts *httptest.Server, user string) string {
	creds := map[string]string{"username": user, "password": "secret"}

	if status, body := do(t, ts, http.MethodPost, "/api/accounts", "", creds); status != http.StatusCreated {
		t.Fatalf("register returned %d %v", status, body)
	}

	status, body := do(t, ts, http.MethodPost, "/api/sessions", "", creds)
	if status != http.StatusOK {
		t.Fatalf("login returned %d %v", status, body)
	}

	return body["token"].(string)
}

func TestHealth(t *testing.T) {
	ts := newServer(t)

	if status, _ := do(t, ts, http.MethodGet, "/health", "", nil); status != http.StatusOK {
		t.Errorf("health returned %d", status)
	}
}

func TestShiftEndpointsRequireToken(t *testing.T) {
	ts := newServer(t)

	if status, _ := do(t, ts, http.MethodGet, "/api/shifts", "", nil); status != http.StatusUnauthorized {
		t.Errorf("GET /api/shifts without token returned %d, want 401", status)
	}
	if status, _ := do(t, ts, http.MethodGet, "/api/shifts", "garbage", nil); status != http.StatusUnauthorized {
		t.Errorf("GET /api/shifts with bad token returned %d, want 401", status)
	}
}

func TestRegistrationConflictsAndBadLogins(t *testing.T) {
	ts := newServer(t)
	login(t, ts, "alice")

	creds := map[string]string{"username": "alice", "password": "other"}
	if status, _ := do(t, ts, http.MethodPost, "/api/accounts", "", creds); status != http.StatusConflict {
		t.Errorf("duplicate register returned %d, want 409", status)
	}
	if status, _ := do(t, ts, http.MethodPost, "/api/sessions", "", creds); status != http.StatusUnauthorized {
		t.Errorf("wrong password returned %d, want 401", status)
	}

	bad := map[string]string{"username": "../etc", "password": "x"}
	if status, _ := do(t, ts, http.MethodPost, "/api/accounts", "", bad); status != http.StatusBadRequest {
		t.Errorf("invalid username returned %d, want 400", status)
	}
}

func TestLogTrainAndRecommend(t *testing.T) {
	ts := newServer(t)
	token := login(t, ts, "alice")

	if status, _ := do(t, ts, http.MethodGet, "/api/best-hour", token, nil); status != http.StatusNotFound {
		t.Errorf("best-hour before training returned %d, want 404", status)
	}

	for i := 0; i < 9; i++ {
		shift := map[string]interface{}{
			"date":      "2024-05-12",
			"startHour": fmt.Sprintf("%02d:00", 10+i),
			"earnings":  20,
			"weather":   "Clear",
			"traffic":   5,
		}
		if status, body := do(t, ts, http.MethodPost, "/api/shifts", token, shift); status != http.StatusCreated {
			t.Fatalf("log shift returned %d %v", status, body)
		}
	}

	status, body := do(t, ts, http.MethodPost, "/api/model", token, nil)
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("training on 9 records returned %d, want 422", status)
	}
	if body["count"] != float64(9) {
		t.Errorf("count = %v, want 9", body["count"])
	}

	shift := map[string]interface{}{"date": "2024-05-12", "startHour": "07:00 PM", "earnings": 20, "weather": "Clear", "traffic": 5}
	do(t, ts, http.MethodPost, "/api/shifts", token, shift)

	if status, body := do(t, ts, http.MethodPost, "/api/model", token, nil); status != http.StatusOK {
		t.Fatalf("training returned %d %v", status, body)
	}

	status, body = do(t, ts, http.MethodGet, "/api/best-hour?weather=Clear&traffic=5", token, nil)
	if status != http.StatusOK {
		t.Fatalf("best-hour returned %d %v", status, body)
	}
	hour := body["hour"].(float64)
	if hour < 10 || hour > 22 {
		t.Errorf("hour = %v, want a value in 10-22", hour)
	}
	if body["predictedEarnings"] != float64(20) {
		t.Errorf("predictedEarnings = %v, want 20", body["predictedEarnings"])
	}

	status, body = do(t, ts, http.MethodGet, "/api/status", token, nil)
	if status != http.StatusOK || body["state"] != "trained" {
		t.Errorf("status returned %d %v, want trained", status, body)
	}
}

func TestRejectedShiftIsNotStored(t *testing.T) {
	ts := newServer(t)
	token := login(t, ts, "bob")

	shift := map[string]interface{}{"date": "2024-05-12", "startHour": "10:00 AM", "earnings": -5}
	if status, _ := do(t, ts, http.MethodPost, "/api/shifts", token, shift); status != http.StatusBadRequest {
		t.Errorf("negative earnings returned %d, want 400", status)
	}

	shift = map[string]interface{}{"date": "2024-05-12", "startHour": "10:00 AM", "earnings": 5, "weather": "light\r\nrain"}
	if status, _ := do(t, ts, http.MethodPost, "/api/shifts", token, shift); status != http.StatusBadRequest {
		t.Errorf("weather with a line break returned %d, want 400", status)
	}

	status, body := do(t, ts, http.MethodGet, "/api/shifts", token, nil)
	if status != http.StatusOK {
		t.Fatalf("history returned %d", status)
	}
	if items, _ := body["items"].([]interface{}); len(items) != 0 {
		t.Errorf("history has %d shifts, want 0", len(items))
	}
}

func TestAccountsAreIsolated(t *testing.T) {
	ts := newServer(t)
	alice := login(t, ts, "alice")
	bob := login(t, ts, "bob")

	shift := map[string]interface{}{"date": "2024-05-12", "startHour": "12", "earnings": 40}
	do(t, ts, http.MethodPost, "/api/shifts", alice, shift)

	_, body := do(t, ts, http.MethodGet, "/api/shifts", bob, nil)
	if items, _ := body["items"].([]interface{}); len(items) != 0 {
		t.Errorf("bob sees %d of alice's shifts", len(items))
	}
}

func TestCORSDoesNotAllowCredentials(t *testing.T) {
	ts := newServer(t)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	req.Header.Set("Origin", "https://example.org")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Credentials"); got != "" {
		t.Errorf("Access-Control-Allow-Credentials = %q, want it unset", got)
	}
}
