package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"tripguard/internal/config"
	httpapi "tripguard/internal/http"
	"tripguard/internal/http/handlers"
	"tripguard/internal/infra"
	"tripguard/internal/modules/appeal"
	"tripguard/internal/modules/deviation"
	"tripguard/internal/modules/dispute"
	"tripguard/internal/modules/earlycomp"
	"tripguard/internal/modules/emergency"
	"tripguard/internal/modules/profile"
	"tripguard/internal/modules/session"
	"tripguard/internal/modules/speed"
	"tripguard/internal/modules/strike"
	"tripguard/internal/modules/suspension"
	"tripguard/internal/modules/violation"
)

type stubVerifier struct{}

func (stubVerifier) VerifyIDToken(_ context.Context, _ string) (*infra.FirebaseToken, error) {
	return &infra.FirebaseToken{
		UID:    "user-1",
		Claims: map[string]interface{}{"role": "admin"},
	}, nil
}

// buildHandler wires the full API against in-memory stores.
func buildHandler(t *testing.T) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	log := logrus.NewEntry(logger)
	pol := config.DefaultPolicy()

	suspensions := suspension.NewService(suspension.NewMemStore(), pol, log)
	strikes := strike.NewService(strike.NewMemStore(), suspensions, pol, log)
	violations := violation.NewService(violation.NewMemStore(), strikes, nil, log)
	appeals := appeal.NewService(appeal.NewMemStore(), strikes, suspensions, log)
	disputes := dispute.NewService(dispute.NewMemStore(), &dispute.LogProcessor{Log: log}, strikes, log)
	completions := earlycomp.NewService(earlycomp.NewMemStore(), pol, log)
	alerts := emergency.NewService(emergency.NewMemStore(), nil, nil, disputes, log)
	profiles := profile.NewService(profile.NewMemStore(), strikes, suspensions, violations, log)

	registry := session.NewRegistry(session.Ports{
		SpeedStore:     speed.NewMemStore(),
		DeviationStore: deviation.NewMemStore(),
		Violations:     violations,
		Completions:    completions,
		Profiles:       profiles,
		Emergencies:    alerts,
	}, pol, log)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go registry.Run(ctx)

	srv := httpapi.NewServer(httpapi.ServerDeps{
		Trips:    handlers.NewTripHandler(registry, completions, alerts, violations, nil),
		Safety:   handlers.NewSafetyHandler(profiles, strikes, suspensions, appeals, disputes),
		Admin:    handlers.NewAdminHandler(violations, appeals, disputes, suspensions, alerts, completions),
		Sessions: registry,
		Verifier: stubVerifier{},
		Log:      log,
	})
	return srv.Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	} else {
		buf.WriteString("{}")
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer testtoken")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var decoded map[string]any
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &decoded)
	}
	return w, decoded
}

// startTrip retries until the session registry goroutine is ready.
func startTrip(t *testing.T, h http.Handler, tripID string) {
	t.Helper()
	body := map[string]any{
		"trip_id":     tripID,
		"driver_id":   "driver-1",
		"rider_id":    "rider-1",
		"route":       []map[string]float64{{"lat": 25.0330, "lng": 121.5654}, {"lat": 25.0478, "lng": 121.5319}},
		"destination": map[string]float64{"lat": 25.0478, "lng": 121.5319},
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		w, _ := doJSON(t, h, http.MethodPost, "/api/trips", body)
		if w.Code == http.StatusCreated {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("trip start never succeeded, last status %d", w.Code)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTripLifecycleClean(t *testing.T) {
	h := buildHandler(t)
	startTrip(t, h, "trip-1")

	w, body := doJSON(t, h, http.MethodPost, "/api/trips", map[string]any{
		"trip_id": "trip-1", "driver_id": "driver-1",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate start = %d (%v), want 409", w.Code, body)
	}

	w, _ = doJSON(t, h, http.MethodPost, "/api/trips/trip-1/ticks", map[string]any{
		"lat": 25.0340, "lng": 121.5600, "speed": 42.0, "speed_limit": 50.0,
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("tick = %d, want 202", w.Code)
	}

	w, body = doJSON(t, h, http.MethodPost, "/api/trips/trip-1/complete", map[string]any{
		"location": map[string]float64{"lat": 25.0478, "lng": 121.5319},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("complete = %d (%v), want 200", w.Code, body)
	}
	if body["clean"] != true {
		t.Fatalf("complete body = %v, want clean", body)
	}

	w, _ = doJSON(t, h, http.MethodPost, "/api/trips/trip-1/ticks", map[string]any{
		"lat": 25.0478, "lng": 121.5319, "speed": 0.0,
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("tick after completion = %d, want 404", w.Code)
	}
}

func TestEarlyCompletionHeldAndRiderResponse(t *testing.T) {
	h := buildHandler(t)
	startTrip(t, h, "trip-2")

	// Completed roughly 8 km from the destination.
	w, body := doJSON(t, h, http.MethodPost, "/api/trips/trip-2/complete", map[string]any{
		"location": map[string]float64{"lat": 25.1200, "lng": 121.5319},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("complete = %d (%v)", w.Code, body)
	}
	if body["clean"] != false || body["payment_held"] != true {
		t.Fatalf("complete body = %v, want held record", body)
	}
	recordID, _ := body["record_id"].(string)
	if recordID == "" {
		t.Fatalf("no record_id in %v", body)
	}

	w, body = doJSON(t, h, http.MethodPost, "/api/completions/"+recordID+"/respond", map[string]any{
		"response": "okay",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("respond = %d (%v)", w.Code, body)
	}
	if body["payment_held"] != false {
		t.Fatalf("respond body = %v, want hold released", body)
	}
}

func TestReportReviewIssuesStrike(t *testing.T) {
	h := buildHandler(t)

	w, body := doJSON(t, h, http.MethodPost, "/api/trips/trip-3/report", map[string]any{
		"driver_id":   "driver-3",
		"description": "driver was texting the whole ride",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("report = %d (%v)", w.Code, body)
	}
	violationID, _ := body["violation_id"].(string)
	if violationID == "" {
		t.Fatalf("no violation_id in %v", body)
	}

	if w, body = doJSON(t, h, http.MethodPost, "/api/admin/violations/"+violationID+"/investigate", nil); w.Code != http.StatusOK {
		t.Fatalf("investigate = %d (%v)", w.Code, body)
	}

	w, body = doJSON(t, h, http.MethodPost, "/api/admin/violations/"+violationID+"/review", map[string]any{
		"confirm":    true,
		"resolution": "confirmed from chat transcript",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("review = %d (%v)", w.Code, body)
	}
	if body["strike_issued"] != true {
		t.Fatalf("review body = %v, want strike issued", body)
	}

	// The strike shows up on the driver's record and profile.
	w, body = doJSON(t, h, http.MethodGet, "/api/drivers/driver-3/strikes", nil)
	if w.Code != http.StatusOK || body["weighted_count"] != float64(1) {
		t.Fatalf("strikes = %d (%v)", w.Code, body)
	}
}

func TestDisputeReviewAndRefund(t *testing.T) {
	h := buildHandler(t)

	w, body := doJSON(t, h, http.MethodPost, "/api/disputes", map[string]any{
		"trip_id":   "trip-4",
		"driver_id": "driver-4",
		"amount":    2500,
		"currency":  "TWD",
		"reason":    "charged for a trip that ended early",
		"auto_hold": true,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("open dispute = %d (%v)", w.Code, body)
	}
	disputeID, _ := body["dispute_id"].(string)
	if disputeID == "" || body["escrow_id"] == nil {
		t.Fatalf("open dispute body = %v", body)
	}

	if w, body = doJSON(t, h, http.MethodPost, "/api/admin/disputes/"+disputeID+"/review", nil); w.Code != http.StatusOK {
		t.Fatalf("review = %d (%v)", w.Code, body)
	}

	w, body = doJSON(t, h, http.MethodPost, "/api/admin/disputes/"+disputeID+"/resolve", map[string]any{
		"refund_amount": 2500,
		"resolution":    "full refund, trip never reached the destination",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("resolve = %d (%v)", w.Code, body)
	}
	if body["status"] != string(dispute.StatusApproved) {
		t.Fatalf("resolve body = %v, want approved", body)
	}
}

func TestSOSRaisesAndResolvesAlert(t *testing.T) {
	h := buildHandler(t)

	w, body := doJSON(t, h, http.MethodPost, "/api/trips/trip-5/sos", map[string]any{
		"user_type": "rider",
		"location":  map[string]float64{"lat": 25.0, "lng": 121.5},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("sos = %d (%v)", w.Code, body)
	}
	alertID, _ := body["alert_id"].(string)

	w, body = doJSON(t, h, http.MethodGet, "/api/admin/alerts", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list alerts = %d", w.Code)
	}
	if alerts, ok := body["alerts"].([]any); !ok || len(alerts) != 1 {
		t.Fatalf("alerts = %v, want exactly one", body["alerts"])
	}

	w, _ = doJSON(t, h, http.MethodPost, "/api/admin/alerts/"+alertID+"/resolve", map[string]any{
		"resolution": "contacted rider, false alarm",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("resolve alert = %d", w.Code)
	}

	// A second resolution is rejected.
	w, _ = doJSON(t, h, http.MethodPost, "/api/admin/alerts/"+alertID+"/resolve", map[string]any{
		"resolution": "again",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("double resolve = %d, want 409", w.Code)
	}
}

func TestSafetyRatingFlow(t *testing.T) {
	h := buildHandler(t)

	w, body := doJSON(t, h, http.MethodPost, "/api/drivers/driver-6/safety-rating", map[string]any{"stars": 5})
	if w.Code != http.StatusOK {
		t.Fatalf("rate = %d (%v)", w.Code, body)
	}

	w, body = doJSON(t, h, http.MethodGet, "/api/drivers/driver-6/safety-profile", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("profile = %d", w.Code)
	}
	if body["safety_rating"] != float64(5) || body["total_ratings"] != float64(1) {
		t.Fatalf("profile body = %v", body)
	}

	w, _ = doJSON(t, h, http.MethodPost, "/api/drivers/driver-6/safety-rating", map[string]any{"stars": 9})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid rating = %d, want 400", w.Code)
	}
}
