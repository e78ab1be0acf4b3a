package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ulisao/NuevoAnden/internal/authz"
	core "github.com/ulisao/NuevoAnden/internal/bookings"
	"github.com/ulisao/NuevoAnden/internal/config"
	"github.com/ulisao/NuevoAnden/internal/db"
	gateway "github.com/ulisao/NuevoAnden/internal/payments"
	"github.com/ulisao/NuevoAnden/internal/testutil"
)

const webhookSecret = "whsec_test"

var (
	owner    = &authz.Identity{ID: "user_1", Email: "ana@example.com", Name: "Ana"}
	stranger = &authz.Identity{ID: "user_2", Email: "bruno@example.com", Name: "Bruno"}
)

func testConfig(apiBase string) *config.Config {
	conf := &config.Config{}
	conf.App.Name = "Test Club"
	conf.App.BaseURL = "https://club.example.com"
	conf.Booking = config.BookingConfig{
		OpenHour:          0,
		CloseHour:         24,
		MaxActivePerUser:  2,
		PendingTTLMinutes: 15,
		Timezone:          "UTC",
	}
	conf.Courts = []config.CourtConfig{
		{Type: "5v5", Label: "Cancha 5", HourlyPrice: 28000},
	}
	conf.Admin.Email = "owner@club.com"
	conf.Payments = config.PaymentsConfig{
		APIBase:       apiBase,
		Currency:      "ARS",
		AccessToken:   "TEST-token",
		WebhookSecret: webhookSecret,
	}
	return conf
}

func resetHandlers() {
	svc = nil
	client = nil
	policy = nil
	notifier = nil
	cfg = nil
	initOnce = sync.Once{}
}

// setupHandlers wires the handler state to a fresh service and a fake
// provider. The provider handler may be nil when a test never reaches it.
func setupHandlers(t *testing.T, provider http.Handler) *core.Service {
	t.Helper()

	apiBase := "https://api.invalid"
	if provider != nil {
		server := httptest.NewServer(provider)
		t.Cleanup(server.Close)
		apiBase = server.URL
	}

	database := testutil.NewTestDB(t)
	conf := testConfig(apiBase)
	pol := authz.NewPolicy(conf.Admin.Email)
	service := core.NewService(database, pol, conf)

	resetHandlers()
	InitHandlers(service, gateway.NewClient(conf.Payments), pol, nil, conf)
	t.Cleanup(resetHandlers)
	return service
}

func withIdentity(r *http.Request, identity *authz.Identity) *http.Request {
	if identity == nil {
		return r
	}
	return r.WithContext(authz.ContextWithIdentity(r.Context(), identity))
}

func seedPending(t *testing.T, service *core.Service) db.Reservation {
	t.Helper()
	date := time.Now().UTC().AddDate(0, 0, 7).Format("2006-01-02")
	created, err := service.Create(context.Background(), owner,
		core.Slot{Date: date, CourtType: "5v5", Hour: 19})
	if err != nil {
		t.Fatalf("seed reservation: %v", err)
	}
	return created
}

func TestHandleCreatePreference(t *testing.T) {
	provider := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"id":         "pref-1",
			"init_point": "https://mp.example.com/checkout/pref-1",
		})
	})
	service := setupHandlers(t, provider)
	created := seedPending(t, service)

	body := bytes.NewBufferString(fmt.Sprintf(`{"reservation_id":%q}`, created.ID))
	r := withIdentity(httptest.NewRequest(http.MethodPost, "/api/v1/payments/preference", body), owner)
	w := httptest.NewRecorder()
	HandleCreatePreference(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp preferenceResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RedirectURL != "https://mp.example.com/checkout/pref-1" {
		t.Fatalf("unexpected redirect: %s", resp.RedirectURL)
	}
}

func TestHandleCreatePreferenceRequiresAuth(t *testing.T) {
	setupHandlers(t, nil)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/payments/preference",
		bytes.NewBufferString(`{"reservation_id":"res-1"}`))
	w := httptest.NewRecorder()
	HandleCreatePreference(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestHandleCreatePreferenceForbiddenForStranger(t *testing.T) {
	service := setupHandlers(t, nil)
	created := seedPending(t, service)

	body := bytes.NewBufferString(fmt.Sprintf(`{"reservation_id":%q}`, created.ID))
	r := withIdentity(httptest.NewRequest(http.MethodPost, "/api/v1/payments/preference", body), stranger)
	w := httptest.NewRecorder()
	HandleCreatePreference(w, r)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestHandleCreatePreferenceRejectsNonPending(t *testing.T) {
	service := setupHandlers(t, nil)
	created := seedPending(t, service)
	if _, err := service.Confirm(context.Background(), created.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	body := bytes.NewBufferString(fmt.Sprintf(`{"reservation_id":%q}`, created.ID))
	r := withIdentity(httptest.NewRequest(http.MethodPost, "/api/v1/payments/preference", body), owner)
	w := httptest.NewRecorder()
	HandleCreatePreference(w, r)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "not awaiting payment") {
		t.Fatalf("unexpected message: %s", w.Body.String())
	}
}

func TestHandleCreatePreferenceUnknownReservation(t *testing.T) {
	setupHandlers(t, nil)

	body := bytes.NewBufferString(`{"reservation_id":"nope"}`)
	r := withIdentity(httptest.NewRequest(http.MethodPost, "/api/v1/payments/preference", body), owner)
	w := httptest.NewRecorder()
	HandleCreatePreference(w, r)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHandleReturnSuccessConfirms(t *testing.T) {
	service := setupHandlers(t, nil)
	created := seedPending(t, service)

	r := withIdentity(httptest.NewRequest(http.MethodGet,
		"/payments/return?status=success&reservationId="+created.ID, nil), owner)
	w := httptest.NewRecorder()
	HandleReturn(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp returnResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Reservation == nil || resp.Reservation.Status != db.StatusConfirmed {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestHandleReturnFailureLeavesPending(t *testing.T) {
	service := setupHandlers(t, nil)
	created := seedPending(t, service)

	r := withIdentity(httptest.NewRequest(http.MethodGet,
		"/payments/return?status=failure&reservationId="+created.ID, nil), owner)
	w := httptest.NewRecorder()
	HandleReturn(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	row, err := service.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get reservation: %v", err)
	}
	if row.Status != db.StatusPendingPayment {
		t.Fatalf("failure must not mutate the reservation, got %s", row.Status)
	}
}

func TestHandleReturnRejectsUnknownStatus(t *testing.T) {
	service := setupHandlers(t, nil)
	created := seedPending(t, service)

	r := withIdentity(httptest.NewRequest(http.MethodGet,
		"/payments/return?status=paid&reservationId="+created.ID, nil), owner)
	w := httptest.NewRecorder()
	HandleReturn(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleReturnRequiresAuth(t *testing.T) {
	setupHandlers(t, nil)

	r := httptest.NewRequest(http.MethodGet, "/payments/return?status=success&reservationId=res-1", nil)
	w := httptest.NewRecorder()
	HandleReturn(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func signWebhook(dataID, requestID, ts string) string {
	manifest := fmt.Sprintf("id:%s;request-id:%s;ts:%s;", dataID, requestID, ts)
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write([]byte(manifest))
	return "ts=" + ts + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

func webhookRequest(dataID, signature string) *http.Request {
	r := httptest.NewRequest(http.MethodPost,
		"/api/v1/payments/webhook?type=payment&data.id="+dataID, nil)
	r.Header.Set("x-signature", signature)
	r.Header.Set("x-request-id", "req-1")
	return r
}

func TestHandleWebhookConfirmsApprovedPayment(t *testing.T) {
	var reservationID string
	provider := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v1/payments/") {
			t.Errorf("unexpected provider path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(gateway.Payment{
			ID:                42,
			Status:            gateway.PaymentStatusApproved,
			ExternalReference: reservationID,
		})
	})
	service := setupHandlers(t, provider)
	created := seedPending(t, service)
	reservationID = created.ID

	r := webhookRequest("42", signWebhook("42", "req-1", "1700000000"))
	w := httptest.NewRecorder()
	HandleWebhook(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	row, err := service.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get reservation: %v", err)
	}
	if row.Status != db.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", row.Status)
	}
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	setupHandlers(t, nil)

	r := webhookRequest("42", "ts=1700000000,v1=deadbeef")
	w := httptest.NewRecorder()
	HandleWebhook(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestHandleWebhookIgnoresNonPaymentNotifications(t *testing.T) {
	setupHandlers(t, nil)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook?type=merchant_order&data.id=9", nil)
	w := httptest.NewRecorder()
	HandleWebhook(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 ack, got %d", w.Code)
	}
}

func TestHandleWebhookIgnoresUnapprovedPayment(t *testing.T) {
	provider := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(gateway.Payment{ID: 42, Status: "in_process"})
	})
	service := setupHandlers(t, provider)
	created := seedPending(t, service)

	r := webhookRequest("42", signWebhook("42", "req-1", "1700000000"))
	w := httptest.NewRecorder()
	HandleWebhook(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	row, err := service.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get reservation: %v", err)
	}
	if row.Status != db.StatusPendingPayment {
		t.Fatalf("unapproved payment must not confirm, got %s", row.Status)
	}
}

func TestHandleWebhookWithoutSecret(t *testing.T) {
	setupHandlers(t, nil)
	cfg.Payments.WebhookSecret = ""

	r := webhookRequest("42", "ts=1,v1=abc")
	w := httptest.NewRecorder()
	HandleWebhook(w, r)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}
