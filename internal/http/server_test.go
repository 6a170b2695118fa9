package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"impegni/internal/fx"
	"impegni/internal/services"
	"impegni/internal/storage/memory"
)

func newTestServer(t *testing.T) (*Server, *memory.Store) {
	t.Helper()
	store := memory.New()
	rates := fx.NewStaticRates("EUR", map[string]float64{"USD": 0.9})
	amounts := services.NewAmountResolver(rates)
	return NewServer("127.0.0.1:0", Deps{
		Commitments: store,
		Terms:       store,
		Payments:    store,
		Adjustments: store,
		Lifecycle:   services.NewLifecycleService(store, store),
		Reassign:    services.NewReassignmentService(store, store, store, nil),
		Recorder:    services.NewPaymentService(store, store, store, amounts, "EUR"),
	}), store
}

func doJSON(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	return rec
}

func TestCreateCommitmentAndResolve(t *testing.T) {
	s, _ := newTestServer(t)
	defer s.rateLimiter.stop()

	rec := doJSON(t, s, http.MethodPost, "/commitments", `{
		"owner": "emilio",
		"name": "Affitto",
		"category": "casa",
		"direction": "expense",
		"term": {
			"amount": "850.00",
			"currency": "EUR",
			"frequency": "monthly",
			"effective_from": "2024-01-01"
		}
	}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create commitment status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var created struct {
		ID   int64 `json:"id"`
		Term struct {
			ID      int64 `json:"id"`
			Version int   `json:"version"`
		} `json:"term"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.Term.Version != 1 {
		t.Errorf("initial term version = %d, want 1", created.Term.Version)
	}

	rec = doJSON(t, s, http.MethodGet, "/resolve?commitment_id=1&year=2024&month=3", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resolved struct {
		Term struct {
			Version int `json:"version"`
		} `json:"term"`
		Due bool `json:"due"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resolved); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resolved.Term.Version != 1 || !resolved.Due {
		t.Errorf("resolve = version %d due %v, want version 1 due true", resolved.Term.Version, resolved.Due)
	}

	// A month before the term starts resolves to nothing.
	rec = doJSON(t, s, http.MethodGet, "/resolve?commitment_id=1&year=2023&month=12", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("resolve before start status = %d, want 404", rec.Code)
	}
}

func TestCreateTermRejectsOverlap(t *testing.T) {
	s, _ := newTestServer(t)
	defer s.rateLimiter.stop()

	rec := doJSON(t, s, http.MethodPost, "/commitments", `{
		"name": "Palestra",
		"direction": "expense",
		"term": {"amount": "40", "currency": "EUR", "frequency": "monthly", "effective_from": "2024-01-01"}
	}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create commitment status = %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, "/terms", `{
		"commitment_id": 1,
		"amount": "45",
		"currency": "EUR",
		"frequency": "monthly",
		"effective_from": "2024-06-01"
	}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("overlapping term status = %d, want 422", rec.Code)
	}
}

func TestPauseResumeAndRecordPayment(t *testing.T) {
	s, _ := newTestServer(t)
	defer s.rateLimiter.stop()

	rec := doJSON(t, s, http.MethodPost, "/commitments", `{
		"name": "Netflix",
		"direction": "expense",
		"term": {"amount": "17.99", "currency": "EUR", "frequency": "monthly", "effective_from": "2024-01-01"}
	}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create commitment status = %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, "/payments", `{"commitment_id": 1, "year": 2024, "month": 2}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("record payment status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var payment struct {
		AmountCents int64  `json:"amount_cents"`
		PeriodDate  string `json:"period_date"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payment); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payment.AmountCents != 1799 {
		t.Errorf("payment amount = %d, want 1799", payment.AmountCents)
	}
	if payment.PeriodDate != "2024-02-01" {
		t.Errorf("payment period = %s, want 2024-02-01", payment.PeriodDate)
	}

	rec = doJSON(t, s, http.MethodPost, "/commitments/pause", `{"commitment_id": 1, "year": 2024, "month": 6}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("pause status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var paused struct {
		EffectiveUntil string `json:"effective_until"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&paused); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if paused.EffectiveUntil != "2024-06-30" {
		t.Errorf("paused until = %s, want 2024-06-30", paused.EffectiveUntil)
	}

	// Resume must start strictly after the pause boundary.
	rec = doJSON(t, s, http.MethodPost, "/commitments/resume", `{
		"commitment_id": 1,
		"amount": "19.99",
		"currency": "EUR",
		"frequency": "monthly",
		"effective_from": "2024-06-15"
	}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("early resume status = %d, want 422", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, "/commitments/resume", `{
		"commitment_id": 1,
		"amount": "19.99",
		"currency": "EUR",
		"frequency": "monthly",
		"effective_from": "2024-09-01"
	}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("resume status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resumed struct {
		Version int `json:"version"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resumed); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resumed.Version != 2 {
		t.Errorf("resumed version = %d, want 2", resumed.Version)
	}

	// Gap month between the paused and resumed terms resolves to nothing.
	rec = doJSON(t, s, http.MethodGet, "/resolve?commitment_id=1&year=2024&month=7", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("gap month status = %d, want 404", rec.Code)
	}
}

func TestShiftTermReassignsPayments(t *testing.T) {
	s, store := newTestServer(t)
	defer s.rateLimiter.stop()

	rec := doJSON(t, s, http.MethodPost, "/commitments", `{
		"name": "Mutuo",
		"direction": "expense",
		"term": {"amount": "600", "currency": "EUR", "frequency": "monthly", "effective_from": "2024-01-01"}
	}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create commitment status = %d", rec.Code)
	}
	var created struct {
		ID   int64 `json:"id"`
		Term struct {
			ID int64 `json:"id"`
		} `json:"term"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	var januaryPaymentID int64
	for month := 1; month <= 3; month++ {
		body := fmt.Sprintf(`{"commitment_id": %d, "year": 2024, "month": %d}`, created.ID, month)
		rec = doJSON(t, s, http.MethodPost, "/payments", body)
		if rec.Code != http.StatusCreated {
			t.Fatalf("record payment month %d status = %d", month, rec.Code)
		}
		if month == 1 {
			var p struct {
				ID int64 `json:"id"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&p); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			januaryPaymentID = p.ID
		}
	}

	rec = doJSON(t, s, http.MethodPost, "/terms/shift", fmt.Sprintf(`{
		"term_id": %d,
		"new_from": "2024-02-01",
		"actor": "tester"
	}`, created.Term.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("shift status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var shift struct {
		Reassigned int `json:"reassigned"`
		Affected   int `json:"affected"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&shift); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if shift.Reassigned != 3 || shift.Affected != 3 {
		t.Errorf("shift = %+v, want 3 reassigned of 3", shift)
	}
	if got := len(store.Adjustments()); got != 3 {
		t.Errorf("adjustments written = %d, want 3", got)
	}

	rec = doJSON(t, s, http.MethodGet, fmt.Sprintf("/adjustments?payment_id=%d", januaryPaymentID), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list adjustments status = %d", rec.Code)
	}
	var trail []struct {
		OriginalPeriodDate string `json:"original_period_date"`
		NewPeriodDate      string `json:"new_period_date"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&trail); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(trail) != 1 {
		t.Fatalf("audit trail length = %d, want 1", len(trail))
	}
	if trail[0].OriginalPeriodDate != "2024-01-01" || trail[0].NewPeriodDate != "2024-02-01" {
		t.Errorf("audit trail = %+v, want 2024-01-01 -> 2024-02-01", trail[0])
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)
	defer s.rateLimiter.stop()

	rec := doJSON(t, s, http.MethodPut, "/commitments", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("PUT /commitments status = %d, want 405", rec.Code)
	}
	rec = doJSON(t, s, http.MethodPost, "/resolve", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /resolve status = %d, want 405", rec.Code)
	}
}
