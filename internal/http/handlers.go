package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"impegni/internal/core"
	"impegni/internal/services"
)

type termPayload struct {
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	Frequency      string `json:"frequency"`
	EffectiveFrom  string `json:"effective_from"`
	EffectiveUntil string `json:"effective_until,omitempty"`
}

func (p termPayload) toTerm() (core.Term, error) {
	cents, err := core.ParseDecimalToCents(p.Amount)
	if err != nil {
		return core.Term{}, fmt.Errorf("%w: %s", core.ErrInvalidAmount, p.Amount)
	}
	from, err := core.ParseDate(p.EffectiveFrom)
	if err != nil {
		return core.Term{}, fmt.Errorf("%w: invalid effective_from %q", core.ErrValidation, p.EffectiveFrom)
	}

	t := core.Term{
		AmountOriginal:   core.Money{Cents: cents},
		CurrencyOriginal: p.Currency,
		Frequency:        core.Frequency(p.Frequency),
		EffectiveFrom:    from,
	}
	if p.EffectiveUntil != "" {
		until, err := core.ParseDate(p.EffectiveUntil)
		if err != nil {
			return core.Term{}, fmt.Errorf("%w: invalid effective_until %q", core.ErrValidation, p.EffectiveUntil)
		}
		t.EffectiveUntil = &until
	}
	return t, nil
}

type termResponse struct {
	ID             int64  `json:"id"`
	CommitmentID   int64  `json:"commitment_id"`
	Version        int    `json:"version"`
	AmountCents    int64  `json:"amount_cents"`
	Currency       string `json:"currency"`
	Frequency      string `json:"frequency"`
	EffectiveFrom  string `json:"effective_from"`
	EffectiveUntil string `json:"effective_until,omitempty"`
}

func toTermResponse(t core.Term) termResponse {
	resp := termResponse{
		ID:            t.ID,
		CommitmentID:  t.CommitmentID,
		Version:       t.Version,
		AmountCents:   t.AmountOriginal.Cents,
		Currency:      t.CurrencyOriginal,
		Frequency:     string(t.Frequency),
		EffectiveFrom: t.EffectiveFrom.String(),
	}
	if t.EffectiveUntil != nil {
		resp.EffectiveUntil = t.EffectiveUntil.String()
	}
	return resp
}

type paymentResponse struct {
	ID                  int64  `json:"id"`
	CommitmentID        int64  `json:"commitment_id"`
	TermID              int64  `json:"term_id"`
	PeriodDate          string `json:"period_date"`
	AmountCents         int64  `json:"amount_cents"`
	AmountOriginalCents *int64 `json:"amount_original_cents,omitempty"`
}

func toPaymentResponse(p core.Payment) paymentResponse {
	resp := paymentResponse{
		ID:           p.ID,
		CommitmentID: p.CommitmentID,
		TermID:       p.TermID,
		PeriodDate:   p.PeriodDate.String(),
		AmountCents:  p.AmountBase.Cents,
	}
	if p.AmountOriginal != nil {
		resp.AmountOriginalCents = &p.AmountOriginal.Cents
	}
	return resp
}

func (s *Server) handleCommitments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createCommitment(w, r)
	case http.MethodDelete:
		s.deleteCommitment(w, r)
	default:
		w.Header().Set("Allow", "POST, DELETE")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) createCommitment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Owner     string      `json:"owner"`
		Name      string      `json:"name"`
		Category  string      `json:"category"`
		Direction string      `json:"direction"`
		Term      termPayload `json:"term"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	term, err := req.Term.toTerm()
	if err != nil {
		writeError(w, r, err)
		return
	}

	commitment, err := s.commitments.InsertCommitment(r.Context(), core.Commitment{
		Owner:     req.Owner,
		Name:      req.Name,
		Category:  req.Category,
		Direction: core.FlowDirection(req.Direction),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	created, err := s.lifecycle.CreateTerm(r.Context(), commitment.ID, term)
	if err != nil {
		// Do not leave a commitment without a version behind.
		if delErr := s.commitments.DeleteCommitment(r.Context(), commitment.ID); delErr != nil {
			slog.ErrorContext(r.Context(), "Failed to roll back commitment", "id", commitment.ID, "error", delErr)
		}
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		ID        int64        `json:"id"`
		Owner     string       `json:"owner"`
		Name      string       `json:"name"`
		Category  string       `json:"category"`
		Direction string       `json:"direction"`
		Term      termResponse `json:"term"`
	}{
		ID:        commitment.ID,
		Owner:     commitment.Owner,
		Name:      commitment.Name,
		Category:  commitment.Category,
		Direction: string(commitment.Direction),
		Term:      toTermResponse(created),
	})
}

func (s *Server) deleteCommitment(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r, "id")
	if !ok {
		return
	}
	if err := s.commitments.DeleteCommitment(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	slog.InfoContext(r.Context(), "Commitment deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTerms(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listTerms(w, r)
	case http.MethodPost:
		s.createTerm(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) listTerms(w http.ResponseWriter, r *http.Request) {
	commitmentID, ok := queryID(w, r, "commitment_id")
	if !ok {
		return
	}
	terms, err := s.terms.TermsByCommitment(r.Context(), commitmentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]termResponse, 0, len(terms))
	for _, t := range terms {
		out = append(out, toTermResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createTerm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CommitmentID int64 `json:"commitment_id"`
		termPayload
	}
	if !decodeBody(w, r, &req) {
		return
	}

	term, err := req.toTerm()
	if err != nil {
		writeError(w, r, err)
		return
	}

	created, err := s.lifecycle.CreateTerm(r.Context(), req.CommitmentID, term)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTermResponse(created))
}

func (s *Server) handlePauseCommitment(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		CommitmentID int64 `json:"commitment_id"`
		Year         int   `json:"year"`
		Month        int   `json:"month"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Month < 1 || req.Month > 12 {
		writeError(w, r, fmt.Errorf("%w: invalid month %d", core.ErrValidation, req.Month))
		return
	}

	paused, err := s.lifecycle.PauseCommitment(r.Context(), req.CommitmentID, core.NewPeriod(req.Year, req.Month))
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.InfoContext(r.Context(), "Commitment paused",
		"commitment_id", req.CommitmentID,
		"until", paused.EffectiveUntil.String())
	writeJSON(w, http.StatusOK, toTermResponse(paused))
}

func (s *Server) handleResumeCommitment(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		CommitmentID int64 `json:"commitment_id"`
		termPayload
	}
	if !decodeBody(w, r, &req) {
		return
	}

	term, err := req.toTerm()
	if err != nil {
		writeError(w, r, err)
		return
	}

	resumed, err := s.lifecycle.ResumeCommitment(r.Context(), req.CommitmentID, term)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.InfoContext(r.Context(), "Commitment resumed",
		"commitment_id", req.CommitmentID,
		"from", resumed.EffectiveFrom.String())
	writeJSON(w, http.StatusCreated, toTermResponse(resumed))
}

func (s *Server) handleShiftTerm(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		TermID  int64  `json:"term_id"`
		NewFrom string `json:"new_from"`
		Actor   string `json:"actor"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	newFrom, err := core.ParseDate(req.NewFrom)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid new_from %q", core.ErrValidation, req.NewFrom))
		return
	}

	reassigned, affected, err := s.reassign.ShiftTermStart(r.Context(), req.TermID, newFrom, req.Actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		TermID     int64 `json:"term_id"`
		Reassigned int   `json:"reassigned"`
		Affected   int   `json:"affected"`
	}{TermID: req.TermID, Reassigned: reassigned, Affected: affected})
}

func (s *Server) handlePayments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listPayments(w, r)
	case http.MethodPost:
		s.recordPayment(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) listPayments(w http.ResponseWriter, r *http.Request) {
	commitmentID, ok := queryID(w, r, "commitment_id")
	if !ok {
		return
	}
	payments, err := s.payments.PaymentsByCommitment(r.Context(), commitmentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, toPaymentResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) recordPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CommitmentID int64  `json:"commitment_id"`
		Year         int    `json:"year"`
		Month        int    `json:"month"`
		Amount       string `json:"amount,omitempty"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Month < 1 || req.Month > 12 {
		writeError(w, r, fmt.Errorf("%w: invalid month %d", core.ErrValidation, req.Month))
		return
	}

	var override *core.Money
	if req.Amount != "" {
		cents, err := core.ParseDecimalToCents(req.Amount)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: %s", core.ErrInvalidAmount, req.Amount))
			return
		}
		override = &core.Money{Cents: cents}
	}

	payment, err := s.recorder.RecordPayment(r.Context(), req.CommitmentID, req.Year, req.Month, override)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentResponse(payment))
}

type adjustmentResponse struct {
	ID                 int64  `json:"id"`
	PaymentID          int64  `json:"payment_id"`
	OriginalPeriodDate string `json:"original_period_date"`
	NewPeriodDate      string `json:"new_period_date"`
	OriginalTermID     int64  `json:"original_term_id"`
	NewTermID          int64  `json:"new_term_id"`
	Reason             string `json:"reason"`
	Actor              string `json:"actor"`
	CreatedAt          string `json:"created_at"`
}

// handleAdjustments returns the audit trail of one payment.
func (s *Server) handleAdjustments(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	paymentID, ok := queryID(w, r, "payment_id")
	if !ok {
		return
	}
	adjustments, err := s.adjustments.AdjustmentsByPayment(r.Context(), paymentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]adjustmentResponse, 0, len(adjustments))
	for _, a := range adjustments {
		out = append(out, adjustmentResponse{
			ID:                 a.ID,
			PaymentID:          a.PaymentID,
			OriginalPeriodDate: a.OriginalPeriodDate.String(),
			NewPeriodDate:      a.NewPeriodDate.String(),
			OriginalTermID:     a.OriginalTermID,
			NewTermID:          a.NewTermID,
			Reason:             a.Reason,
			Actor:              a.Actor,
			CreatedAt:          a.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	commitmentID, ok := queryID(w, r, "commitment_id")
	if !ok {
		return
	}
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid year"})
		return
	}
	month, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil || month < 1 || month > 12 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid month"})
		return
	}

	terms, err := s.terms.TermsByCommitment(r.Context(), commitmentID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	term := services.ResolveTerm(terms, year, month)
	if term == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{
			Error: fmt.Sprintf("no term covers %d-%02d", year, month),
		})
		return
	}

	due, err := services.IsPeriodDue(term.Frequency, term.EffectiveFrom, core.NewPeriod(year, month))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Term termResponse `json:"term"`
		Due  bool         `json:"due"`
	}{Term: toTermResponse(*term), Due: due})
}

func (s *Server) handleResolveCurrent(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	commitmentID, ok := queryID(w, r, "commitment_id")
	if !ok {
		return
	}

	terms, err := s.terms.TermsByCommitment(r.Context(), commitmentID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	now := time.Now().UTC()
	term := services.ResolveCurrentTerm(terms, core.NewDate(now.Year(), int(now.Month()), now.Day()))
	if term == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "commitment has no terms"})
		return
	}
	writeJSON(w, http.StatusOK, toTermResponse(*term))
}

func queryID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get(param), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid " + param})
		return 0, false
	}
	return id, true
}
