package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/roach88/tableside/internal/domain"
	"github.com/roach88/tableside/internal/engine"
)

const maxBodyBytes = 1 << 20

// mutation adapts an engine operation to a handler. bind copies path
// parameters into the decoded request and may be nil.
func mutation[Req, Res any](
	s *Server,
	op func(context.Context, engine.Requester, Req) (engine.Reply[Res], error),
	bind func(r *http.Request, req *Req),
) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Req
		if err := decodeBody(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		if bind != nil {
			bind(r, &req)
		}

		reply, err := op(r.Context(), requester(r), req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if reply.Replayed {
			w.Header().Set(HeaderReplayed, "true")
		}
		writeBody(w, statusFor(reply.Outcome()), reply.Body)
	})
}

func bindWave(r *http.Request, req *engine.FireWaveRequest) {
	vars := mux.Vars(r)
	req.SessionID = vars["session_id"]
	// The route pattern only admits digits.
	req.Wave, _ = strconv.Atoi(vars["wave"])
}

func bindItem(r *http.Request, req *engine.ItemActionRequest) {
	req.OrderItemID = mux.Vars(r)["item_id"]
}

func bindPayment(r *http.Request, req *engine.PaymentActionRequest) {
	req.PaymentID = mux.Vars(r)["payment_id"]
}

func (s *Server) handleCloseCheck(w http.ResponseWriter, r *http.Request) {
	userID, req, err := closeCheck(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ev, err := s.engine.CanCloseSession(r.Context(), userID, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, statusFor(ev.Outcome()), ev)
}

func (s *Server) handleCloseIssues(w http.ResponseWriter, r *http.Request) {
	userID, req, err := closeCheck(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.engine.CloseIssues(r.Context(), userID, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, statusFor(res.Outcome()), res)
}

func closeCheck(r *http.Request) (string, engine.CloseCheckRequest, error) {
	userID, err := viewer(r)
	if err != nil {
		return "", engine.CloseCheckRequest{}, err
	}
	req := engine.CloseCheckRequest{SessionID: mux.Vars(r)["session_id"]}
	if raw := r.URL.Query().Get("incoming_payment_amount"); raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return "", req, domain.Validation("incoming_payment_amount: %v", err)
		}
		req.IncomingPaymentAmount = amount
	}
	return userID, req, nil
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	userID, err := viewer(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	req := engine.ListEventsRequest{SessionID: mux.Vars(r)["session_id"]}
	q := r.URL.Query()
	if raw := q.Get("after_seq"); raw != "" {
		if req.AfterSeq, err = strconv.ParseInt(raw, 10, 64); err != nil || req.AfterSeq < 0 {
			s.writeError(w, r, domain.Validation("after_seq must be a non-negative integer"))
			return
		}
	}
	if raw := q.Get("limit"); raw != "" {
		if req.Limit, err = strconv.Atoi(raw); err != nil || req.Limit < 0 {
			s.writeError(w, r, domain.Validation("limit must be a non-negative integer"))
			return
		}
	}

	res, err := s.engine.ListEvents(r.Context(), userID, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, statusFor(res.Outcome()), res)
}

// requester reads the caller identity and idempotency key headers.
func requester(r *http.Request) engine.Requester {
	return engine.Requester{
		UserID:         strings.TrimSpace(r.Header.Get(HeaderUserID)),
		IdempotencyKey: strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey)),
	}
}

// viewer returns the caller of a read-only request.
func viewer(r *http.Request) (string, error) {
	userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if userID == "" {
		return "", domain.NewError(domain.KindAuthorization, string(domain.ReasonUnauthorized), "caller identity is required")
	}
	return userID, nil
}

// decodeBody decodes a JSON object into v. An empty body leaves v zero.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return domain.Validation("invalid JSON body: %v", err)
	}
	if dec.More() {
		return domain.Validation("invalid JSON body: trailing data")
	}
	return nil
}

// statusFor maps an outcome to an HTTP status.
func statusFor(res domain.Result) int {
	if res.OK {
		return http.StatusOK
	}
	return statusForKind(res.Reason.Kind())
}

func statusForKind(k domain.Kind) int {
	switch k {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindAuthorization:
		return http.StatusForbidden
	case domain.KindStateConflict:
		return http.StatusConflict
	case domain.KindBusinessRule:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with an outcome document for err. Internal causes
// are logged, never returned.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.Error
	if !errors.As(err, &de) || de.Kind == domain.KindInternal {
		s.logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		de = domain.Internal(err)
	}
	body := domain.Result{Reason: domain.Reason(de.Code), Message: de.Message}
	writeJSON(w, statusForKind(de.Kind), body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		writeBody(w, http.StatusInternalServerError, []byte(fmt.Sprintf(`{"ok":false,"reason":"INTERNAL","message":%q}`, "encode response")))
		return
	}
	writeBody(w, status, data)
}

func writeBody(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
