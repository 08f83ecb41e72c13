package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"salon-pos/internal/pricing"
	"salon-pos/internal/session"
)

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Create(r.Context(), masterID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

// loadSession resolves {sessionID} for the calling master.
func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(r.Context(), chi.URLParam(r, "sessionID"), masterID(r))
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return sess, true
}

// getSession returns the latest snapshot. With ?settle=true a pending
// recomputation is run first.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	if settle, _ := strconv.ParseBool(r.URL.Query().Get("settle")); settle {
		if err := sess.Settle(r.Context()); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) dropSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	if err := s.sessions.Drop(r.Context(), sess.ID()); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// mutate applies fn to the session and answers with its snapshot.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, fn func(*session.Session) error) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	if err := fn(sess); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func serviceIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "serviceID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(r.Context(), w, newError("invalid_request", "invalid service id", http.StatusBadRequest))
		return 0, false
	}
	return id, true
}

func packageParam(w http.ResponseWriter, r *http.Request) (pricing.PackageType, bool) {
	t, err := pricing.ParsePackageType(chi.URLParam(r, "package"))
	if err != nil {
		writeError(r.Context(), w, newError("invalid_request", err.Error(), http.StatusBadRequest))
		return "", false
	}
	return t, true
}

func (s *Server) addService(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ServiceID int64 `json:"service_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.mutate(w, r, func(sess *session.Session) error {
		return sess.AddService(r.Context(), req.ServiceID)
	})
}

func (s *Server) removeService(w http.ResponseWriter, r *http.Request) {
	id, ok := serviceIDParam(w, r)
	if !ok {
		return
	}
	s.mutate(w, r, func(sess *session.Session) error {
		return sess.RemoveService(id)
	})
}

func (s *Server) updateService(w http.ResponseWriter, r *http.Request) {
	id, ok := serviceIDParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Quantity     *int   `json:"quantity"`
		SessionCount *int   `json:"session_count"`
		CustomPrice  *int64 `json:"custom_price"`
		ResetPrice   bool   `json:"reset_price"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.mutate(w, r, func(sess *session.Session) error {
		return sess.UpdateService(id, session.ServiceUpdate{
			Quantity:     req.Quantity,
			SessionCount: req.SessionCount,
			CustomPrice:  req.CustomPrice,
			ResetPrice:   req.ResetPrice,
		})
	})
}

func (s *Server) toggleFreeZone(w http.ResponseWriter, r *http.Request) {
	id, ok := serviceIDParam(w, r)
	if !ok {
		return
	}
	s.mutate(w, r, func(sess *session.Session) error {
		return sess.ToggleFreeZone(id)
	})
}

func (s *Server) setDownPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int64 `json:"amount"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.mutate(w, r, func(sess *session.Session) error {
		return sess.SetDownPayment(req.Amount)
	})
}

func (s *Server) setInstallment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Months int `json:"months"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.mutate(w, r, func(sess *session.Session) error {
		return sess.SetInstallmentMonths(r.Context(), req.Months)
	})
}

func (s *Server) setCertificate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Used bool `json:"used"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.mutate(w, r, func(sess *session.Session) error {
		return sess.SetUsedCertificate(r.Context(), req.Used)
	})
}

func (s *Server) setCorrection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Percent float64 `json:"percent"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.mutate(w, r, func(sess *session.Session) error {
		return sess.SetCorrectionPercent(req.Percent)
	})
}

func (s *Server) setGiftSessions(w http.ResponseWriter, r *http.Request) {
	t, ok := packageParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Count int `json:"count"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.mutate(w, r, func(sess *session.Session) error {
		return sess.SetManualGiftSessions(t, req.Count)
	})
}

func (s *Server) clearGiftSessions(w http.ResponseWriter, r *http.Request) {
	t, ok := packageParam(w, r)
	if !ok {
		return
	}
	s.mutate(w, r, func(sess *session.Session) error {
		return sess.ClearManualGiftSessions(t)
	})
}

func (s *Server) selectPackage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Package string `json:"package"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	t, err := pricing.ParsePackageType(req.Package)
	if err != nil {
		writeError(r.Context(), w, newError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	s.mutate(w, r, func(sess *session.Session) error {
		return sess.SelectPackage(r.Context(), t)
	})
}

func (s *Server) clearPackage(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(sess *session.Session) error {
		return sess.ClearPackage()
	})
}

func (s *Server) beginDrag(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(sess *session.Session) error {
		sess.BeginDrag()
		return nil
	})
}

func (s *Server) endDrag(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(sess *session.Session) error {
		sess.EndDrag()
		return nil
	})
}

func (s *Server) resetSession(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(sess *session.Session) error {
		return sess.Reset()
	})
}

// confirmSession settles the session, confirms the sale from its state and
// resets the session. A failed confirmation leaves the session as it was.
func (s *Server) confirmSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	var req clientRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := sess.Settle(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}

	snap := sess.Snapshot()
	if req.Package == "" && snap.SelectedPackage != nil {
		req.Package = *snap.SelectedPackage
	}

	s.confirm(w, r, snap.Selection(), snap.Adjustments, req, func() {
		if err := sess.Reset(); err != nil {
			s.logger.Warn("Failed to reset session after sale",
				zap.String("session_id", sess.ID()),
				zap.Error(err))
		}
	})
}
