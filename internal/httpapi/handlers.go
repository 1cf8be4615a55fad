package httpapi

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"valentine/internal/wire"
)

const (
	adminHeader  = "X-Admin-Password"
	maxBodyBytes = 64 << 10
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	var req wire.StartSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	status, err := s.backend.StartSession(r.Context(), req.Fingerprint, clientIP(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.backend.Status(r.Context(), r.URL.Query().Get("session_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handlePuzzle(w http.ResponseWriter, r *http.Request) {
	stage, _ := strconv.Atoi(mux.Vars(r)["stage"])
	p, err := s.backend.Puzzle(r.Context(), r.URL.Query().Get("session_id"), stage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleCaptcha(w http.ResponseWriter, r *http.Request) {
	stage, _ := strconv.Atoi(mux.Vars(r)["stage"])
	data, err := s.backend.Captcha(r.Context(), stage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handlePhoto(w http.ResponseWriter, r *http.Request) {
	u, err := s.backend.MediaURL(r.Context(), mux.Vars(r)["key"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.MediaURL{URL: u})
}

func (s *Server) handlePuzzleCheck(w http.ResponseWriter, r *http.Request) {
	var req wire.CheckRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.backend.Check(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePuzzleAdvance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	stage, err := strconv.Atoi(q.Get("stage"))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "stage must be an integer")
		return
	}
	if err := s.backend.Advance(r.Context(), q.Get("session_id"), stage); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.OK{OK: true})
}

func (s *Server) handleTrollingPhase(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if err := s.backend.SaveTrollingPhase(r.Context(), q.Get("session_id"), q.Get("phase")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.OK{OK: true})
}

func (s *Server) handleChallengeSubmit(w http.ResponseWriter, r *http.Request) {
	status, err := s.backend.SubmitChallenge(r.Context(), r.URL.Query().Get("session_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.ChallengeStatus{Status: status})
}

func (s *Server) handleChallengeStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.backend.ChallengeStatus(r.Context(), r.URL.Query().Get("session_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.ChallengeStatus{Status: status})
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, wire.OK{OK: true})
}

func (s *Server) handleAdminSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.backend.AdminSessions(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleAdminSession(w http.ResponseWriter, r *http.Request) {
	detail, err := s.backend.AdminSessionDetail(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleAdminApprove(w http.ResponseWriter, r *http.Request) {
	status, err := s.backend.Approve(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.ChallengeStatus{Status: status})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// clientIP prefers the first X-Forwarded-For hop over the socket address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
