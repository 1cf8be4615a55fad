package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"valentine/internal/game"
	"valentine/internal/wire"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, wire.ErrorBody{Detail: detail})
}

// writeError maps service errors onto status codes. Anything unrecognised
// is logged and reported as a 500 without leaking the message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, game.ErrSessionNotFound),
		errors.Is(err, game.ErrPuzzleNotFound),
		errors.Is(err, game.ErrMediaNotFound):
		writeDetail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrInvalidFingerprint),
		errors.Is(err, game.ErrInvalidStage),
		errors.Is(err, game.ErrInvalidPhase):
		writeDetail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, game.ErrChallengeNotPending):
		writeDetail(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeDetail(w, http.StatusInternalServerError, "internal error")
	}
}
