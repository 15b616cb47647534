// internal/handlers/lobby.go
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jason-s-yu/blufftrivia/internal/game"
	"github.com/jason-s-yu/blufftrivia/internal/session"
	"github.com/sirupsen/logrus"
)

// LobbyHandlers exposes the session commands over JSON HTTP.
type LobbyHandlers struct {
	svc     *session.Service
	logger  *logrus.Logger
	joinURL func(code string) string
}

func NewLobbyHandlers(svc *session.Service, logger *logrus.Logger, joinURL func(code string) string) *LobbyHandlers {
	return &LobbyHandlers{svc: svc, logger: logger, joinURL: joinURL}
}

type createRequest struct {
	Name string `json:"name"`
}

type joinRequest struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

type teamRequest struct {
	Team      string `json:"team"`
	IsCaptain bool   `json:"isCaptain"`
}

type kickRequest struct {
	TargetID string `json:"targetId"`
}

type answerRequest struct {
	IsSteal     bool   `json:"isSteal"`
	Answer      string `json:"answer"`
	Team        string `json:"team"`
	RoundNumber int    `json:"roundNumber"`
}

type successResponse struct {
	Success bool `json:"success"`
	*session.Result
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func (h *LobbyHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.CreateLobby(req.Name)
	h.respond(w, res, err)
}

func (h *LobbyHandlers) Join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.JoinLobby(req.Name, req.Code)
	h.respond(w, res, err)
}

func (h *LobbyHandlers) Get(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.GetLobby(chi.URLParam(r, "code"), tokenFromRequest(r))
	h.respond(w, res, err)
}

func (h *LobbyHandlers) Leave(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.LeaveLobby(tokenFromRequest(r))
	h.respond(w, res, err)
}

func (h *LobbyHandlers) Team(w http.ResponseWriter, r *http.Request) {
	var req teamRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.TeamSelect(tokenFromRequest(r), req.Team, req.IsCaptain)
	h.respond(w, res, err)
}

func (h *LobbyHandlers) Settings(w http.ResponseWriter, r *http.Request) {
	var patch game.SettingsPatch
	if !decode(w, r, &patch) {
		return
	}
	res, err := h.svc.UpdateSettings(tokenFromRequest(r), patch)
	h.respond(w, res, err)
}

func (h *LobbyHandlers) Kick(w http.ResponseWriter, r *http.Request) {
	var req kickRequest
	if !decode(w, r, &req) {
		return
	}
	target, err := uuid.Parse(req.TargetID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "targetId must be a player id", Code: "invalid_request"})
		return
	}
	res, err := h.svc.KickPlayer(tokenFromRequest(r), target)
	h.respond(w, res, err)
}

func (h *LobbyHandlers) Start(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.StartGame(tokenFromRequest(r))
	h.respond(w, res, err)
}

func (h *LobbyHandlers) Advance(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.AdvanceRound(tokenFromRequest(r))
	h.respond(w, res, err)
}

func (h *LobbyHandlers) Answer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.SubmitAnswer(tokenFromRequest(r), req.IsSteal, req.Answer, req.Team, req.RoundNumber)
	h.respond(w, res, err)
}

func (h *LobbyHandlers) End(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.EndLobby(tokenFromRequest(r))
	h.respond(w, res, err)
}

func (h *LobbyHandlers) Return(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ReturnToLobby(tokenFromRequest(r))
	h.respond(w, res, err)
}

// respond writes res, or maps err to a status code and error body.
func (h *LobbyHandlers) respond(w http.ResponseWriter, res *session.Result, err error) {
	if err == nil {
		if res == nil {
			res = &session.Result{}
		}
		writeJSON(w, http.StatusOK, successResponse{Success: true, Result: res})
		return
	}

	var ge *game.Error
	if !errors.As(err, &ge) {
		h.logger.WithError(err).Error("command failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal_error"})
		return
	}
	writeJSON(w, statusFor(ge.Kind), errorResponse{Error: ge.Message, Code: ge.Code})
}

func statusFor(kind game.ErrorKind) int {
	switch kind {
	case game.KindValidation:
		return http.StatusBadRequest
	case game.KindUnauthorized:
		return http.StatusUnauthorized
	case game.KindForbidden:
		return http.StatusForbidden
	case game.KindConflict:
		return http.StatusConflict
	case game.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into v. An empty body leaves v zeroed.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad request payload", Code: "invalid_request"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
