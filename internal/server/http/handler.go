package http

import (
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
	"github.com/dmitrijs2005/accountkeeper/internal/server/services"
	"github.com/go-chi/chi/v5"
)

type Handler struct {
	auth     *services.AuthService
	tokens   *services.TokenService
	recovery *services.RecoveryService
	accounts *services.AccountService
}

func NewHandler(as *services.AuthService, ts *services.TokenService, rs *services.RecoveryService, acs *services.AccountService) *Handler {
	return &Handler{
		auth:     as,
		tokens:   ts,
		recovery: rs,
		accounts: acs,
	}
}

func badRequest(w http.ResponseWriter) {
	writeMessage(w, http.StatusBadRequest, "invalid request body")
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func queryVersion(w http.ResponseWriter, r *http.Request) (int64, bool) {
	v, err := strconv.ParseInt(r.URL.Query().Get("version"), 10, 64)
	if err != nil || v <= 0 {
		writeMessage(w, http.StatusBadRequest, "invalid version")
		return 0, false
	}
	return v, true
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w)
		return
	}

	a, err := h.auth.Register(r.Context(), req.toRegistration())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAccountResponse(a))
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w)
		return
	}

	tokens, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken})
}

// Refresh takes the refresh token from the Authorization header.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeMessage(w, http.StatusUnauthorized, "missing token")
		return
	}

	tokens, err := h.tokens.Refresh(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())
	if err := h.tokens.Logout(r.Context(), claims); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w)
		return
	}

	if err := h.recovery.RequestRecovery(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}

	writeMessage(w, http.StatusAccepted, "if the account exists, a recovery email has been sent")
}

func (h *Handler) RecoverPassword(w http.ResponseWriter, r *http.Request) {
	var req recoverPasswordRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w)
		return
	}

	if err := h.recovery.CompleteRecovery(r.Context(), req.Token, req.Password); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) EmailAvailability(w http.ResponseWriter, r *http.Request) {
	var req emailAvailabilityRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w)
		return
	}

	ok, err := h.auth.CheckEmailAvailability(r.Context(), req.Email, req.ExcludeID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, emailAvailabilityResponse{Available: ok})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())

	a, err := h.accounts.Me(r.Context(), claims)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(a))
}

func (h *Handler) UpdatePersonalData(w http.ResponseWriter, r *http.Request) {
	var req personalDataRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w)
		return
	}
	claims, _ := ClaimsFrom(r.Context())

	a, err := h.accounts.UpdatePersonalData(r.Context(), claims, req.Version, req.toPersonalData())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(a))
}

func (h *Handler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req updatePasswordRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w)
		return
	}
	claims, _ := ClaimsFrom(r.Context())

	if err := h.accounts.UpdatePassword(r.Context(), claims, req.Version, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteSelf(w http.ResponseWriter, r *http.Request) {
	version, ok := queryVersion(w, r)
	if !ok {
		return
	}
	claims, _ := ClaimsFrom(r.Context())

	if err := h.accounts.DeleteSelf(r.Context(), claims, version); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AvatarUpload(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())

	up, err := h.accounts.AvatarUploadURL(r.Context(), claims)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, avatarUploadResponse{Key: up.Key, URL: up.URL})
}

func (h *Handler) AvatarDownload(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())

	link, err := h.accounts.AvatarDownloadURL(r.Context(), claims)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, avatarDownloadResponse{URL: link})
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w)
		return
	}
	claims, _ := ClaimsFrom(r.Context())

	role := models.Role(req.Role)
	if role == "" {
		role = models.RoleCustomer
	}

	a, err := h.accounts.CreateAccount(r.Context(), claims, services.NewAccount{
		Email:     req.Email,
		Name:      req.Name,
		Telephone: req.Telephone,
		Password:  req.Password,
		Role:      role,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAccountResponse(a))
}

func (h *Handler) Account(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	claims, _ := ClaimsFrom(r.Context())

	a, err := h.accounts.Account(r.Context(), claims, id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(a))
}

func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req updateAccountRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w)
		return
	}
	claims, _ := ClaimsFrom(r.Context())

	a, err := h.accounts.UpdateAccount(r.Context(), claims, id, req.Version, req.toPatch())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(a))
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	version, ok := queryVersion(w, r)
	if !ok {
		return
	}
	claims, _ := ClaimsFrom(r.Context())

	if err := h.accounts.DeleteAccount(r.Context(), claims, id, version); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
