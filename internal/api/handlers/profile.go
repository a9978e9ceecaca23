package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/eventsphere/server/internal/api/middleware"
	"github.com/eventsphere/server/internal/api/problem"
	"github.com/eventsphere/server/internal/domain/accounts"
)

// ProfileHandler serves the authenticated account's own profile.
type ProfileHandler struct {
	Service *accounts.Service
	Env     string
}

func NewProfileHandler(service *accounts.Service, env string) *ProfileHandler {
	return &ProfileHandler{Service: service, Env: env}
}

// Get handles GET /api/v1/profile. The subject comes from the admission, so
// an account can only ever read itself.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	admission := middleware.AdmissionFromContext(r.Context())
	if admission.Anonymous || admission.Subject == "" {
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthenticated, "Unauthenticated", nil, h.Env)
		return
	}

	account, err := h.Service.Get(r.Context(), admission.Subject)
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Account not found", nil, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, accountInfo{
		ID:          account.ID,
		Email:       account.Email,
		Role:        string(account.Role),
		DefaultLang: account.DefaultLang,
	})
}

type updateProfileRequest struct {
	DefaultLang string `json:"default_lang"`
}

// Update handles PUT /api/v1/profile. Only the default language is mutable
// through this surface.
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	admission := middleware.AdmissionFromContext(r.Context())
	if admission.Anonymous || admission.Subject == "" {
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthenticated, "Unauthenticated", nil, h.Env)
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidationError, "Invalid request", err, h.Env)
		return
	}
	if req.DefaultLang == "" {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidationError, "default_lang is required", nil, h.Env)
		return
	}

	if err := h.Service.UpdateLanguage(r.Context(), admission.Subject, req.DefaultLang); err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Account not found", nil, h.Env)
			return
		}
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidationError, "Invalid request", err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"default_lang": req.DefaultLang})
}
