package handlers

import (
	"net/http"
	"strings"

	"github.com/cloudzz-dev/cldzchat/internal/server/models"
	"golang.org/x/crypto/bcrypt"
)

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var in models.Credentials
	if !decode(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Username) == "" || len(in.Password) < 6 {
		writeError(w, http.StatusBadRequest, "username and a password of at least 6 characters are required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not hash password")
		return
	}
	user, err := h.Store.CreateUser(in.Username, in.Email, string(hash))
	if err != nil {
		storeError(w, err)
		return
	}
	h.Log.Info("user registered", "user", user.ID, "username", user.Username)
	writeJSON(w, http.StatusCreated, models.AuthResponse{Token: h.Store.IssueToken(user.ID), User: user})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var in models.Credentials
	if !decode(w, r, &in) {
		return
	}
	user, err := h.Store.GetUserByUsername(in.Username)
	if err == nil {
		err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password))
	}
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	writeJSON(w, http.StatusOK, models.AuthResponse{Token: h.Store.IssueToken(user.ID), User: user})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentUser(r))
}
