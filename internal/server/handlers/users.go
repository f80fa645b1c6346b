package handlers

import (
	"net/http"

	"github.com/cloudzz-dev/cldzchat/internal/server/models"
)

func (h *Handler) Friends(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Store.Friends(currentUser(r).ID))
}

func (h *Handler) AllUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Store.AllUsers(currentUser(r).ID))
}

func (h *Handler) ReceivedRequests(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Store.ReceivedRequests(currentUser(r).ID))
}

func (h *Handler) SendRequest(w http.ResponseWriter, r *http.Request) {
	h.friendAction(w, r, func(me string, in models.FriendAction) error {
		return h.Store.SendRequest(me, in.ReceiverID)
	})
}

func (h *Handler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	h.friendAction(w, r, func(me string, in models.FriendAction) error {
		return h.Store.AcceptRequest(me, in.SenderID)
	})
}

func (h *Handler) DeclineRequest(w http.ResponseWriter, r *http.Request) {
	h.friendAction(w, r, func(me string, in models.FriendAction) error {
		return h.Store.DeclineRequest(me, in.SenderID)
	})
}

func (h *Handler) RemoveFriend(w http.ResponseWriter, r *http.Request) {
	h.friendAction(w, r, func(me string, in models.FriendAction) error {
		return h.Store.RemoveFriend(me, in.FriendID)
	})
}

func (h *Handler) friendAction(w http.ResponseWriter, r *http.Request, fn func(me string, in models.FriendAction) error) {
	var in models.FriendAction
	if !decode(w, r, &in) {
		return
	}
	if err := fn(currentUser(r).ID, in); err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}
