package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cloudzz-dev/cldzchat/internal/server/models"
	"github.com/cloudzz-dev/cldzchat/internal/server/ratelimit"
	"github.com/cloudzz-dev/cldzchat/internal/server/ws"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const defaultPageSize = 20

// ChatPage serves GET /chats/{peerId}?page=N&limit=M. Page 1 holds the
// newest messages.
func (h *Handler) ChatPage(w http.ResponseWriter, r *http.Request) {
	me := currentUser(r)
	chat, err := h.Store.ChatBetween(me.ID, chi.URLParam(r, "peerId"))
	if err != nil {
		storeError(w, err)
		return
	}

	page := queryInt(r, "page", 1)
	limit := min(queryInt(r, "limit", defaultPageSize), 100)
	msgs, more := h.Store.Page(chat.ID, page, limit)
	writeJSON(w, http.StatusOK, models.ChatPage{ConversationID: chat.ID, Messages: msgs, HasMore: more})
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	name := uuid.NewString() + strings.ToLower(filepath.Ext(header.Filename))
	dst, err := os.Create(filepath.Join(h.UploadDir, name))
	if err != nil {
		h.Log.Error("create upload", "error", err)
		writeError(w, http.StatusInternalServerError, "could not store file")
		return
	}
	defer dst.Close()

	n, err := io.Copy(dst, file)
	if err != nil {
		os.Remove(dst.Name())
		writeError(w, http.StatusInternalServerError, "could not store file")
		return
	}
	h.Log.Info("file uploaded", "user", currentUser(r).ID, "name", name, "bytes", n, "type", header.Header.Get("Content-Type"))
	writeJSON(w, http.StatusOK, models.UploadResponse{FileURL: fileURL(r, name)})
}

func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	clientIP := ratelimit.GetClientIP(r)
	release, ok := h.Limiter.Acquire(clientIP)
	if !ok {
		http.Error(w, "Too many connections from your IP", http.StatusTooManyRequests)
		h.Log.Warn("rate limited connection", "ip", clientIP)
		return
	}

	// A token is optional on the upgrade; when present it pins the user.
	var claimed string
	if token, ok := bearer(r); ok {
		user, err := h.Store.UserForToken(token)
		if err != nil {
			release()
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		claimed = user.ID
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		release()
		h.Log.Debug("upgrade failed", "error", err)
		return
	}

	client := ws.NewClient(h.Hub, conn, claimed, h.Log.With("ip", clientIP))
	go func() {
		defer release()
		client.WritePump()
	}()
	go client.ReadPump()
}

func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 1 {
		return def
	}
	return n
}

func fileURL(r *http.Request, name string) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/uploads/%s", scheme, r.Host, name)
}
