package handlers

import (
	"net/http"
	"strconv"

	"brokerage_ledger/internal/repository/notifications"
)

func (h *Handlers) Notifications(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64)
	out, err := notifications.ListRecent(r.Context(), h.Mongo, s.UserID, limit)
	if err != nil {
		h.Logger.Printf("[NOTIFY][LIST][ERR] user=%s err=%v", s.UserID, err)
		h.fail(w, http.StatusInternalServerError, "could not load notifications")
		return
	}
	h.ok(w, http.StatusOK, out, "")
}
