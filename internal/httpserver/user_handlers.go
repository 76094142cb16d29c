package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"chatrelay/internal/domain"
	"chatrelay/internal/service"
)

// @Summary      Current user presence
// @Description  Presence of the authenticated user, including the number of live connections
// @Tags         presence
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  service.PresenceStatus
// @Failure      401  {object}  map[string]string
// @Router       /api/me [get]
func handleMe(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
			return
		}
		st, err := userSvc.Presence(r.Context(), user.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// @Summary      Online users
// @Tags         presence
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   service.PresenceStatus
// @Router       /api/presence/online [get]
func handleListOnlineUsers(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, userSvc.Online())
	}
}

// @Summary      User presence
// @Tags         presence
// @Produce      json
// @Security     BearerAuth
// @Param        userID  path      int  true  "User ID"
// @Success      200     {object}  service.PresenceStatus
// @Failure      400     {object}  map[string]string
// @Failure      404     {object}  map[string]string
// @Router       /api/presence/{userID} [get]
func handleGetPresence(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idStr := chi.URLParam(r, "userID")
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil || id <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user id"})
			return
		}
		st, err := userSvc.Presence(r.Context(), domain.UserID(id))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}
