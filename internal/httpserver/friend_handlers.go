package httpserver

import (
	"encoding/json"
	"net/http"

	"chatrelay/internal/domain"
	"chatrelay/internal/friends"
	"chatrelay/internal/service"
)

type friendEventRequest struct {
	Kind     friends.Kind    `json:"kind" validate:"oneof=request_sent request_accepted request_declined request_cancelled unfriended"`
	ActorID  domain.UserID   `json:"actorId" validate:"gte=0"`
	TargetID domain.UserID   `json:"targetId" validate:"gt=0,nefield=ActorID"`
	Payload  json.RawMessage `json:"payload"`
}

// @Summary      Relay a friend relationship change
// @Tags         events
// @Accept       json
// @Produce      json
// @Security     InternalToken
// @Param        input  body      friendEventRequest  true  "Relationship change"
// @Success      202    {object}  deliveryResponse
// @Failure      400    {object}  map[string]string
// @Router       /internal/events/friends [post]
func handleFriendEvent(rt *service.RealtimeService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in friendEventRequest
		if err := decode(w, r, &in); err != nil {
			writeError(w, err)
			return
		}
		var payload any = in.Payload
		if len(in.Payload) == 0 {
			payload = map[string]any{"userId": in.ActorID}
		}
		n, err := rt.NotifyFriendRequestChange(r.Context(), friends.Event{
			Kind:    in.Kind,
			ActorID: in.ActorID,
			Target:  in.TargetID,
			Payload: payload,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, deliveryResponse{Delivered: n})
	}
}
