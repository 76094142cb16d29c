package httpserver

import (
	"encoding/json"
	"net/http"

	"chatrelay/internal/domain"
	"chatrelay/internal/service"
)

type conversationCreatedRequest struct {
	ConversationID domain.ConversationID `json:"conversationId" validate:"gt=0"`
	MemberIDs      []domain.UserID       `json:"memberIds" validate:"min=1,dive,gt=0"`
	Conversation   json.RawMessage       `json:"conversation" validate:"required"`
}

// @Summary      Announce a new conversation
// @Description  Subscribes the members' live connections and sends them new_conversation
// @Tags         events
// @Accept       json
// @Produce      json
// @Security     InternalToken
// @Param        input  body      conversationCreatedRequest  true  "Created conversation"
// @Success      202    {object}  deliveryResponse
// @Failure      400    {object}  map[string]string
// @Router       /internal/events/conversations [post]
func handleConversationCreated(rt *service.RealtimeService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in conversationCreatedRequest
		if err := decode(w, r, &in); err != nil {
			writeError(w, err)
			return
		}
		n, err := rt.NotifyConversationCreated(r.Context(), in.ConversationID, in.MemberIDs, in.Conversation)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, deliveryResponse{Delivered: n})
	}
}
