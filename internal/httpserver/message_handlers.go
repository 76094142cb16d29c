package httpserver

import (
	"encoding/json"
	"net/http"

	"chatrelay/internal/domain"
	"chatrelay/internal/service"
)

type newMessageRequest struct {
	ConversationID domain.ConversationID `json:"conversationId" validate:"gt=0"`
	SenderID       domain.UserID         `json:"senderId" validate:"gt=0"`
	Message        json.RawMessage       `json:"message" validate:"required"`
}

type messageDeletedRequest struct {
	ConversationID domain.ConversationID `json:"conversationId" validate:"gt=0"`
	MessageID      domain.MessageID      `json:"messageId" validate:"gt=0"`
}

type deliveryResponse struct {
	Delivered int `json:"delivered"`
}

// handleNewMessage relays a message the message service has already stored.
//
// @Summary      Relay a new message
// @Description  Broadcasts new_message to the conversation room and updates unread counts
// @Tags         events
// @Accept       json
// @Produce      json
// @Security     InternalToken
// @Param        input  body      newMessageRequest  true  "Stored message"
// @Success      202    {object}  deliveryResponse
// @Failure      400    {object}  map[string]string
// @Failure      404    {object}  map[string]string
// @Router       /internal/events/messages [post]
func handleNewMessage(rt *service.RealtimeService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in newMessageRequest
		if err := decode(w, r, &in); err != nil {
			writeError(w, err)
			return
		}
		n, err := rt.NotifyNewMessage(r.Context(), in.ConversationID, in.SenderID, in.Message)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, deliveryResponse{Delivered: n})
	}
}

// @Summary      Relay a message deletion
// @Tags         events
// @Accept       json
// @Produce      json
// @Security     InternalToken
// @Param        input  body      messageDeletedRequest  true  "Deleted message"
// @Success      202    {object}  deliveryResponse
// @Failure      400    {object}  map[string]string
// @Router       /internal/events/messages/deleted [post]
func handleMessageDeleted(rt *service.RealtimeService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in messageDeletedRequest
		if err := decode(w, r, &in); err != nil {
			writeError(w, err)
			return
		}
		n, err := rt.NotifyMessageDeleted(r.Context(), in.ConversationID, in.MessageID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, deliveryResponse{Delivered: n})
	}
}
