package domain

import "encoding/json"

// Server-to-client event names.
const (
	EventUserOnline          = "user_online"
	EventUserOffline         = "user_offline"
	EventNewMessage          = "new_message"
	EventMessageDeleted      = "message_deleted"
	EventNewConversation     = "new_conversation"
	EventConversationSeen    = "conversation_seen"
	EventUnreadCountsUpdated = "unread_counts_updated"
	EventAck                 = "ack"

	EventNewFriendRequest       = "new_friend_request"
	EventFriendRequestAccepted  = "friend_request_accepted"
	EventFriendRequestDeclined  = "friend_request_declined"
	EventFriendRequestCancelled = "friend_request_cancelled"
	EventUnfriended             = "unfriended"
)

// Client-to-server command names.
const (
	CommandJoinConversation  = "join_conversation"
	CommandLeaveConversation = "leave_conversation"
	CommandSeenMessage       = "seen_message"
)

// Ack statuses.
const (
	AckOK    = "ok"
	AckError = "error"
)

// Frame is the JSON envelope exchanged over a connection in both directions.
type Frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Ack answers a client command carrying a request id.
type Ack struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func AckOf(err error) Ack {
	if err != nil {
		return Ack{Status: AckError, Message: err.Error()}
	}
	return Ack{Status: AckOK}
}

// PresencePayload is broadcast on online/offline transitions.
type PresencePayload struct {
	UserID      UserID  `json:"userId"`
	Username    string  `json:"username"`
	DisplayName string  `json:"displayName"`
	AvatarURL   *string `json:"avatarUrl"`
	IsOnline    bool    `json:"isOnline"`
}

// EncodeFrame marshals an outbound frame once so it can be shared by every
// target connection.
func EncodeFrame(event, requestID string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Type: event, RequestID: requestID, Payload: raw})
}
