// Package docs registers the OpenAPI description of the relay's HTTP API with
// swag. Regenerate with `swag init -g cmd/server/main.go` after changing the
// handler annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/me": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Presence of the authenticated user, including the number of live connections",
                "produces": ["application/json"],
                "tags": ["presence"],
                "summary": "Current user presence",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/service.PresenceStatus"}},
                    "401": {"description": "Unauthorized", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/api/presence/online": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["presence"],
                "summary": "Online users",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/service.PresenceStatus"}}}
                }
            }
        },
        "/api/presence/{userID}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["presence"],
                "summary": "User presence",
                "parameters": [
                    {"type": "integer", "description": "User ID", "name": "userID", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/service.PresenceStatus"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/internal/events/conversations": {
            "post": {
                "security": [{"InternalToken": []}],
                "description": "Subscribes the members' live connections and sends them new_conversation",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["events"],
                "summary": "Announce a new conversation",
                "parameters": [
                    {"description": "Created conversation", "name": "input", "in": "body", "required": true, "schema": {"$ref": "#/definitions/httpserver.conversationCreatedRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/httpserver.deliveryResponse"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/internal/events/friends": {
            "post": {
                "security": [{"InternalToken": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["events"],
                "summary": "Relay a friend relationship change",
                "parameters": [
                    {"description": "Relationship change", "name": "input", "in": "body", "required": true, "schema": {"$ref": "#/definitions/httpserver.friendEventRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/httpserver.deliveryResponse"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/internal/events/messages": {
            "post": {
                "security": [{"InternalToken": []}],
                "description": "Broadcasts new_message to the conversation room and updates unread counts",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["events"],
                "summary": "Relay a new message",
                "parameters": [
                    {"description": "Stored message", "name": "input", "in": "body", "required": true, "schema": {"$ref": "#/definitions/httpserver.newMessageRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/httpserver.deliveryResponse"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/internal/events/messages/deleted": {
            "post": {
                "security": [{"InternalToken": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["events"],
                "summary": "Relay a message deletion",
                "parameters": [
                    {"description": "Deleted message", "name": "input", "in": "body", "required": true, "schema": {"$ref": "#/definitions/httpserver.messageDeletedRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/httpserver.deliveryResponse"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        }
    },
    "definitions": {
        "httpserver.conversationCreatedRequest": {
            "type": "object",
            "required": ["conversation"],
            "properties": {
                "conversation": {"type": "object"},
                "conversationId": {"type": "integer"},
                "memberIds": {"type": "array", "minItems": 1, "items": {"type": "integer"}}
            }
        },
        "httpserver.deliveryResponse": {
            "type": "object",
            "properties": {
                "delivered": {"type": "integer"}
            }
        },
        "httpserver.friendEventRequest": {
            "type": "object",
            "properties": {
                "actorId": {"type": "integer"},
                "kind": {"type": "string", "enum": ["request_sent", "request_accepted", "request_declined", "request_cancelled", "unfriended"]},
                "payload": {"type": "object"},
                "targetId": {"type": "integer"}
            }
        },
        "httpserver.messageDeletedRequest": {
            "type": "object",
            "properties": {
                "conversationId": {"type": "integer"},
                "messageId": {"type": "integer"}
            }
        },
        "httpserver.newMessageRequest": {
            "type": "object",
            "required": ["message"],
            "properties": {
                "conversationId": {"type": "integer"},
                "message": {"type": "object"},
                "senderId": {"type": "integer"}
            }
        },
        "service.PresenceStatus": {
            "type": "object",
            "properties": {
                "avatarUrl": {"type": "string"},
                "connections": {"type": "integer"},
                "displayName": {"type": "string"},
                "isOnline": {"type": "boolean"},
                "userId": {"type": "integer"},
                "username": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"},
        "InternalToken": {"type": "apiKey", "name": "X-Internal-Token", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8000",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "chatrelay API",
	Description:      "Realtime relay for chat presence, conversation events and read state.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
