// Package docs holds the swagger description served at /swagger.
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
        "/api/v1/bookings": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Bookings"], "summary": "Create booking",
                "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}, "409": {"description": "Conflict"}}}
        },
        "/api/v1/bookings/{bookingId}": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["Bookings"], "summary": "Get booking",
                "parameters": [{"type": "string", "name": "bookingId", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}
        },
        "/api/v1/bookings/{bookingId}/cancel": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Bookings"], "summary": "Cancel booking",
                "parameters": [{"type": "string", "name": "bookingId", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "403": {"description": "Forbidden"}, "409": {"description": "Conflict"}}}
        },
        "/api/v1/bookings/{bookingId}/complete": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Bookings"], "summary": "Mark booking complete",
                "parameters": [{"type": "string", "name": "bookingId", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}}
        },
        "/api/v1/bookings/{bookingId}/release": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Bookings"], "summary": "Release escrow",
                "parameters": [{"type": "string", "name": "bookingId", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "403": {"description": "Forbidden"}}}
        },
        "/api/v1/bookings/{bookingId}/escrow": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["Bookings"], "summary": "Get booking escrow",
                "parameters": [{"type": "string", "name": "bookingId", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}
        },
        "/api/v1/escrow/{escrowId}/release": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Bookings"], "summary": "Release escrow entry",
                "parameters": [{"type": "string", "name": "escrowId", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "403": {"description": "Forbidden"}, "404": {"description": "Not Found"}}}
        },
        "/api/v1/bookings/{bookingId}/pay-from-wallet": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Bookings"], "summary": "Pay booking from wallet",
                "parameters": [{"type": "string", "name": "bookingId", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "402": {"description": "Payment Required"}, "409": {"description": "Conflict"}}}
        },
        "/api/v1/payments/verify": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Payments"], "summary": "Verify payment",
                "responses": {"200": {"description": "OK"}, "503": {"description": "Service Unavailable"}}}
        },
        "/api/v1/banks": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["Wallet"], "summary": "List payout banks",
                "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/wallet": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["Wallet"], "summary": "Get wallet",
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}
        },
        "/api/v1/wallet/journal": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["Wallet"], "summary": "Wallet journal",
                "parameters": [{"type": "integer", "name": "limit", "in": "query"}],
                "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/wallet/statement": {
            "get": {"security": [{"BearerAuth": []}], "produces": ["application/pdf"], "tags": ["Wallet"], "summary": "Wallet statement",
                "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/wallet/withdrawals": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Wallet"], "summary": "Request withdrawal",
                "responses": {"200": {"description": "Replayed"}, "201": {"description": "Created"}, "402": {"description": "Payment Required"}}}
        },
        "/api/v1/admin/bookings/{id}/refund": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Admin"], "summary": "Refund booking",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}}}
        },
        "/api/v1/admin/complaints": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Admin"], "summary": "Record complaint",
                "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/admin/compliance/{musicianId}": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["Admin"], "summary": "Get compliance record",
                "parameters": [{"type": "string", "name": "musicianId", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}
        },
        "/api/v1/admin/compliance/{musicianId}/reset": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Admin"], "summary": "Reset compliance record",
                "parameters": [{"type": "string", "name": "musicianId", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}
        },
        "/api/v1/admin/withdrawals/{id}/settle": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Admin"], "summary": "Settle withdrawal",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}}}
        },
        "/webhooks/payments/{provider}": {
            "post": {"tags": ["Payments"], "summary": "Payment webhook",
                "parameters": [{"type": "string", "name": "provider", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}}
        },
        "/internal/scheduler/run": {
            "post": {"tags": ["Scheduler"], "summary": "Run all sweeps",
                "parameters": [{"type": "string", "name": "X-Scheduler-Secret", "in": "header", "required": true}],
                "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}}}
        },
        "/internal/scheduler/run/{sweep}": {
            "post": {"tags": ["Scheduler"], "summary": "Run one sweep",
                "parameters": [
                    {"type": "string", "name": "X-Scheduler-Secret", "in": "header", "required": true},
                    {"type": "string", "name": "sweep", "in": "path", "required": true, "enum": ["auto_release", "incomplete_bookings", "compliance"]}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "401": {"description": "Unauthorized"}}}
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "Gigbook Payments API",
	Description:      "Escrow, wallet and settlement API for musician bookings",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
