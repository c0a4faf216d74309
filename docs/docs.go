// Package docs registers the OpenAPI description served under /swagger.
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
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "paths": {
        "/api/quiz/score": {"post": {"tags": ["Quiz"], "summary": "Score a completed quiz", "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}}},
        "/api/otp/send": {"post": {"tags": ["OTP"], "summary": "Send a verification code", "responses": {"202": {"description": "Accepted"}, "429": {"description": "Too Many Requests"}, "502": {"description": "Bad Gateway"}}}},
        "/api/otp/verify": {"post": {"tags": ["OTP"], "summary": "Verify a code", "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "410": {"description": "Gone"}, "429": {"description": "Too Many Requests"}}}},
        "/api/leads": {"post": {"tags": ["Leads"], "summary": "Submit a verified lead", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}, "201": {"description": "Created"}, "401": {"description": "Unauthorized"}}}},
        "/admin/login": {"post": {"tags": ["Auth"], "summary": "Admin login", "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}, "423": {"description": "Locked"}}}},
        "/admin/leads": {"get": {"tags": ["Leads"], "summary": "List leads", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}},
        "/admin/leads/{id}": {"get": {"tags": ["Leads"], "summary": "Get a lead with its delivery history", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}},
        "/admin/leads/{id}/tier": {"put": {"tags": ["Leads"], "summary": "Override a lead's tier", "security": [{"BearerAuth": []}], "responses": {"204": {"description": "No Content"}}}},
        "/admin/leads/{id}/dispute": {"post": {"tags": ["Leads"], "summary": "Mark a lead disputed", "security": [{"BearerAuth": []}], "responses": {"204": {"description": "No Content"}}}},
        "/admin/leads/{id}/replace": {"post": {"tags": ["Leads"], "summary": "Mark a delivered lead replaced", "security": [{"BearerAuth": []}], "responses": {"204": {"description": "No Content"}}}},
        "/admin/leads/{id}/deliver": {"post": {"tags": ["Leads"], "summary": "Deliver a lead to a client", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}, "500": {"description": "Delivery Failed"}}}},
        "/admin/clients": {
            "get": {"tags": ["Clients"], "summary": "List clients", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["Clients"], "summary": "Create a client", "security": [{"BearerAuth": []}], "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}}}
        },
        "/admin/clients/{id}": {
            "get": {"tags": ["Clients"], "summary": "Get a client", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}},
            "put": {"tags": ["Clients"], "summary": "Update a client's profile", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}
        },
        "/admin/clients/{id}/packages": {"post": {"tags": ["Clients"], "summary": "Record a manual lead package purchase", "security": [{"BearerAuth": []}], "responses": {"201": {"description": "Created"}}}},
        "/admin/clients/{id}/schedule": {"get": {"tags": ["Clients"], "summary": "Current delivery schedule and today's throttle state", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}},
        "/admin/reports/summary": {"get": {"tags": ["Reports"], "summary": "Lead and client totals", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}},
        "/webhooks/stripe": {"post": {"tags": ["Billing"], "summary": "Stripe webhook", "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Settlement Sam API",
	Description:      "Injury-claim quiz, phone verification and lead delivery.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
