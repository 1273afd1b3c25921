package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.JSON(http.StatusOK, swaggerJSON)
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>opencoder-api — Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// Minimal OpenAPI document describing the public endpoints.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "opencoder-api", "version": "v0.1.0" },
  "paths": {
    "/auth/login": {
      "post": {
        "summary": "Exchange Google authorization code for tokens",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"code":{"type":"string"},"redirect_uri":{"type":"string"}}}}}},
        "responses": { "200": { "description": "tokens returned" }, "401": { "description": "authentication failed" } }
      }
    },
    "/auth/refresh": {
      "post": { "summary": "Refresh access token", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"refresh_token":{"type":"string"}}}}}}, "responses": { "200": { "description": "new access token" }, "401": { "description": "invalid refresh" } } }
    },
    "/auth/logout": {
      "post": { "summary": "Logout and invalidate refresh token", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"refresh_token":{"type":"string"}}}}}}, "responses": { "200": { "description": "logged out" } } }
    },
    "/auth/me": {
      "get": { "summary": "Get the authenticated user's profile", "responses": { "200": { "description": "user profile" } } }
    },
    "/api/courses": {
      "get": { "summary": "Sync and list the user's classroom courses", "responses": { "200": { "description": "course list" } } }
    },
    "/api/courses/{id}/assignments": {
      "get": { "summary": "Sync and list coursework for a course", "responses": { "200": { "description": "assignment list" } } }
    },
    "/api/assignments/{id}/generate": {
      "post": { "summary": "Start draft generation for an assignment", "responses": { "202": { "description": "draft created in generating state" } } }
    },
    "/api/assignments/{id}/drafts": {
      "get": { "summary": "List the user's drafts for an assignment", "responses": { "200": { "description": "draft list" } } }
    },
    "/api/drafts/{id}": {
      "get": { "summary": "Get a draft", "responses": { "200": { "description": "draft" } } },
      "put": { "summary": "Save draft content and feedback", "responses": { "200": { "description": "updated draft" }, "409": { "description": "draft already submitted" } } }
    },
    "/api/drafts/{id}/retry": {
      "post": { "summary": "Retry a failed generation", "responses": { "202": { "description": "draft back in generating state" } } }
    },
    "/api/drafts/{id}/export": {
      "post": { "summary": "Export the draft as PDF", "responses": { "200": { "description": "PDF document" } } }
    },
    "/api/drafts/{id}/submit": {
      "post": { "summary": "Render and turn the draft in to classroom", "responses": { "200": { "description": "submission receipt" }, "409": { "description": "not in draft state" } } }
    },
    "/api/drafts/{id}/submission": {
      "get": { "summary": "Fetch the submission receipt and archived PDF link", "responses": { "200": { "description": "receipt" }, "409": { "description": "not submitted" } } }
    },
    "/api/drafts/{id}/events": {
      "get": { "summary": "Poll generation progress", "responses": { "200": { "description": "current status" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
