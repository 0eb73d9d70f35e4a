package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the service.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>socialsignin - Swagger</title>
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

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "socialsignin", "version": "v0.1.0" },
  "paths": {
    "/auth/{provider}": {
      "get": {
        "summary": "Start sign-in with google, github or twitter",
        "parameters": [{ "name": "provider", "in": "path", "required": true, "schema": { "type": "string", "enum": ["google", "github", "twitter"] } }],
        "responses": { "302": { "description": "redirect to the provider" }, "404": { "description": "provider not configured" } }
      }
    },
    "/auth/{provider}/callback": {
      "get": {
        "summary": "Provider callback",
        "parameters": [{ "name": "provider", "in": "path", "required": true, "schema": { "type": "string" } }],
        "responses": { "302": { "description": "session cookie set and redirect to the client, or redirect to /login on failure" } }
      }
    },
    "/getuser": {
      "get": { "summary": "Current user", "responses": { "200": { "description": "user object, or empty body when not signed in" } } }
    },
    "/auth/logout": {
      "get": { "summary": "End the session", "responses": { "200": { "description": "done" }, "401": { "description": "not logged in" } } }
    },
    "/": { "get": { "summary": "Greeting", "responses": { "200": { "description": "Hello World" } } } },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
