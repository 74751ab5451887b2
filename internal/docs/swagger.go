// Package docs serves interactive API documentation: an inline OpenAPI
// description plus a Swagger UI shell loaded from a CDN, so the binary
// carries no embedded static assets.
package docs

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

const openAPISpec = `openapi: 3.0.3
info:
  title: llm-dispatch API
  version: "1.0"
  description: Cost and latency aware dispatch across LLM backends.
paths:
  /v1/infer:
    post:
      summary: Dispatch an inference request to the best-ranked provider
      requestBody:
        required: true
        content:
          application/json:
            schema:
              type: object
              required: [prompt]
              properties:
                model:
                  type: string
                prompt:
                  type: string
                max_tokens:
                  type: integer
                schema:
                  type: string
                  description: presence requests structured-output capability
                provider:
                  type: string
                  description: pin dispatch to a single registered providerId
      responses:
        "200":
          description: successful completion
          content:
            application/json:
              schema:
                type: object
                properties:
                  provider:
                    type: string
                  text:
                    type: string
                  cost_usd:
                    type: number
                  latency_ms:
                    type: integer
        "502":
          description: no provider could serve the request
  /v1/admin/status:
    get:
      summary: Per-provider telemetry, circuit-breaker, and budget status
      security:
        - bearerAuth: []
      responses:
        "200":
          description: status snapshot
components:
  securitySchemes:
    bearerAuth:
      type: http
      scheme: bearer
`

const swaggerPage = `<!DOCTYPE html>
<html>
<head>
	<title>llm-dispatch API</title>
	<link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
	<style>
		body { margin: 0; background: #fafafa; }
		.topbar { display: none; }
	</style>
</head>
<body>
	<div id="swagger-ui"></div>
	<script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
	<script>
		window.onload = function() {
			SwaggerUIBundle({
				url: '/docs/openapi.yaml',
				dom_id: '#swagger-ui',
				deepLinking: true,
				presets: [SwaggerUIBundle.presets.apis],
				layout: "BaseLayout"
			})
		}
	</script>
</body>
</html>`

// SwaggerUIHandler serves the Swagger UI shell and the inline OpenAPI spec.
func SwaggerUIHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		if path == "/docs" || path == "/docs/" {
			serveSwaggerHTML(w)
			return
		}
		if strings.HasSuffix(path, "openapi.yaml") {
			w.Header().Set("Content-Type", "application/yaml")
			_, _ = w.Write([]byte(openAPISpec))
			return
		}
		http.NotFound(w, r)
	})
}

func serveSwaggerHTML(w http.ResponseWriter) {
	t, err := template.New("swagger").Parse(swaggerPage)
	if err != nil {
		log.Error().Err(err).Msg("failed to parse swagger template")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	if err := t.Execute(w, nil); err != nil {
		log.Error().Err(err).Msg("failed to execute swagger template")
	}
}
