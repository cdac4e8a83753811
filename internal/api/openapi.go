package api

import (
	"encoding/json"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/gaspardpetit/chatrelay/internal/logx"
)

func errorSchema() *openapi3.Schema {
	return openapi3.NewObjectSchema().
		WithProperty("error", openapi3.NewObjectSchema().
			WithProperty("message", openapi3.NewStringSchema()).
			WithRequired([]string{"message"})).
		WithRequired([]string{"error"})
}

func jsonResponse(desc string, schema *openapi3.Schema) *openapi3.ResponseRef {
	return &openapi3.ResponseRef{Value: openapi3.NewResponse().WithDescription(desc).WithJSONSchema(schema)}
}

// OpenAPIDocument describes the public HTTP surface of the relay.
func OpenAPIDocument(version string) *openapi3.T {
	chatBody := openapi3.NewObjectSchema().
		WithProperty("contents", openapi3.NewArraySchema().WithItems(openapi3.NewObjectSchema())).
		WithRequired([]string{"contents"})

	chat := openapi3.NewOperation()
	chat.OperationID = "chat"
	chat.Summary = "Send a conversation to the model and return the first reply"
	chat.RequestBody = &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().WithRequired(true).WithJSONSchema(chatBody)}
	chat.Responses = openapi3.NewResponses(
		openapi3.WithStatus(200, jsonResponse("Model reply", openapi3.NewObjectSchema().
			WithProperty("text", openapi3.NewStringSchema()).
			WithRequired([]string{"text"}))),
		openapi3.WithStatus(400, jsonResponse("Missing or malformed conversation", errorSchema())),
		openapi3.WithStatus(413, jsonResponse("Request body too large", errorSchema())),
		openapi3.WithStatus(500, jsonResponse("Configuration, transport or response structure error", errorSchema())),
		openapi3.WithName("default", jsonResponse("Upstream error relayed with the upstream status", errorSchema()).Value),
	)

	health := openapi3.NewOperation()
	health.OperationID = "health"
	health.Summary = "Liveness probe"
	health.Responses = openapi3.NewResponses(
		openapi3.WithStatus(200, &openapi3.ResponseRef{Value: openapi3.NewResponse().
			WithDescription("Always OK").
			WithContent(openapi3.NewContentWithSchema(openapi3.NewStringSchema(), []string{"text/plain"}))}),
	)

	return &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:   "chatrelay API",
			Version: version,
		},
		Paths: openapi3.NewPaths(
			openapi3.WithPath("/api/chat", &openapi3.PathItem{Post: chat}),
			openapi3.WithPath("/health", &openapi3.PathItem{Get: health}),
		),
	}
}

// OpenAPIHandler serves the OpenAPI document as JSON.
func OpenAPIHandler(version string) http.HandlerFunc {
	b, err := json.Marshal(OpenAPIDocument(version))
	if err != nil {
		panic(err)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write(b); err != nil {
			logx.Log.Error().Err(err).Msg("write openapi")
		}
	}
}
