package ingress

import (
	"encoding/json"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

// =============================================================================
// OpenAPI Document
// =============================================================================

var (
	openAPIOnce sync.Once
	openAPIJSON []byte
	openAPIErr  error
)

// openAPIDocument builds and caches the admin API description.
func openAPIDocument() ([]byte, error) {
	openAPIOnce.Do(func() {
		doc := buildOpenAPISpec()
		openAPIJSON, openAPIErr = json.Marshal(doc)
	})
	return openAPIJSON, openAPIErr
}

func buildOpenAPISpec() *openapi3.T {
	jsonResponse := func(description string) *openapi3.ResponseRef {
		return &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription(description).
				WithJSONSchema(openapi3.NewSchema()),
		}
	}

	listOp := func(summary, description string) *openapi3.Operation {
		op := openapi3.NewOperation()
		op.Summary = summary
		op.Responses = openapi3.NewResponses()
		op.Responses.Set("200", jsonResponse(description))
		return op
	}

	paths := openapi3.NewPaths()
	paths.Set("/health", &openapi3.PathItem{
		Get: listOp("Liveness probe", "Server status and route count"),
	})
	paths.Set("/ready", &openapi3.PathItem{
		Get: listOp("Readiness probe", "Ready once the initial container sync completed"),
	})
	paths.Set("/api/v1/routes", &openapi3.PathItem{
		Get: listOp("List routes", "Current route table snapshot, most specific first"),
	})
	paths.Set("/api/v1/certificates", &openapi3.PathItem{
		Get: listOp("List certificates", "Certificate lifecycle state per domain"),
	})
	paths.Set("/api/v1/deployments", &openapi3.PathItem{
		Get: listOp("List deployments", "Recorded stack deployments, newest first"),
	})
	paths.Set("/api/v1/events", &openapi3.PathItem{
		Get: listOp("List route events", "Route table change audit trail, newest first"),
	})

	getDeployment := listOp("Get deployment", "A single deployment record")
	getDeployment.Responses.Set("404", jsonResponse("Unknown deployment ID"))
	getDeployment.Parameters = openapi3.Parameters{
		&openapi3.ParameterRef{
			Value: openapi3.NewPathParameter("id").WithSchema(openapi3.NewStringSchema()),
		},
	}
	paths.Set("/api/v1/deployments/{id}", &openapi3.PathItem{Get: getDeployment})

	return &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       "pressedge admin API",
			Description: "Route table, certificate, and deployment introspection.",
			Version:     "1.0.0",
		},
		Paths: paths,
	}
}
