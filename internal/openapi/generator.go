// Package openapi generates an OpenAPI 3.1 document describing the proxy
// surface: one path set per exposed entity of every active instance
// service. Entity payloads are open objects; the proxy does not hold SAP
// entity metadata.
package openapi

import (
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

// ServiceSpec holds the inputs needed to describe one routable service.
type ServiceSpec struct {
	Slug         string
	Name         string
	ODataVersion string
	Entities     []string
}

// Generate builds the combined spec for all routable services.
func Generate(services []ServiceSpec, baseURL string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "S4Kit API",
			Description: "API-key-authenticated proxy for SAP OData services, by S4Kit.",
			Version:     "1.0.0",
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["apiKey"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type: "apiKey",
			In:   "header",
			Name: "X-API-Key",
		},
	}
	doc.Security = openapi3.SecurityRequirements{
		{"apiKey": {}},
	}

	doc.Paths = openapi3.NewPaths()

	doc.Components.Schemas["ErrorResponse"] = errorResponseSchema()
	doc.Components.Schemas["ProxyResponse"] = proxyResponseSchema()

	for _, svc := range services {
		for _, entity := range svc.Entities {
			addEntityPaths(doc, svc, entity)
		}
	}

	return doc
}

func addEntityPaths(doc *openapi3.T, svc ServiceSpec, entity string) {
	tag := fmt.Sprintf("%s/%s", svc.Slug, entity)
	collectionPath := fmt.Sprintf("/odata/%s/%s", svc.Slug, entity)
	itemPath := fmt.Sprintf("/odata/%s/%s({key})", svc.Slug, entity)

	responseRef := "#/components/schemas/ProxyResponse"

	doc.Paths.Set(collectionPath, &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{tag},
			Summary:     fmt.Sprintf("Query %s", entity),
			OperationID: fmt.Sprintf("list_%s_%s", svc.Slug, entity),
			Parameters:  odataQueryParameters(),
			Responses:   standardResponses(responseRef),
		},
		Post: &openapi3.Operation{
			Tags:        []string{tag},
			Summary:     fmt.Sprintf("Create a %s record", entity),
			OperationID: fmt.Sprintf("create_%s_%s", svc.Slug, entity),
			RequestBody: openObjectBody(),
			Responses:   standardResponses(responseRef),
		},
	})

	doc.Paths.Set(itemPath, &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{tag},
			Summary:     fmt.Sprintf("Read one %s record", entity),
			OperationID: fmt.Sprintf("get_%s_%s", svc.Slug, entity),
			Parameters:  keyParameter(),
			Responses:   standardResponses(responseRef),
		},
		Patch: &openapi3.Operation{
			Tags:        []string{tag},
			Summary:     fmt.Sprintf("Update a %s record", entity),
			OperationID: fmt.Sprintf("update_%s_%s", svc.Slug, entity),
			Parameters:  keyParameter(),
			RequestBody: openObjectBody(),
			Responses:   standardResponses(responseRef),
		},
		Delete: &openapi3.Operation{
			Tags:        []string{tag},
			Summary:     fmt.Sprintf("Delete a %s record", entity),
			OperationID: fmt.Sprintf("delete_%s_%s", svc.Slug, entity),
			Parameters:  keyParameter(),
			Responses:   standardResponses(responseRef),
		},
	})
}

// odataQueryParameters describes the supported $-parameters on collection
// reads.
func odataQueryParameters() openapi3.Parameters {
	params := openapi3.Parameters{}
	for _, p := range []struct {
		name, typ, desc string
	}{
		{"$top", "integer", "Maximum number of records to return"},
		{"$skip", "integer", "Number of records to skip"},
		{"$filter", "string", "OData filter expression"},
		{"$select", "string", "Comma-separated list of fields"},
		{"$expand", "string", "Navigation properties to expand"},
		{"$orderby", "string", "Sort order"},
		{"$count", "boolean", "Include the total record count"},
		{"$search", "string", "Free-text search"},
	} {
		params = append(params, &openapi3.ParameterRef{
			Value: &openapi3.Parameter{
				Name:        p.name,
				In:          "query",
				Description: p.desc,
				Schema: &openapi3.SchemaRef{
					Value: &openapi3.Schema{Type: &openapi3.Types{p.typ}},
				},
			},
		})
	}
	return params
}

func keyParameter() openapi3.Parameters {
	return openapi3.Parameters{
		&openapi3.ParameterRef{
			Value: &openapi3.Parameter{
				Name:        "key",
				In:          "path",
				Required:    true,
				Description: "Entity key. Numeric keys are unquoted, GUIDs use guid'...', other strings are single-quoted.",
				Schema: &openapi3.SchemaRef{
					Value: &openapi3.Schema{Type: &openapi3.Types{"string"}},
				},
			},
		},
	}
}

func openObjectBody() *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{
		Value: &openapi3.RequestBody{
			Required: true,
			Content: openapi3.Content{
				"application/json": &openapi3.MediaType{
					Schema: &openapi3.SchemaRef{
						Value: &openapi3.Schema{Type: &openapi3.Types{"object"}},
					},
				},
			},
		},
	}
}

func standardResponses(successRef string) *openapi3.Responses {
	responses := openapi3.NewResponses()
	responses.Set("200", jsonResponse("Success", successRef))
	responses.Set("400", jsonResponse("Validation error", "#/components/schemas/ErrorResponse"))
	responses.Set("401", jsonResponse("Authentication failed", "#/components/schemas/ErrorResponse"))
	responses.Set("403", jsonResponse("Permission denied", "#/components/schemas/ErrorResponse"))
	responses.Set("429", jsonResponse("Rate limit exceeded", "#/components/schemas/ErrorResponse"))
	return responses
}

func jsonResponse(description, ref string) *openapi3.ResponseRef {
	return &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &description,
			Content: openapi3.Content{
				"application/json": &openapi3.MediaType{
					Schema: openapi3.NewSchemaRef(ref, nil),
				},
			},
		},
	}
}

func errorResponseSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"error": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type: &openapi3.Types{"object"},
						Properties: openapi3.Schemas{
							"code":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
							"message": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
							"context": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
						},
					},
				},
			},
		},
	}
}

func proxyResponseSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"data":      &openapi3.SchemaRef{Value: &openapi3.Schema{}},
				"count":     &openapi3.SchemaRef{Value: &openapi3.Schema{}},
				"next_link": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"meta": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type: &openapi3.Types{"object"},
						Properties: openapi3.Schemas{
							"request_id":   &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
							"record_count": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}}},
							"took_ms":      &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"number"}}},
							"sap_took_ms":  &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"number"}}},
							"data_hidden":  &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
						},
					},
				},
			},
		},
	}
}
