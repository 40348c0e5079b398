package openapi

import (
	"testing"
)

func testServices() []ServiceSpec {
	return []ServiceSpec{
		{Slug: "products", Name: "Product Service", ODataVersion: "v2", Entities: []string{"Products", "Suppliers"}},
		{Slug: "orders", Name: "Order Service", ODataVersion: "v4", Entities: []string{"SalesOrders"}},
	}
}

func TestGenerate_DocumentShape(t *testing.T) {
	doc := Generate(testServices(), "http://localhost:8080")

	if doc.OpenAPI != "3.1.0" {
		t.Errorf("OpenAPI version = %q, want 3.1.0", doc.OpenAPI)
	}
	if doc.Info == nil || doc.Info.Title != "S4Kit API" {
		t.Errorf("unexpected Info: %+v", doc.Info)
	}
	if len(doc.Servers) != 1 || doc.Servers[0].URL != "http://localhost:8080" {
		t.Errorf("unexpected Servers: %+v", doc.Servers)
	}
}

func TestGenerate_SecurityScheme(t *testing.T) {
	doc := Generate(testServices(), "http://localhost:8080")

	ref, found := doc.Components.SecuritySchemes["apiKey"]
	if !found {
		t.Fatal("expected apiKey security scheme")
	}
	if ref.Value.Type != "apiKey" || ref.Value.In != "header" || ref.Value.Name != "X-API-Key" {
		t.Errorf("unexpected scheme: %+v", ref.Value)
	}
	if len(doc.Security) != 1 {
		t.Errorf("expected global security requirement, got %d", len(doc.Security))
	}
}

func TestGenerate_EntityPaths(t *testing.T) {
	doc := Generate(testServices(), "http://localhost:8080")

	// 3 entities, 2 paths each (collection + by-key)
	if doc.Paths.Len() != 6 {
		t.Fatalf("paths = %d, want 6", doc.Paths.Len())
	}

	collection := doc.Paths.Find("/odata/products/Products")
	if collection == nil {
		t.Fatal("missing collection path for Products")
	}
	if collection.Get == nil || collection.Post == nil {
		t.Error("collection path should define Get and Post")
	}
	if collection.Delete != nil {
		t.Error("collection path should not define Delete")
	}

	item := doc.Paths.Find("/odata/products/Products({key})")
	if item == nil {
		t.Fatal("missing by-key path for Products")
	}
	if item.Get == nil || item.Patch == nil || item.Delete == nil {
		t.Error("by-key path should define Get, Patch, and Delete")
	}
	if item.Post != nil {
		t.Error("by-key path should not define Post")
	}
}

func TestGenerate_QueryParameters(t *testing.T) {
	doc := Generate(testServices(), "http://localhost:8080")

	get := doc.Paths.Find("/odata/orders/SalesOrders").Get
	want := map[string]bool{
		"$top": false, "$skip": false, "$filter": false, "$select": false,
		"$expand": false, "$orderby": false, "$count": false, "$search": false,
	}
	for _, p := range get.Parameters {
		if _, ok := want[p.Value.Name]; ok {
			want[p.Value.Name] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("collection Get is missing query parameter %s", name)
		}
	}
}

func TestGenerate_ErrorResponses(t *testing.T) {
	doc := Generate(testServices(), "http://localhost:8080")

	responses := doc.Paths.Find("/odata/products/Products").Get.Responses
	for _, status := range []string{"200", "400", "401", "403", "429"} {
		if responses.Value(status) == nil {
			t.Errorf("missing %s response", status)
		}
	}

	if _, found := doc.Components.Schemas["ErrorResponse"]; !found {
		t.Error("missing ErrorResponse component schema")
	}
	if _, found := doc.Components.Schemas["ProxyResponse"]; !found {
		t.Error("missing ProxyResponse component schema")
	}
}

func TestGenerate_EmptyServiceList(t *testing.T) {
	doc := Generate(nil, "http://localhost:8080")

	if doc.Paths.Len() != 0 {
		t.Errorf("paths = %d, want 0", doc.Paths.Len())
	}
	// The document skeleton is still complete.
	if doc.Components == nil || doc.Info == nil {
		t.Error("empty spec should still carry Info and Components")
	}
}
