package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/mscwg/mscat/internal/docstore"
	"github.com/mscwg/mscat/internal/record"
	"github.com/mscwg/mscat/internal/relation"
)

func newTestServer(t *testing.T) (*Server, *record.Catalog) {
	t.Helper()

	dir := t.TempDir()
	data, err := docstore.Open(filepath.Join(dir, "catalog.db"))
	if err != nil {
		t.Fatalf("Failed to open data store: %v", err)
	}
	t.Cleanup(func() { data.Close() })

	vocab, err := docstore.Open(filepath.Join(dir, "vocab.db"))
	if err != nil {
		t.Fatalf("Failed to open vocab store: %v", err)
	}
	t.Cleanup(func() { vocab.Close() })

	catalog := record.NewCatalog(data, vocab)

	server := NewServer(&Config{
		Port:         0, // Use random available port
		Catalog:      catalog,
		PollInterval: 50 * time.Millisecond,
		Logger:       log.New(os.Stderr, "[test] ", log.LstdFlags),
	})

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() {
		if err := server.Stop(); err != nil {
			t.Errorf("Failed to stop server: %v", err)
		}
	})

	// Give server time to start
	time.Sleep(100 * time.Millisecond)

	return server, catalog
}

func saveRecord(t *testing.T, c *record.Catalog, code string, data map[string]any) *record.Record {
	t.Helper()
	r, err := c.New(code)
	if err != nil {
		t.Fatalf("Failed to create record: %v", err)
	}
	r.Data = data
	if err := c.Save(context.Background(), r); err != nil {
		t.Fatalf("Failed to save record: %v", err)
	}
	return r
}

func getJSON(t *testing.T, server *Server, path string, out any) int {
	t.Helper()
	resp, err := http.Get("http://" + server.GetAddr() + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK && out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("Failed to decode response from %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func TestListPagination(t *testing.T) {
	server, catalog := newTestServer(t)

	for i := 1; i <= 12; i++ {
		saveRecord(t, catalog, "m", map[string]any{
			"title": fmt.Sprintf("Scheme %02d", i),
		})
	}

	var resp page
	if status := getJSON(t, server, "/api2/m?page=2&pageSize=5", &resp); status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", status)
	}

	if resp.APIVersion != Version {
		t.Errorf("Expected apiVersion %s, got %s", Version, resp.APIVersion)
	}
	if resp.Data.TotalItems != 12 {
		t.Errorf("Expected 12 total items, got %d", resp.Data.TotalItems)
	}
	if resp.Data.TotalPages != 3 {
		t.Errorf("Expected 3 total pages, got %d", resp.Data.TotalPages)
	}
	if resp.Data.StartIndex != 6 {
		t.Errorf("Expected start index 6, got %d", resp.Data.StartIndex)
	}
	if resp.Data.CurrentItemCount != 5 {
		t.Errorf("Expected 5 items on page, got %d", resp.Data.CurrentItemCount)
	}
	if resp.Data.NextLink == "" || resp.Data.PreviousLink == "" {
		t.Errorf("Expected next and previous links on a middle page, got next=%q previous=%q",
			resp.Data.NextLink, resp.Data.PreviousLink)
	}

	first, ok := resp.Data.Items[0].(map[string]any)
	if !ok {
		t.Fatalf("Expected item to be an object, got %T", resp.Data.Items[0])
	}
	if first["mscid"] != "msc:m6" {
		t.Errorf("Expected first item on page 2 to be msc:m6, got %v", first["mscid"])
	}
}

func TestListStartOffset(t *testing.T) {
	server, catalog := newTestServer(t)

	for i := 1; i <= 7; i++ {
		saveRecord(t, catalog, "g", map[string]any{
			"name": fmt.Sprintf("Org %d", i),
		})
	}

	var resp page
	if status := getJSON(t, server, "/api2/g?start=3&pageSize=5", &resp); status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", status)
	}

	if resp.Data.StartIndex != 3 {
		t.Errorf("Expected start index 3, got %d", resp.Data.StartIndex)
	}
	// An offset off the page boundary leaves a short leading page
	if resp.Data.TotalPages != 3 {
		t.Errorf("Expected 3 total pages with offset start, got %d", resp.Data.TotalPages)
	}
	if resp.Data.CurrentItemCount != 5 {
		t.Errorf("Expected 5 items, got %d", resp.Data.CurrentItemCount)
	}
}

func TestPagingErrors(t *testing.T) {
	server, catalog := newTestServer(t)
	saveRecord(t, catalog, "m", map[string]any{"title": "Only one"})

	if status := getJSON(t, server, "/api2/m?page=9", nil); status != http.StatusNotFound {
		t.Errorf("Expected 404 for page out of range, got %d", status)
	}
	if status := getJSON(t, server, "/api2/m?start=5", nil); status != http.StatusNotFound {
		t.Errorf("Expected 404 for start out of range, got %d", status)
	}
	if status := getJSON(t, server, "/api2/m?page=abc", nil); status != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed page, got %d", status)
	}
}

func TestGetRecordEmbedsRelated(t *testing.T) {
	server, catalog := newTestServer(t)

	scheme := saveRecord(t, catalog, "m", map[string]any{"title": "Test Scheme"})
	org := saveRecord(t, catalog, "g", map[string]any{"name": "Test Org"})

	batch := relation.Batch{}
	batch.Insert(scheme.IDString(), "maintainer", org.IDString())
	if err := catalog.Relations.Add(context.Background(), batch); err != nil {
		t.Fatalf("Failed to add relation: %v", err)
	}

	var resp item
	if status := getJSON(t, server, "/api2/m1", &resp); status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", status)
	}

	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("Expected object data, got %T", resp.Data)
	}
	if data["mscid"] != "msc:m1" {
		t.Errorf("Expected mscid msc:m1, got %v", data["mscid"])
	}
	if data["title"] != "Test Scheme" {
		t.Errorf("Expected title to survive, got %v", data["title"])
	}

	entities, ok := data["relatedEntities"].([]any)
	if !ok || len(entities) != 1 {
		t.Fatalf("Expected one related entity, got %v", data["relatedEntities"])
	}
	entity := entities[0].(map[string]any)
	if entity["id"] != "msc:g1" {
		t.Errorf("Expected related entity msc:g1, got %v", entity["id"])
	}
	if entity["role"] != "maintainers" {
		t.Errorf("Expected role maintainers, got %v", entity["role"])
	}
	embedded, ok := entity["data"].(map[string]any)
	if !ok {
		t.Fatalf("Expected embedded entity data, got %v", entity["data"])
	}
	if embedded["name"] != "Test Org" {
		t.Errorf("Expected embedded org name, got %v", embedded["name"])
	}
	// Embedding stops after one level
	if _, nested := embedded["relatedEntities"].([]any); nested {
		inner := embedded["relatedEntities"].([]any)[0].(map[string]any)
		if _, deep := inner["data"]; deep {
			t.Error("Expected embedded entities not to embed further data")
		}
	}
}

func TestRelatedRolesSorted(t *testing.T) {
	server, catalog := newTestServer(t)

	scheme := saveRecord(t, catalog, "m", map[string]any{"title": "Test Scheme"})
	org := saveRecord(t, catalog, "g", map[string]any{"name": "Test Org"})

	// The series lists maintainers ahead of funders on the form, but the
	// API emits roles alphabetically.
	batch := relation.Batch{}
	batch.Insert(scheme.IDString(), "maintainer", org.IDString())
	batch.Insert(scheme.IDString(), "funder", org.IDString())
	if err := catalog.Relations.Add(context.Background(), batch); err != nil {
		t.Fatalf("Failed to add relations: %v", err)
	}

	var resp item
	if status := getJSON(t, server, "/api2/m1", &resp); status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", status)
	}
	data := resp.Data.(map[string]any)
	entities, ok := data["relatedEntities"].([]any)
	if !ok || len(entities) != 2 {
		t.Fatalf("Expected two related entities, got %v", data["relatedEntities"])
	}

	var roles []string
	for _, e := range entities {
		roles = append(roles, e.(map[string]any)["role"].(string))
	}
	if roles[0] != "funders" || roles[1] != "maintainers" {
		t.Errorf("Expected roles in sorted order [funders maintainers], got %v", roles)
	}
}

func TestGetRecordNotFound(t *testing.T) {
	server, _ := newTestServer(t)

	if status := getJSON(t, server, "/api2/m99", nil); status != http.StatusNotFound {
		t.Errorf("Expected 404 for missing record, got %d", status)
	}
	if status := getJSON(t, server, "/api2/x1", nil); status != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown series, got %d", status)
	}
}

func TestRelationEndpoints(t *testing.T) {
	server, catalog := newTestServer(t)

	batch := relation.Batch{}
	batch.Insert("msc:m1", "maintainer", "msc:g1", "msc:g2")
	batch.Insert("msc:t1", "supported scheme", "msc:m1")
	if err := catalog.Relations.Add(context.Background(), batch); err != nil {
		t.Fatalf("Failed to add relations: %v", err)
	}

	var listing page
	if status := getJSON(t, server, "/api2/rel", &listing); status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", status)
	}
	if listing.Data.TotalItems != 2 {
		t.Errorf("Expected 2 relation records, got %d", listing.Data.TotalItems)
	}

	var single item
	if status := getJSON(t, server, "/api2/rel/m1", &single); status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", status)
	}
	doc, ok := single.Data.(map[string]any)
	if !ok {
		t.Fatalf("Expected object data, got %T", single.Data)
	}
	if doc["@id"] != "msc:m1" {
		t.Errorf("Expected @id msc:m1, got %v", doc["@id"])
	}
	objects, ok := doc["maintainer"].([]any)
	if !ok || len(objects) != 2 {
		t.Fatalf("Expected two maintainers, got %v", doc["maintainer"])
	}

	if status := getJSON(t, server, "/api2/rel/not-an-id!", nil); status != http.StatusNotFound {
		t.Errorf("Expected 404 for malformed identifier, got %d", status)
	}
}

func TestWebSocketConnection(t *testing.T) {
	server, _ := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws://" + server.GetAddr() + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if count := server.ClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read hello message: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if msg.Type != MessageTypeHello {
		t.Errorf("Expected hello message type %s, got %s", MessageTypeHello, msg.Type)
	}
}

func TestFeedBroadcastsCommittedChanges(t *testing.T) {
	server, catalog := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws://" + server.GetAddr() + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Read hello message
	if _, _, err := conn.Read(ctx); err != nil {
		t.Fatalf("Failed to read hello message: %v", err)
	}

	saveRecord(t, catalog, "m", map[string]any{"title": "Watched Scheme"})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read feed message: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if msg.Type != MessageTypeRecordUpdate {
		t.Errorf("Expected message type %s, got %s", MessageTypeRecordUpdate, msg.Type)
	}

	var update UpdateData
	if err := json.Unmarshal(msg.Data, &update); err != nil {
		t.Fatalf("Failed to unmarshal update data: %v", err)
	}
	if update.Collection != "m" || update.Key != "1" {
		t.Errorf("Expected update for m/1, got %s/%s", update.Collection, update.Key)
	}
	if update.Action != docstore.ActionPut {
		t.Errorf("Expected action %s, got %s", docstore.ActionPut, update.Action)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	var health map[string]any
	if status := getJSON(t, server, "/health", &health); status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", status)
	}
	if health["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", health["status"])
	}
}
