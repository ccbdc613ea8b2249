package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/bitkeep/internal/manager"
	"github.com/starford/bitkeep/internal/testutil"
)

func testServer(t *testing.T) (*Server, *manager.Manager) {
	t.Helper()
	m, _ := testutil.TestManager(t)
	if _, err := m.AddBitType(context.Background(), testutil.NoteType()); err != nil {
		t.Fatal(err)
	}
	return New(m), m
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_bits":
		result, err = srv.listBits(ctx, req)
	case "search_bits":
		result, err = srv.searchBits(ctx, req)
	case "get_bit":
		result, err = srv.getBit(ctx, req)
	case "add_bit":
		result, err = srv.addBit(ctx, req)
	case "add_bit_note":
		result, err = srv.addBitNote(ctx, req)
	case "toggle_pin":
		result, err = srv.togglePin(ctx, req)
	case "list_bit_types":
		result, err = srv.listBitTypes(ctx, req)
	case "list_collections":
		result, err = srv.listCollections(ctx, req)
	case "get_value_contract":
		result, err = srv.getValueContract(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func addBit(t *testing.T, srv *Server, data any) string {
	t.Helper()
	r := callTool(t, srv, "add_bit", map[string]interface{}{"type_id": "note", "data": data})
	text := resultText(r)
	if r.IsError || !strings.HasPrefix(text, "created: ") {
		t.Fatalf("add_bit = %q", text)
	}
	return strings.TrimPrefix(text, "created: ")
}

func TestAddAndGetBit(t *testing.T) {
	srv, _ := testServer(t)
	id := addBit(t, srv, map[string]interface{}{"title": "Groceries", "stars": 4})

	r := callTool(t, srv, "get_bit", map[string]interface{}{"id": id})
	var bit struct {
		ID   string `json:"id"`
		Type struct {
			ID string `json:"id"`
		} `json:"type"`
		Data []struct {
			PropertyID string `json:"propertyId"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &bit); err != nil {
		t.Fatalf("get_bit result: %v", err)
	}
	if bit.ID != id || bit.Type.ID != "note" || len(bit.Data) != 2 {
		t.Errorf("get_bit = %+v", bit)
	}
}

func TestAddBitAcceptsJSONString(t *testing.T) {
	srv, _ := testServer(t)
	addBit(t, srv, `{"title":"From string"}`)

	r := callTool(t, srv, "search_bits", map[string]interface{}{"query": "from STRING"})
	if !strings.Contains(resultText(r), "From string") {
		t.Errorf("search result = %q", resultText(r))
	}
}

func TestAddBitRejectsInvalidData(t *testing.T) {
	srv, m := testServer(t)

	cases := []map[string]interface{}{
		{"type_id": "note", "data": map[string]interface{}{"body": "no title"}},
		{"type_id": "note", "data": map[string]interface{}{"title": "x", "stars": 9}},
		{"type_id": "missing", "data": map[string]interface{}{"title": "x"}},
		{"type_id": "note", "data": "not json"},
		{"type_id": "note"},
	}
	for _, args := range cases {
		if r := callTool(t, srv, "add_bit", args); !r.IsError {
			t.Errorf("add_bit(%v) should fail, got %q", args, resultText(r))
		}
	}

	bits, err := m.StructuredBits(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(bits) != 0 {
		t.Errorf("bits = %d, want 0", len(bits))
	}
}

func TestGetBitMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_bit", map[string]interface{}{"id": "nope"})
	if !r.IsError {
		t.Error("expected error for missing bit")
	}
}

func TestTogglePinAndListPinned(t *testing.T) {
	srv, _ := testServer(t)
	a := addBit(t, srv, map[string]interface{}{"title": "A"})
	addBit(t, srv, map[string]interface{}{"title": "B"})

	r := callTool(t, srv, "toggle_pin", map[string]interface{}{"id": a})
	if text := resultText(r); text != a+" pinned: true" {
		t.Errorf("toggle_pin = %q", text)
	}

	r = callTool(t, srv, "list_bits", map[string]interface{}{"pinned": true})
	var pinned []bitSummary
	if err := json.Unmarshal([]byte(resultText(r)), &pinned); err != nil {
		t.Fatal(err)
	}
	if len(pinned) != 1 || pinned[0].ID != a || pinned[0].Title != "A" {
		t.Errorf("pinned = %+v", pinned)
	}

	r = callTool(t, srv, "toggle_pin", map[string]interface{}{"id": a})
	if text := resultText(r); text != a+" pinned: false" {
		t.Errorf("second toggle_pin = %q", text)
	}

	r = callTool(t, srv, "toggle_pin", map[string]interface{}{"id": a, "pinned": false})
	if text := resultText(r); text != a+" pinned: false" {
		t.Errorf("explicit toggle_pin = %q", text)
	}
}

func TestListBitsByType(t *testing.T) {
	srv, _ := testServer(t)
	addBit(t, srv, map[string]interface{}{"title": "A"})

	r := callTool(t, srv, "list_bits", map[string]interface{}{"type_id": "other"})
	if text := resultText(r); text != "[]" {
		t.Errorf("list_bits(other) = %q", text)
	}
	r = callTool(t, srv, "list_bits", map[string]interface{}{"type_id": "note"})
	if !strings.Contains(resultText(r), `"title": "A"`) {
		t.Errorf("list_bits(note) = %q", resultText(r))
	}
}

func TestAddBitNote(t *testing.T) {
	srv, m := testServer(t)
	id := addBit(t, srv, map[string]interface{}{"title": "A"})

	r := callTool(t, srv, "add_bit_note", map[string]interface{}{"bit_id": id, "content": "remember the keys"})
	if r.IsError {
		t.Fatalf("add_bit_note: %s", resultText(r))
	}
	bit, err := m.Bit(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if len(bit.Notes) != 1 || bit.Notes[0].Content != "remember the keys" {
		t.Errorf("notes = %+v", bit.Notes)
	}

	r = callTool(t, srv, "search_bits", map[string]interface{}{"query": "keys"})
	if !strings.Contains(resultText(r), id) {
		t.Errorf("note text should be searchable, got %q", resultText(r))
	}
}

func TestListBitTypesAndCollections(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "list_bit_types", map[string]interface{}{})
	if !strings.Contains(resultText(r), `"id": "note"`) {
		t.Errorf("list_bit_types = %q", resultText(r))
	}
	r = callTool(t, srv, "list_collections", map[string]interface{}{})
	if text := resultText(r); text != "[]" {
		t.Errorf("list_collections = %q", text)
	}
}

func TestValueContract(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_value_contract", map[string]interface{}{})
	text := resultText(r)
	for _, want := range []string{"multiselect", "YYYY-MM-DD", "[min, max, step]"} {
		if !strings.Contains(text, want) {
			t.Errorf("contract missing %q", want)
		}
	}
}

func TestBitTypesResource(t *testing.T) {
	srv, _ := testServer(t)
	contents, err := srv.readBitTypesResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != bitTypesURI || !strings.Contains(tc.Text, `"name": "Note"`) {
		t.Errorf("resource = %+v", contents[0])
	}
}
