// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes bitkeep tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/oklog/ulid/v2"

	"github.com/starford/bitkeep/internal/models"
)

const bitTypesURI = "bitkeep://bit-types"

// Store is the store manager surface the tools use. Writes go through it so
// every connected window receives the broadcast.
type Store interface {
	StructuredBits(ctx context.Context) ([]models.Bit, error)
	StructuredPinnedBits(ctx context.Context) ([]models.Bit, error)
	Bit(ctx context.Context, id string) (models.Bit, error)
	AddBit(ctx context.Context, in models.BitInput) (models.Ref, error)
	TogglePin(ctx context.Context, id string, pinned bool, ts time.Time) (string, error)
	AddBitNote(ctx context.Context, n models.Note) (string, error)
	StructuredBitTypes(ctx context.Context) ([]models.BitTypeDefinition, error)
	StructuredCollections(ctx context.Context) ([]models.Collection, error)
}

// Server wraps the MCP server with bitkeep tools.
type Server struct {
	mcp   *server.MCPServer
	store Store
}

// New creates a new MCP server with all bitkeep tools registered.
func New(store Store) *Server {
	s := &Server{store: store}

	s.mcp = server.NewMCPServer(
		"bitkeep",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_bits",
		mcp.WithDescription("List bits (structured records), newest first, as a compact summary."),
		mcp.WithString("type_id", mcp.Description("Only bits of this bit type")),
		mcp.WithBoolean("pinned", mcp.Description("Only pinned bits")),
	), s.listBits)

	s.mcp.AddTool(mcp.NewTool("search_bits",
		mcp.WithDescription("Case-insensitive search over bit type names, property values and notes."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchBits)

	s.mcp.AddTool(mcp.NewTool("get_bit",
		mcp.WithDescription("Get one bit with its type, data and notes."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Bit id")),
	), s.getBit)

	s.mcp.AddTool(mcp.NewTool("add_bit",
		mcp.WithDescription("Create a bit of an existing bit type. Data values MUST follow the "+
			"value format contract; read it first via the get_value_contract tool."),
		mcp.WithString("type_id", mcp.Required(), mcp.Description("Bit type id (see list_bit_types)")),
		mcp.WithObject("data", mcp.Required(), mcp.Description("Object mapping property ids to values")),
		mcp.WithBoolean("pinned", mcp.Description("Pin the new bit")),
	), s.addBit)

	s.mcp.AddTool(mcp.NewTool("add_bit_note",
		mcp.WithDescription("Attach a free-text note to a bit."),
		mcp.WithString("bit_id", mcp.Required(), mcp.Description("Bit id")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Note text")),
	), s.addBitNote)

	s.mcp.AddTool(mcp.NewTool("toggle_pin",
		mcp.WithDescription("Pin or unpin a bit. Without 'pinned' the current state is flipped."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Bit id")),
		mcp.WithBoolean("pinned", mcp.Description("Desired pinned state")),
	), s.togglePin)

	s.mcp.AddTool(mcp.NewTool("list_bit_types",
		mcp.WithDescription("List bit types with their properties, types and options."),
	), s.listBitTypes)

	s.mcp.AddTool(mcp.NewTool("list_collections",
		mcp.WithDescription("List collections with their ordered bit ids."),
	), s.listCollections)

	s.mcp.AddTool(mcp.NewTool("get_value_contract",
		mcp.WithDescription("Returns the bitkeep value format contract. "+
			"Call this before adding bits to ensure correct data values."),
	), s.getValueContract)

	s.mcp.AddResource(
		mcp.NewResource(bitTypesURI, "Bit Types",
			mcp.WithResourceDescription("Every bit type definition as JSON."),
			mcp.WithMIMEType("application/json"),
		),
		s.readBitTypesResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

type bitSummary struct {
	ID     string    `json:"id"`
	Type   string    `json:"type"`
	Title  string    `json:"title"`
	Pinned bool      `json:"pinned"`
	Notes  int       `json:"notes"`
	Updated time.Time `json:"updatedAt"`
}

func summarize(bits []models.Bit) []bitSummary {
	out := make([]bitSummary, 0, len(bits))
	for _, b := range bits {
		out = append(out, bitSummary{
			ID:     b.ID,
			Type:   b.Type.ID,
			Title:  b.Title(),
			Pinned: b.Pinned,
			Notes:  len(b.Notes),
			Updated: b.UpdatedAt,
		})
	}
	return out
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listBits(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var (
		bits []models.Bit
		err  error
	)
	if req.GetBool("pinned", false) {
		bits, err = s.store.StructuredPinnedBits(ctx)
	} else {
		bits, err = s.store.StructuredBits(ctx)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if typeID := req.GetString("type_id", ""); typeID != "" {
		filtered := bits[:0]
		for _, b := range bits {
			if b.Type.ID == typeID {
				filtered = append(filtered, b)
			}
		}
		bits = filtered
	}
	return jsonResult(summarize(bits))
}

func (s *Server) searchBits(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bits, err := s.store.StructuredBits(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var hits []models.Bit
	for _, b := range bits {
		if b.Matches(query) {
			hits = append(hits, b)
		}
	}
	return jsonResult(summarize(hits))
}

func (s *Server) getBit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bit, err := s.store.Bit(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	return jsonResult(bit)
}

// dataArg accepts the data argument as an object or as a JSON-encoded object.
func dataArg(req mcp.CallToolRequest) (map[string]any, error) {
	raw, ok := req.GetArguments()["data"]
	if !ok {
		return nil, fmt.Errorf("required argument \"data\" not found")
	}
	switch v := raw.(type) {
	case map[string]any:
		return v, nil
	case string:
		var m map[string]any
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, fmt.Errorf("data: %w", err)
		}
		return m, nil
	}
	return nil, fmt.Errorf("data must be an object")
}

func (s *Server) addBit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	typeID, err := req.RequireString("type_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	values, err := dataArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	id := ulid.Make().String()
	in := models.BitInput{ID: id, TypeID: typeID, Pinned: req.GetBool("pinned", false)}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		in.Data = append(in.Data, models.BitData{BitID: id, PropertyID: k, Value: values[k]})
	}

	if _, err := s.store.AddBit(ctx, in); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", id)), nil
}

func (s *Server) addBitNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bitID, err := req.RequireString("bit_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := s.store.AddBitNote(ctx, models.Note{ID: ulid.Make().String(), BitID: bitID, Content: content})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created note: %s", id)), nil
}

func (s *Server) togglePin(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	pinned, err := req.RequireBool("pinned")
	if err != nil {
		bit, getErr := s.store.Bit(ctx, id)
		if getErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
		}
		pinned = !bit.Pinned
	}
	if _, err := s.store.TogglePin(ctx, id, pinned, time.Now()); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s pinned: %t", id, pinned)), nil
}

func (s *Server) listBitTypes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	defs, err := s.store.StructuredBitTypes(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(defs)
}

func (s *Server) listCollections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cols, err := s.store.StructuredCollections(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	type summary struct {
		ID   string   `json:"id"`
		Name string   `json:"name"`
		Bits []string `json:"bits"`
	}
	out := make([]summary, 0, len(cols))
	for _, c := range cols {
		sm := summary{ID: c.ID, Name: c.Name, Bits: make([]string, 0, len(c.Items))}
		for _, it := range c.Items {
			sm.Bits = append(sm.Bits, it.BitID)
		}
		out = append(out, sm)
	}
	return jsonResult(out)
}

func (s *Server) getValueContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ValueFormatContract), nil
}

func (s *Server) readBitTypesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	defs, err := s.store.StructuredBitTypes(ctx)
	if err != nil {
		return nil, err
	}
	out, err := json.MarshalIndent(defs, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      bitTypesURI,
			MIMEType: "application/json",
			Text:     string(out),
		},
	}, nil
}
