// Package mcpserver exposes the contact directory as Model Context Protocol
// tools so that MCP-capable assistants can list, look up, add and remove
// contacts. Every tool is backed directly by a [directory.Directory]
// operation; directory errors are reported as tool errors, not protocol
// failures.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/voxmail/internal/directory"
	"github.com/MrWong99/voxmail/pkg/types"
)

// Tool names.
const (
	ToolList   = "list_contacts"
	ToolLookup = "lookup_contact"
	ToolAdd    = "add_contact"
	ToolRemove = "remove_contact"
)

type nameArgs struct {
	Name string `json:"name" jsonschema:"contact name; matching ignores case and extra spaces"`
}

type contactArgs struct {
	Name    string `json:"name" jsonschema:"contact name"`
	Address string `json:"address" jsonschema:"email address"`
}

type listArgs struct{}

// New returns an MCP server with the contact tools registered on dir.
func New(dir *directory.Directory, version string) *mcpsdk.Server {
	s := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "voxmail", Version: version}, nil)
	h := &handlers{dir: dir}

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        ToolList,
		Description: "List every contact in the voxmail directory in insertion order.",
	}, h.list)
	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        ToolLookup,
		Description: "Return the email address stored for an exact contact name.",
	}, h.lookup)
	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        ToolAdd,
		Description: "Add a contact. Fails if the name already exists.",
	}, h.add)
	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        ToolRemove,
		Description: "Remove a contact by name.",
	}, h.remove)
	return s
}

// ServeStdio serves the tools on stdin/stdout until ctx is done or the
// client disconnects.
func ServeStdio(ctx context.Context, dir *directory.Directory, version string) error {
	slog.Info("mcp server listening on stdio")
	if err := New(dir, version).Run(ctx, &mcpsdk.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcpserver: %w", err)
	}
	return nil
}

type handlers struct {
	dir *directory.Directory
}

func (h *handlers) list(_ context.Context, _ *mcpsdk.CallToolRequest, _ listArgs) (*mcpsdk.CallToolResult, any, error) {
	return jsonResult(map[string]any{"contacts": h.dir.List()})
}

func (h *handlers) lookup(_ context.Context, _ *mcpsdk.CallToolRequest, in nameArgs) (*mcpsdk.CallToolResult, any, error) {
	name := directory.Normalize(in.Name)
	addr, ok := h.dir.Lookup(name)
	if !ok {
		return toolError(fmt.Errorf("%w: %q", directory.ErrNotFound, name)), nil, nil
	}
	return jsonResult(types.Contact{Name: name, Address: addr})
}

func (h *handlers) add(ctx context.Context, _ *mcpsdk.CallToolRequest, in contactArgs) (*mcpsdk.CallToolResult, any, error) {
	c, err := h.dir.Add(ctx, in.Name, in.Address)
	if err != nil {
		return toolError(err), nil, nil
	}
	return jsonResult(c)
}

func (h *handlers) remove(ctx context.Context, _ *mcpsdk.CallToolRequest, in nameArgs) (*mcpsdk.CallToolResult, any, error) {
	if err := h.dir.Remove(ctx, in.Name); err != nil {
		return toolError(err), nil, nil
	}
	return jsonResult(map[string]string{"removed": directory.Normalize(in.Name)})
}

func jsonResult(v any) (*mcpsdk.CallToolResult, any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("mcpserver: encode result: %w", err)
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(b)}},
	}, nil, nil
}

func toolError(err error) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
		IsError: true,
	}
}
