package lsp

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotSupported is returned by Collaborator methods that have no
// standard LSP request to answer them with the teacher's existing
// LSPClient surface (hover, diagnostics and open-buffer tracking are
// editor-state concerns, not requests Jsonrpc2LSPClient implements).
var ErrNotSupported = errors.New("lsp: not supported by this collaborator")

// Collaborator adapts an LSPClient into the tool layer's editor
// integration contract. It covers find_references and quickfix directly
// via textDocument/references and textDocument/codeAction; hover,
// diagnostics and buffer listing are left unimplemented rather than
// fabricated against LSP requests the client was never built against.
type Collaborator struct {
	Client LSPClient
}

// NewCollaborator wraps client for use as the tool layer's Collaborator.
func NewCollaborator(client LSPClient) *Collaborator {
	return &Collaborator{Client: client}
}

func pathToURI(path string) string {
	if strings.HasPrefix(path, "file://") {
		return path
	}
	return "file://" + path
}

func (c *Collaborator) FlushUnsavedChanges(ctx context.Context, path string) (bool, error) {
	return false, ErrNotSupported
}

func (c *Collaborator) FindReferences(ctx context.Context, path string, line, character int) (string, error) {
	locations, err := c.Client.TextDocumentReferences(ctx, pathToURI(path), line, character)
	if err != nil {
		return "", err
	}
	return formatLocations(locations), nil
}

func (c *Collaborator) Hover(ctx context.Context, path string, line, character int) (string, error) {
	return "", ErrNotSupported
}

func (c *Collaborator) Diagnostics(ctx context.Context, path string) (string, error) {
	return "", ErrNotSupported
}

func (c *Collaborator) ListBuffers(ctx context.Context) (string, error) {
	return "", ErrNotSupported
}

func (c *Collaborator) Quickfix(ctx context.Context, path string, line, character int) (string, error) {
	actions, err := c.Client.TextDocumentCodeAction(ctx, CodeActionParams{
		TextDocument: TextDocumentIdentifier{DocumentURI: pathToURI(path)},
		Range: Range{
			Start: Position{Line: line, Character: character},
			End:   Position{Line: line, Character: character},
		},
		Context: CodeActionContext{},
	})
	if err != nil {
		return "", err
	}
	return formatCodeActions(actions), nil
}

func formatLocations(locations []Location) string {
	if len(locations) == 0 {
		return "no references found"
	}
	var sb strings.Builder
	for _, loc := range locations {
		fmt.Fprintf(&sb, "%s:%d:%d\n", loc.URI, loc.Range.Start.Line, loc.Range.Start.Character)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatCodeActions(actions []CodeAction) string {
	if len(actions) == 0 {
		return "no quickfix actions available"
	}
	var sb strings.Builder
	for _, a := range actions {
		fmt.Fprintf(&sb, "%s\n", a.Title)
	}
	return strings.TrimRight(sb.String(), "\n")
}
