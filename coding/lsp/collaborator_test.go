package lsp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollaborator_FindReferences_FormatsLocations(t *testing.T) {
	mock := MockLSPClient{
		TextDocumentReferencesFunc: func(ctx context.Context, uri string, line, character int) ([]Location, error) {
			assert.Equal(t, "file:///a.go", uri)
			return []Location{{URI: "file:///b.go", Range: Range{Start: Position{Line: 3, Character: 1}}}}, nil
		},
	}
	c := NewCollaborator(mock)
	out, err := c.FindReferences(context.Background(), "/a.go", 10, 2)
	require.NoError(t, err)
	assert.Equal(t, "file:///b.go:3:1", out)
}

func TestCollaborator_FindReferences_NoneFound(t *testing.T) {
	mock := MockLSPClient{
		TextDocumentReferencesFunc: func(ctx context.Context, uri string, line, character int) ([]Location, error) {
			return nil, nil
		},
	}
	c := NewCollaborator(mock)
	out, err := c.FindReferences(context.Background(), "/a.go", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "no references found", out)
}

func TestCollaborator_Quickfix_FormatsActionTitles(t *testing.T) {
	mock := MockLSPClient{
		TextDocumentCodeActionFunc: func(ctx context.Context, params CodeActionParams) ([]CodeAction, error) {
			return []CodeAction{{Title: "Add missing import"}}, nil
		},
	}
	c := NewCollaborator(mock)
	out, err := c.Quickfix(context.Background(), "/a.go", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "Add missing import", out)
}

func TestCollaborator_HoverAndDiagnosticsAreUnsupported(t *testing.T) {
	c := NewCollaborator(MockLSPClient{})
	_, err := c.Hover(context.Background(), "/a.go", 0, 0)
	assert.ErrorIs(t, err, ErrNotSupported)
	_, err = c.Diagnostics(context.Background(), "/a.go")
	assert.ErrorIs(t, err, ErrNotSupported)
	_, err = c.ListBuffers(context.Background())
	assert.ErrorIs(t, err, ErrNotSupported)
	_, err = c.FlushUnsavedChanges(context.Background(), "/a.go")
	assert.ErrorIs(t, err, ErrNotSupported)
}
