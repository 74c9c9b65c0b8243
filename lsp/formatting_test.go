package lsp_test

import (
	"context"
	"testing"

	"go.lsp.dev/protocol"

	"github.com/rlch/cuke/lsp"
)

func formatEdits(t *testing.T, server *lsp.Server, uri protocol.DocumentURI) []protocol.TextEdit {
	t.Helper()

	edits, err := server.Formatting(context.Background(), &protocol.DocumentFormattingParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
	})
	if err != nil {
		t.Fatalf("Formatting() error: %v", err)
	}

	return edits
}

func TestFormatting_NormalizesIndentation(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	uri := protocol.DocumentURI("file:///billing.feature")
	open(t, server, uri, `Feature: billing
Scenario: charge
Given a balance of 100
When I charge 30
Then the balance is 70
`)

	edits := formatEdits(t, server, uri)
	if len(edits) != 1 {
		t.Fatalf("Got %d edits, want one whole-document edit: %+v", len(edits), edits)
	}

	edit := edits[0]
	want := `Feature: billing

  Scenario: charge
    Given a balance of 100
    When I charge 30
    Then the balance is 70
`
	if edit.NewText != want {
		t.Errorf("NewText = %q, want %q", edit.NewText, want)
	}
	if edit.Range.Start.Line != 0 || edit.Range.Start.Character != 0 {
		t.Errorf("Range start = %+v, want document start", edit.Range.Start)
	}
	// The source has six split lines, the last one empty after the
	// trailing newline.
	if edit.Range.End.Line != 5 {
		t.Errorf("Range end line = %d, want 5", edit.Range.End.Line)
	}
}

func TestFormatting_AlreadyFormatted(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	uri := protocol.DocumentURI("file:///formatted.feature")
	open(t, server, uri, `Feature: billing

  Scenario: charge
    Given a balance of 100
    When I charge 30
    Then the balance is 70
`)

	if edits := formatEdits(t, server, uri); edits != nil {
		t.Errorf("Expected no edits for formatted text, got %+v", edits)
	}
}

func TestFormatting_StaleParseProducesNoEdits(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	uri := protocol.DocumentURI("file:///mid-edit.feature")
	open(t, server, uri, `Feature: f
  Scenario: s
    Given a step
`)

	// The buffer no longer parses; formatting from the previous parse
	// would overwrite what the user is typing.
	change(t, server, uri, 2, `Feature: f
  Scenario: s
    Given a table
      | a |
      misplaced
`)

	if edits := formatEdits(t, server, uri); edits != nil {
		t.Errorf("Expected no edits while the buffer does not parse, got %+v", edits)
	}
}

func TestFormatting_UnknownDocument(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)

	if edits := formatEdits(t, server, "file:///never-opened.feature"); edits != nil {
		t.Errorf("Expected no edits for unknown document, got %+v", edits)
	}
}
