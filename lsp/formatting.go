package lsp

import (
	"context"
	"strings"

	"go.lsp.dev/protocol"
	"go.uber.org/zap"

	"github.com/rlch/cuke"
)

// Formatting handles textDocument/formatting requests by re-printing the
// parsed document through the canonical formatter. A buffer that does not
// parse is left untouched; formatting must never destroy work in progress.
func (s *Server) Formatting(_ context.Context, params *protocol.DocumentFormattingParams) ([]protocol.TextEdit, error) {
	defer s.traceHandler("Formatting")()
	s.logger.Debug("Formatting", zap.String("uri", string(params.TextDocument.URI)))

	doc, ok := s.getDocument(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	// Only the current analysis may be used here: formatting a stale parse
	// would resurrect old content.
	if doc.Analysis == nil || doc.Analysis.Doc == nil {
		return nil, nil
	}

	formatted := cuke.Format(doc.Analysis.Doc)
	if formatted == doc.Content {
		return nil, nil
	}

	return []protocol.TextEdit{{
		Range:   fullDocumentRange(doc.Content),
		NewText: formatted,
	}}, nil
}

// fullDocumentRange spans content from its first to its last character.
func fullDocumentRange(content string) protocol.Range {
	lines := strings.Split(content, "\n")
	last := lines[len(lines)-1]

	return protocol.Range{
		Start: protocol.Position{Line: 0, Character: 0},
		End: protocol.Position{
			Line:      uint32(len(lines) - 1),
			Character: uint32(len(last)),
		},
	}
}
