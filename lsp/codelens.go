package lsp

import (
	"context"

	messages "github.com/cucumber/messages/go/v21"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"
)

// CodeLens handles textDocument/codeLens requests. Every feature and named
// scenario gets a run lens; the client maps the command onto its own way of
// invoking the runner. Lenses come from the raw document so a Scenario
// Outline carries one lens covering all of its expanded instances.
func (s *Server) CodeLens(_ context.Context, params *protocol.CodeLensParams) ([]protocol.CodeLens, error) {
	defer s.traceHandler("CodeLens")()
	s.logger.Debug("CodeLens", zap.String("uri", string(params.TextDocument.URI)))

	doc, ok := s.getDocument(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	af := doc.analysisWithDoc()
	if af == nil || af.Doc.Feature == nil {
		return nil, nil
	}

	path := URIToPath(params.TextDocument.URI)
	feature := af.Doc.Feature

	lenses := []protocol.CodeLens{{
		Range: keywordRange(feature.Location),
		Command: &protocol.Command{
			Title:     "▶ Run Feature",
			Command:   "cuke.runFeature",
			Arguments: []any{path},
		},
	}}

	for _, child := range feature.Children {
		switch {
		case child.Scenario != nil:
			lenses = append(lenses, scenarioLenses(path, child.Scenario)...)
		case child.Rule != nil:
			for _, rc := range child.Rule.Children {
				if rc.Scenario != nil {
					lenses = append(lenses, scenarioLenses(path, rc.Scenario)...)
				}
			}
		}
	}

	return lenses, nil
}

// scenarioLenses returns the run lens for a scenario. Unnamed scenarios get
// none; the runner addresses scenarios by name.
func scenarioLenses(path string, sc *messages.Scenario) []protocol.CodeLens {
	if sc.Name == "" {
		return nil
	}

	return []protocol.CodeLens{{
		Range: keywordRange(sc.Location),
		Command: &protocol.Command{
			Title:     "▶ Run Scenario",
			Command:   "cuke.runScenario",
			Arguments: []any{path, sc.Name},
		},
	}}
}

// keywordRange is a zero-width range at a node's keyword, which is all lens
// placement needs.
func keywordRange(loc *messages.Location) protocol.Range {
	p := protocol.Position{}
	if loc != nil {
		if loc.Line > 0 {
			p.Line = uint32(loc.Line - 1)
		}
		if loc.Column > 0 {
			p.Character = uint32(loc.Column - 1)
		}
	}

	return protocol.Range{Start: p, End: p}
}
