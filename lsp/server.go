// Package lsp implements a Language Server Protocol server for Gherkin
// feature files.
//
// The server analyzes open documents with the analysis package and publishes
// the findings as diagnostics. On top of that it serves folding ranges,
// keyword and step completion, code lenses for running scenarios, and
// whole-document formatting through the canonical formatter.
package lsp

import (
	"context"
	"strings"
	"sync"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/zap"

	"github.com/rlch/cuke/analysis"
	"github.com/rlch/cuke/step"
)

// Server implements the LSP server for feature files.
//
// The embedded protocol.Server backs the parts of the protocol surface this
// server does not provide. Conforming clients only send requests for
// advertised capabilities, so those methods are never dispatched.
type Server struct {
	protocol.Server

	client protocol.Client
	logger *zap.Logger

	mu        sync.RWMutex
	documents map[protocol.DocumentURI]*Document

	analyzer *analysis.Analyzer
	registry *step.Registry

	initialized   bool
	shutdown      bool
	workspaceRoot string
}

// Document is an open document in the server.
type Document struct {
	URI     protocol.DocumentURI
	Version int32
	Content string

	// Analysis always corresponds to Content; open and change re-analyze
	// synchronously before releasing the document lock.
	Analysis *analysis.AnalyzedFile

	// LastValidAnalysis holds the most recent analysis that parsed. Position
	// queries fall back to it while the document is mid-edit.
	LastValidAnalysis *analysis.AnalyzedFile
}

// NewServer creates an LSP server. registry supplies the step definitions
// used for step completion and undefined-step diagnostics; it may be nil, in
// which case those features are disabled and only structural lints run.
func NewServer(client protocol.Client, logger *zap.Logger, registry *step.Registry) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Server{
		client:    client,
		logger:    logger,
		documents: make(map[protocol.DocumentURI]*Document),
		analyzer:  analysis.NewAnalyzer(registry),
		registry:  registry,
	}
}

// Initialize handles the initialize request.
func (s *Server) Initialize(_ context.Context, params *protocol.InitializeParams) (*protocol.InitializeResult, error) {
	if params.RootURI != "" {
		s.workspaceRoot = URIToPath(params.RootURI)
	} else if params.RootPath != "" {
		s.workspaceRoot = params.RootPath
	}
	s.logger.Info("Initialize", zap.String("root", s.workspaceRoot))

	return &protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			// Full sync: the client sends the entire content on every change.
			TextDocumentSync: &protocol.TextDocumentSyncOptions{
				OpenClose: true,
				Change:    protocol.TextDocumentSyncKindFull,
			},
			CompletionProvider: &protocol.CompletionOptions{
				ResolveProvider: false,
			},
			FoldingRangeProvider:       true,
			DocumentFormattingProvider: true,
			CodeLensProvider: &protocol.CodeLensOptions{
				ResolveProvider: false,
			},
		},
		ServerInfo: &protocol.ServerInfo{
			Name:    "cuke-lsp",
			Version: "0.1.0",
		},
	}, nil
}

// Initialized handles the initialized notification.
func (s *Server) Initialized(_ context.Context, _ *protocol.InitializedParams) error {
	s.logger.Info("Initialized")
	s.initialized = true

	return nil
}

// Shutdown handles the shutdown request.
func (s *Server) Shutdown(_ context.Context) error {
	s.logger.Info("Shutdown")
	s.shutdown = true

	return nil
}

// Exit handles the exit notification. The connection loop exits after this.
func (s *Server) Exit(_ context.Context) error {
	s.logger.Info("Exit")

	return nil
}

// WorkspaceRoot returns the workspace root captured during initialize.
func (s *Server) WorkspaceRoot() string {
	return s.workspaceRoot
}

// DidOpen handles textDocument/didOpen notifications.
func (s *Server) DidOpen(ctx context.Context, params *protocol.DidOpenTextDocumentParams) error {
	s.logger.Info("DidOpen", zap.String("uri", string(params.TextDocument.URI)))

	doc := &Document{
		URI:     params.TextDocument.URI,
		Version: params.TextDocument.Version,
		Content: params.TextDocument.Text,
	}
	doc.Analysis = s.analyzer.Analyze(URIToPath(doc.URI), []byte(doc.Content))
	if doc.Analysis.ParseError == nil {
		doc.LastValidAnalysis = doc.Analysis
	}

	s.mu.Lock()
	s.documents[params.TextDocument.URI] = doc
	s.mu.Unlock()

	// Publish outside the lock: PublishDiagnostics is an RPC, and the client
	// may issue requests that need the document lock before it returns.
	s.publishDiagnostics(ctx, doc)

	return nil
}

// DidChange handles textDocument/didChange notifications.
func (s *Server) DidChange(ctx context.Context, params *protocol.DidChangeTextDocumentParams) error {
	s.logger.Debug("DidChange",
		zap.String("uri", string(params.TextDocument.URI)),
		zap.Int32("version", params.TextDocument.Version))

	var changed *Document

	s.mu.Lock()
	doc, ok := s.documents[params.TextDocument.URI]
	if !ok {
		s.mu.Unlock()
		s.logger.Warn("DidChange for unknown document", zap.String("uri", string(params.TextDocument.URI)))

		return nil
	}

	// Full sync: the last change carries the complete document.
	if n := len(params.ContentChanges); n > 0 {
		doc.Content = params.ContentChanges[n-1].Text
		doc.Version = params.TextDocument.Version
		doc.Analysis = s.analyzer.Analyze(URIToPath(doc.URI), []byte(doc.Content))
		if doc.Analysis.ParseError == nil {
			doc.LastValidAnalysis = doc.Analysis
		}
		changed = doc
	}
	s.mu.Unlock()

	// Same invariant as DidOpen: never hold the document lock across the
	// diagnostics RPC, or a concurrent completion request deadlocks.
	if changed != nil {
		s.publishDiagnostics(ctx, changed)
	}

	return nil
}

// DidClose handles textDocument/didClose notifications.
func (s *Server) DidClose(ctx context.Context, params *protocol.DidCloseTextDocumentParams) error {
	s.logger.Info("DidClose", zap.String("uri", string(params.TextDocument.URI)))

	s.mu.Lock()
	delete(s.documents, params.TextDocument.URI)
	s.mu.Unlock()

	err := s.client.PublishDiagnostics(ctx, &protocol.PublishDiagnosticsParams{
		URI:         params.TextDocument.URI,
		Diagnostics: []protocol.Diagnostic{},
	})
	if err != nil {
		s.logger.Error("Failed to clear diagnostics", zap.Error(err))
	}

	return nil
}

// DidSave handles textDocument/didSave notifications. Analysis already ran on
// the change that preceded the save, so there is nothing to do.
func (s *Server) DidSave(_ context.Context, params *protocol.DidSaveTextDocumentParams) error {
	s.logger.Debug("DidSave", zap.String("uri", string(params.TextDocument.URI)))

	return nil
}

// DidChangeConfiguration handles workspace/didChangeConfiguration. The server
// has no client-side settings; clients send the notification regardless.
func (s *Server) DidChangeConfiguration(_ context.Context, _ *protocol.DidChangeConfigurationParams) error {
	s.logger.Debug("DidChangeConfiguration")

	return nil
}

// DidChangeWatchedFiles handles workspace/didChangeWatchedFiles. The server
// registers no watchers; only open documents are analyzed.
func (s *Server) DidChangeWatchedFiles(_ context.Context, _ *protocol.DidChangeWatchedFilesParams) error {
	s.logger.Debug("DidChangeWatchedFiles")

	return nil
}

// SetTrace handles $/setTrace notifications.
func (s *Server) SetTrace(_ context.Context, params *protocol.SetTraceParams) error {
	s.logger.Debug("SetTrace", zap.String("value", string(params.Value)))

	return nil
}

// getDocument returns a document by URI (read-locked).
func (s *Server) getDocument(u protocol.DocumentURI) (*Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[u]

	return doc, ok
}

// analysisWithDoc returns the freshest analysis that carries a parsed
// document: the current one, or the last valid one while the buffer is
// mid-edit and does not parse.
func (d *Document) analysisWithDoc() *analysis.AnalyzedFile {
	if d.Analysis != nil && d.Analysis.Doc != nil {
		return d.Analysis
	}

	return d.LastValidAnalysis
}

// URIToPath converts a file:// URI to a filesystem path. Other URIs are
// returned verbatim and treated as opaque names.
func URIToPath(u protocol.DocumentURI) string {
	if !strings.HasPrefix(string(u), "file://") {
		return string(u)
	}

	return uri.URI(u).Filename()
}
