package lsp_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.lsp.dev/protocol"
	"go.uber.org/zap"

	"github.com/rlch/cuke/lsp"
	"github.com/rlch/cuke/step"
)

// fakeClient records the notifications the server sends. The embedded
// protocol.Client covers the methods these tests never exercise.
type fakeClient struct {
	protocol.Client

	mu        sync.Mutex
	published []*protocol.PublishDiagnosticsParams
	logged    []*protocol.LogMessageParams
}

func (c *fakeClient) PublishDiagnostics(_ context.Context, params *protocol.PublishDiagnosticsParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, params)

	return nil
}

func (c *fakeClient) LogMessage(_ context.Context, params *protocol.LogMessageParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logged = append(c.logged, params)

	return nil
}

// lastPublished returns the most recent diagnostics publication.
func (c *fakeClient) lastPublished() *protocol.PublishDiagnosticsParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.published) == 0 {
		return nil
	}

	return c.published[len(c.published)-1]
}

func (c *fakeClient) logMessages() []*protocol.LogMessageParams {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]*protocol.LogMessageParams{}, c.logged...)
}

func newTestServer(t *testing.T) (*lsp.Server, *fakeClient) {
	t.Helper()

	client := &fakeClient{}

	return lsp.NewServer(client, zap.NewNop(), nil), client
}

func newTestServerWithSteps(t *testing.T) (*lsp.Server, *fakeClient) {
	t.Helper()

	registry := step.NewRegistry().
		Given("I have {int} cucumbers", func(n int) error { return nil }).
		Given("^exactly this$", func() error { return nil }).
		When("I eat {int} cucumbers", func(n int) error { return nil }).
		Then("I have {int} cucumbers left", func(n int) error { return nil })

	client := &fakeClient{}

	return lsp.NewServer(client, zap.NewNop(), registry), client
}

// open runs the initialize handshake and opens a document.
func open(t *testing.T, server *lsp.Server, uri protocol.DocumentURI, content string) {
	t.Helper()

	ctx := context.Background()
	if _, err := server.Initialize(ctx, &protocol.InitializeParams{}); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	if err := server.Initialized(ctx, &protocol.InitializedParams{}); err != nil {
		t.Fatalf("Initialized() error: %v", err)
	}
	err := server.DidOpen(ctx, &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:     uri,
			Version: 1,
			Text:    content,
		},
	})
	if err != nil {
		t.Fatalf("DidOpen() error: %v", err)
	}
}

// change sends a full-sync content change.
func change(t *testing.T, server *lsp.Server, uri protocol.DocumentURI, version int32, content string) {
	t.Helper()

	err := server.DidChange(context.Background(), &protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: uri},
			Version:                version,
		},
		ContentChanges: []protocol.TextDocumentContentChangeEvent{{Text: content}},
	})
	if err != nil {
		t.Fatalf("DidChange() error: %v", err)
	}
}

func TestServer_Initialize_AdvertisesCapabilities(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)

	result, err := server.Initialize(context.Background(), &protocol.InitializeParams{
		RootURI: "file:///workspace",
	})
	if err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	caps := result.Capabilities
	if caps.CompletionProvider == nil {
		t.Error("Expected completion capability")
	}
	if caps.DocumentFormattingProvider != true {
		t.Error("Expected formatting capability")
	}
	if caps.FoldingRangeProvider != true {
		t.Error("Expected folding range capability")
	}
	if caps.CodeLensProvider == nil {
		t.Error("Expected code lens capability")
	}
	if result.ServerInfo == nil || result.ServerInfo.Name != "cuke-lsp" {
		t.Errorf("ServerInfo = %+v, want name cuke-lsp", result.ServerInfo)
	}
	if got := server.WorkspaceRoot(); got != "/workspace" {
		t.Errorf("WorkspaceRoot() = %q, want %q", got, "/workspace")
	}
}

func TestServer_DidOpen_PublishesLintDiagnostics(t *testing.T) {
	t.Parallel()

	server, client := newTestServer(t)
	uri := protocol.DocumentURI("file:///dup.feature")
	open(t, server, uri, `Feature: duplicated
  Scenario: same
    Given a step
  Scenario: same
    Given a step
`)

	published := client.lastPublished()
	if published == nil {
		t.Fatal("Expected diagnostics to be published")
	}
	if published.URI != uri {
		t.Errorf("Published URI = %q, want %q", published.URI, uri)
	}

	var found *protocol.Diagnostic
	for i := range published.Diagnostics {
		if strings.Contains(published.Diagnostics[i].Message, "duplicate scenario name") {
			found = &published.Diagnostics[i]
		}
	}
	if found == nil {
		t.Fatalf("Expected a duplicate scenario diagnostic, got %+v", published.Diagnostics)
	}
	if found.Severity != protocol.DiagnosticSeverityError {
		t.Errorf("Severity = %v, want error", found.Severity)
	}
	// The second "Scenario: same" sits on 0-based line 3.
	if found.Range.Start.Line != 3 {
		t.Errorf("Diagnostic line = %d, want 3", found.Range.Start.Line)
	}
}

func TestServer_DidOpen_PublishesParseErrors(t *testing.T) {
	t.Parallel()

	server, client := newTestServer(t)
	open(t, server, "file:///broken.feature", `Feature: broken
  Scenario: s
    Given a table
      | a | b |
      misplaced
`)

	published := client.lastPublished()
	if published == nil {
		t.Fatal("Expected diagnostics to be published")
	}
	if len(published.Diagnostics) == 0 {
		t.Fatal("Expected at least one parse error diagnostic")
	}

	d := published.Diagnostics[0]
	if d.Code != "parse-error" {
		t.Errorf("Code = %v, want parse-error", d.Code)
	}
	if d.Severity != protocol.DiagnosticSeverityError {
		t.Errorf("Severity = %v, want error", d.Severity)
	}
	// The stray cell text is on 0-based line 4.
	if d.Range.Start.Line != 4 {
		t.Errorf("Diagnostic line = %d, want 4", d.Range.Start.Line)
	}
}

func TestServer_DidChange_RevalidatesDocument(t *testing.T) {
	t.Parallel()

	server, client := newTestServer(t)
	uri := protocol.DocumentURI("file:///fix.feature")
	open(t, server, uri, `Feature: f
  Scenario: same
    Given a step
  Scenario: same
    Given a step
`)

	if published := client.lastPublished(); published == nil || len(published.Diagnostics) == 0 {
		t.Fatal("Expected initial diagnostics")
	}

	change(t, server, uri, 2, `Feature: f
  Scenario: same
    Given a step
  Scenario: different
    Given a step
`)

	published := client.lastPublished()
	if published == nil {
		t.Fatal("Expected diagnostics after change")
	}
	if len(published.Diagnostics) != 0 {
		t.Errorf("Expected diagnostics to clear, got %+v", published.Diagnostics)
	}
	if published.Version != 2 {
		t.Errorf("Published version = %d, want 2", published.Version)
	}
}

func TestServer_DidChange_UnknownDocumentIsIgnored(t *testing.T) {
	t.Parallel()

	server, client := newTestServer(t)
	change(t, server, "file:///never-opened.feature", 1, "Feature: f\n")

	if published := client.lastPublished(); published != nil {
		t.Errorf("Expected no publication for unknown document, got %+v", published)
	}
}

func TestServer_DidClose_ClearsDiagnostics(t *testing.T) {
	t.Parallel()

	server, client := newTestServer(t)
	uri := protocol.DocumentURI("file:///close.feature")
	open(t, server, uri, `Feature: f
  Scenario: same
    Given a step
  Scenario: same
    Given a step
`)

	err := server.DidClose(context.Background(), &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
	})
	if err != nil {
		t.Fatalf("DidClose() error: %v", err)
	}

	published := client.lastPublished()
	if published == nil || len(published.Diagnostics) != 0 {
		t.Fatalf("Expected empty diagnostics after close, got %+v", published)
	}
}

func TestServer_UndefinedStepDiagnosticsWithRegistry(t *testing.T) {
	t.Parallel()

	server, client := newTestServerWithSteps(t)
	open(t, server, "file:///steps.feature", `Feature: cucumbers
  Scenario: snack
    Given I have 12 cucumbers
    When I polish 3 cucumbers
`)

	published := client.lastPublished()
	if published == nil {
		t.Fatal("Expected diagnostics to be published")
	}

	var messages []string
	for _, d := range published.Diagnostics {
		messages = append(messages, d.Message)
	}
	joined := strings.Join(messages, "\n")
	if !strings.Contains(joined, `undefined step: When I polish 3 cucumbers`) {
		t.Errorf("Expected undefined step diagnostic, got:\n%s", joined)
	}
	if strings.Contains(joined, "I have 12 cucumbers") {
		t.Errorf("Defined step should not be reported, got:\n%s", joined)
	}
}

// slowClient delays diagnostics delivery to simulate a stalled connection.
type slowClient struct {
	fakeClient
	delay time.Duration
}

func (c *slowClient) PublishDiagnostics(ctx context.Context, params *protocol.PublishDiagnosticsParams) error {
	time.Sleep(c.delay)

	return c.fakeClient.PublishDiagnostics(ctx, params)
}

// A slow transport must not serialize the other handlers behind it.
func TestServer_SlowClient_HandlersStayLive(t *testing.T) {
	t.Parallel()

	client := &slowClient{delay: 200 * time.Millisecond}
	server := lsp.NewServer(client, zap.NewNop(), nil)
	uri := protocol.DocumentURI("file:///slow.feature")
	open(t, server, uri, "Feature: f\n  Scenario: s\n    Given a step\n")

	done := make(chan struct{}, 2)
	go func() {
		err := server.DidChange(context.Background(), &protocol.DidChangeTextDocumentParams{
			TextDocument: protocol.VersionedTextDocumentIdentifier{
				TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: uri},
				Version:                2,
			},
			ContentChanges: []protocol.TextDocumentContentChangeEvent{
				{Text: "Feature: f\n  Scenario: s\n    Given another step\n"},
			},
		})
		if err != nil {
			t.Errorf("DidChange() error: %v", err)
		}
		done <- struct{}{}
	}()
	go func() {
		// Let DidChange reach its publish before asking for completion.
		time.Sleep(50 * time.Millisecond)
		_, err := server.Completion(context.Background(), &protocol.CompletionParams{
			TextDocumentPositionParams: protocol.TextDocumentPositionParams{
				TextDocument: protocol.TextDocumentIdentifier{URI: uri},
				Position:     protocol.Position{Line: 2, Character: 4},
			},
		})
		if err != nil {
			t.Errorf("Completion() error: %v", err)
		}
		done <- struct{}{}
	}()

	timeout := time.After(5 * time.Second)
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-timeout:
			t.Fatal("Handlers did not finish behind a slow client")
		}
	}
}

// reentrantClient answers every diagnostics publication with a completion
// request, the way an editor reacts to a notification before acknowledging
// it.
type reentrantClient struct {
	fakeClient
	server *lsp.Server
	uri    protocol.DocumentURI
}

func (c *reentrantClient) PublishDiagnostics(ctx context.Context, params *protocol.PublishDiagnosticsParams) error {
	_, err := c.server.Completion(ctx, &protocol.CompletionParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: c.uri},
			Position:     protocol.Position{Line: 0, Character: 0},
		},
	})
	if err != nil {
		return err
	}

	return c.fakeClient.PublishDiagnostics(ctx, params)
}

// Publishing diagnostics while holding the document store locked would
// deadlock against any request the client issues before acknowledging.
func TestServer_PublishReentrancy_DoesNotDeadlock(t *testing.T) {
	t.Parallel()

	client := &reentrantClient{uri: "file:///reentry.feature"}
	server := lsp.NewServer(client, zap.NewNop(), nil)
	client.server = server

	done := make(chan error, 1)
	go func() {
		ctx := context.Background()
		if _, err := server.Initialize(ctx, &protocol.InitializeParams{}); err != nil {
			done <- err

			return
		}
		done <- server.DidOpen(ctx, &protocol.DidOpenTextDocumentParams{
			TextDocument: protocol.TextDocumentItem{
				URI:     client.uri,
				Version: 1,
				Text:    "Feature: f\n  Scenario: s\n    Given a step\n",
			},
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("DidOpen() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Deadlock: diagnostics publication blocked the document store")
	}
}
