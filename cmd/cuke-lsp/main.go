// Command cuke-lsp is a Language Server Protocol server for Gherkin feature
// files. It speaks the protocol over stdio.
package main

import (
	"context"
	"flag"
	"io"
	"os"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rlch/cuke/lsp"
)

var (
	debugFlag     = flag.Bool("debug", false, "Enable debug logging")
	clientLogFlag = flag.Bool("client-log", false, "Forward server logs to the editor as window/logMessage")
)

func main() {
	flag.Parse()

	// Logging goes to stderr; stdout carries the LSP stream.
	config := zap.NewDevelopmentConfig()
	config.OutputPaths = []string{"stderr"}
	config.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

	if *debugFlag {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	logger, err := config.Build()
	if err != nil {
		panic(err)
	}

	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("Starting cuke-lsp server")

	err = run(context.Background(), logger, os.Stdin, os.Stdout, *clientLogFlag)
	if err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
}

func run(ctx context.Context, logger *zap.Logger, in io.Reader, out io.Writer, clientLog bool) error {
	stream := jsonrpc2.NewStream(&readWriteCloser{in, out})
	conn := jsonrpc2.NewConn(stream)

	// Client handle for notifications back to the editor.
	client := protocol.ClientDispatcher(conn, logger)

	if clientLog {
		forwarded, stop := lsp.NewClientLogger(client, logger.Core(), logger.Level())
		defer stop()
		logger = forwarded
	}

	// The standalone binary has no step definitions compiled in: completion
	// offers keywords only and step resolution checks stay off.
	server := lsp.NewServer(client, logger, nil)

	conn.Go(ctx, protocol.ServerHandler(server, nil))

	<-conn.Done()

	return conn.Err()
}

// readWriteCloser joins separate reader/writer into an io.ReadWriteCloser.
type readWriteCloser struct {
	io.Reader
	io.Writer
}

func (rwc *readWriteCloser) Close() error {
	if c, ok := rwc.Writer.(io.Closer); ok {
		return c.Close()
	}

	return nil
}
