package lsp

import (
	"context"
	"strings"
	"sync"

	"go.lsp.dev/protocol"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// clientCore is a zapcore.Core that forwards log entries to the LSP client
// as window/logMessage notifications, so server logs land in the editor's
// log viewer (Neovim's :LspLog, the VS Code output panel). Delivery is
// asynchronous: a slow client drops entries rather than stalling a handler.
type clientCore struct {
	client protocol.Client
	level  zapcore.Level
	enc    zapcore.Encoder
	fields []zapcore.Field

	mu    sync.Mutex
	queue chan clientLog
	stop  chan struct{}
	once  *sync.Once
}

type clientLog struct {
	typ  protocol.MessageType
	text string
}

// NewClientLogger builds a logger that tees entries to the LSP client and to
// fallback, typically a stderr core. The returned stop function ends the
// sender goroutine; call it once the connection closes.
func NewClientLogger(client protocol.Client, fallback zapcore.Core, level zapcore.Level) (*zap.Logger, func()) {
	core := &clientCore{
		client: client,
		level:  level,
		enc: zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
			MessageKey:     "msg",
			NameKey:        "logger",
			EncodeDuration: zapcore.StringDurationEncoder,
		}),
		queue: make(chan clientLog, 64),
		stop:  make(chan struct{}),
		once:  &sync.Once{},
	}
	go core.forward()

	stop := func() {
		core.once.Do(func() { close(core.stop) })
	}

	return zap.New(zapcore.NewTee(core, fallback)), stop
}

// forward drains the queue into window/logMessage notifications. Send errors
// are dropped; the client may already be gone.
func (c *clientCore) forward() {
	for {
		select {
		case entry := <-c.queue:
			_ = c.client.LogMessage(context.Background(), &protocol.LogMessageParams{
				Type:    entry.typ,
				Message: entry.text,
			})
		case <-c.stop:
			return
		}
	}
}

// Enabled implements zapcore.Core.
func (c *clientCore) Enabled(level zapcore.Level) bool {
	return level >= c.level
}

// With implements zapcore.Core. Clones share the queue and sender.
func (c *clientCore) With(fields []zapcore.Field) zapcore.Core {
	return &clientCore{
		client: c.client,
		level:  c.level,
		enc:    c.enc.Clone(),
		fields: append(append([]zapcore.Field{}, c.fields...), fields...),
		queue:  c.queue,
		stop:   c.stop,
		once:   c.once,
	}
}

// Check implements zapcore.Core.
func (c *clientCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return ce.AddCore(entry, c)
	}

	return ce
}

// Write implements zapcore.Core.
func (c *clientCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	c.mu.Lock()
	buf, err := c.enc.EncodeEntry(entry, append(c.fields, fields...))
	c.mu.Unlock()
	if err != nil {
		return err
	}

	text := strings.TrimSpace(buf.String())
	buf.Free()

	// Non-blocking: losing a log line beats blocking a handler on a stalled
	// client connection.
	select {
	case c.queue <- clientLog{typ: levelMessageType(entry.Level), text: text}:
	default:
	}

	return nil
}

// Sync implements zapcore.Core.
func (c *clientCore) Sync() error {
	return nil
}

// levelMessageType maps zap levels onto LSP message types.
func levelMessageType(level zapcore.Level) protocol.MessageType {
	switch {
	case level <= zapcore.DebugLevel:
		return protocol.MessageTypeLog
	case level == zapcore.InfoLevel:
		return protocol.MessageTypeInfo
	case level == zapcore.WarnLevel:
		return protocol.MessageTypeWarning
	default:
		return protocol.MessageTypeError
	}
}
