package lsp

import (
	"time"

	"go.uber.org/zap"
)

// traceHandler times a request handler. Latency spikes logged here usually
// mean a handler is doing RPC work while holding the document lock.
func (s *Server) traceHandler(name string) func() {
	start := time.Now()

	return func() {
		s.logger.Debug("handler done",
			zap.String("handler", name),
			zap.Duration("elapsed", time.Since(start)))
	}
}
