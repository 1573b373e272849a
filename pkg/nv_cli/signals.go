// pkg/nv_cli/signals.go
//
// Signal handling for nvdoctor runs. The first SIGINT/SIGTERM cancels the
// run context so the pipeline can finalize its report as interrupted; a
// second signal exits immediately.

package nv_cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// SignalHandler cancels its context on the first interrupt.
type SignalHandler struct {
	ctx         context.Context
	cancel      context.CancelFunc
	sigChan     chan os.Signal
	doneChan    chan struct{}
	interrupted atomic.Bool
	exit        func(int)
}

// NewSignalHandler creates a new signal handler
func NewSignalHandler(ctx context.Context) *SignalHandler {
	ctx, cancel := context.WithCancel(ctx)

	handler := &SignalHandler{
		ctx:      ctx,
		cancel:   cancel,
		sigChan:  make(chan os.Signal, 2),
		doneChan: make(chan struct{}),
		exit:     os.Exit,
	}

	signal.Notify(handler.sigChan, os.Interrupt, syscall.SIGTERM)

	go handler.handleSignals()

	return handler
}

// Context returns the cancellable context
func (h *SignalHandler) Context() context.Context {
	return h.ctx
}

// Interrupted reports whether a signal was received.
func (h *SignalHandler) Interrupted() bool {
	return h.interrupted.Load()
}

func (h *SignalHandler) handleSignals() {
	logger := otelzap.Ctx(h.ctx)

	select {
	case sig := <-h.sigChan:
		logger.Warn("Received signal, interrupting run", zap.String("signal", sig.String()))
		fmt.Fprintf(os.Stderr, "\n\n⚠️  Received %v, stopping after the current step...\n", sig)
		h.interrupted.Store(true)
		h.cancel()
	case <-h.doneChan:
		return
	}

	select {
	case sig := <-h.sigChan:
		logger.Error("Received second signal, forcing exit", zap.String("signal", sig.String()))
		fmt.Fprintln(os.Stderr, "\n⚠️  Received second interrupt, forcing exit!")
		h.exit(130)
	case <-h.doneChan:
	}
}

// Stop releases the signal subscription.
func (h *SignalHandler) Stop() {
	signal.Stop(h.sigChan)
	close(h.doneChan)
	h.cancel()
}
