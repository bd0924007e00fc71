// The MIT License (MIT)
//
// Copyright (c) 2019 karjudev
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package objstore

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Lifecycle owns the process's signal goroutine: SIGINT/SIGTERM/SIGQUIT
// flip the shared shutdown flag (the sole cancellation mechanism, spec.md
// §5 invariant i); SIGUSR1 prints an on-demand report without
// terminating. Grounded on original_source/src/objectstore.c's
// signal_handler (a sigwait loop over the same four signals) and on
// xtaci-kcptun/client/signal.go's signal.Notify/signal.Ignore pattern.
//
// SIGPIPE needs no handling here: Go's runtime never delivers it for
// writes to a closed socket or pipe, so the original's "ignore SIGPIPE"
// step has no Go equivalent (a short write simply returns EPIPE as an
// error).
type Lifecycle struct {
	worker   *Worker
	log      *logrus.Logger
	shutdown *atomic.Bool

	sigCh chan os.Signal
}

// NewLifecycle constructs the signal-handling goroutine's state. shutdown
// is shared with Server.Run's accept loop and every Handler.Serve loop.
func NewLifecycle(worker *Worker, log *logrus.Logger, shutdown *atomic.Bool) *Lifecycle {
	return &Lifecycle{
		worker:   worker,
		log:      log,
		shutdown: shutdown,
		sigCh:    make(chan os.Signal, 1),
	}
}

// Start registers for SIGINT, SIGTERM, SIGQUIT, and SIGUSR1 and launches
// the handling goroutine. Callers invoke Stop to unregister once the
// server is shutting down.
func (lc *Lifecycle) Start() {
	signal.Notify(lc.sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGUSR1)
	go lc.run()
}

// Stop unregisters the signal channel, letting the goroutine spawned by
// Start exit once it observes the channel close.
func (lc *Lifecycle) Stop() {
	signal.Stop(lc.sigCh)
	close(lc.sigCh)
}

func (lc *Lifecycle) run() {
	for sig := range lc.sigCh {
		switch sig {
		case syscall.SIGUSR1:
			lc.printReport()
		default:
			lc.log.WithField("signal", sig).Info("shutdown signal received")
			lc.shutdown.Store(true)
		}
	}
}

// printReport renders the worker's aggregate counters to the console in
// the teacher's colorized-banner style (xtaci-kcptun uses
// github.com/fatih/color for startup/shutdown/warning lines), matching
// original_source/src/objectstore.c's print_report.
func (lc *Lifecycle) printReport() {
	rep, err := lc.worker.GetReport()
	if err != nil {
		lc.log.WithError(err).Warn("failed to build report")
		return
	}
	color.Cyan(
		"clients=%d objects=%d bytes=%d",
		rep.LiveSessions, rep.ObjectCount, rep.TotalBytes,
	)
}
