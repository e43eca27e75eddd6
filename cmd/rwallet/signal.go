// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
)

// interruptSignals defines the default signals to catch in order to do a proper
// shutdown.
var interruptSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// interruptListener listens for OS Signals such as SIGINT (Ctrl+C). It
// returns a channel that is closed when a signal is received.
func interruptListener(log zerolog.Logger) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		interruptChannel := make(chan os.Signal, 1)
		signal.Notify(interruptChannel, interruptSignals...)

		sig := <-interruptChannel
		log.Info().Msg("Received signal " + sig.String() + ". Shutting down...")
		close(done)

		// Repeated signals only tell the user that the process is not
		// hung.
		for sig := range interruptChannel {
			log.Info().Msg("Received signal " + sig.String() + ". Already shutting down...")
		}
	}()

	return done
}
