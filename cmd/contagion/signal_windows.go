//go:build windows

package main

import (
	"os"
	"os/signal"
)

// notifySignals relays Ctrl+C so a run stops at the next round. SIGTERM
// does not exist on Windows.
func notifySignals(ch chan<- os.Signal) {
	signal.Notify(ch, os.Interrupt)
}
