// Package logger collapses bursts of identical log lines. Extraction and
// enrichment emit the same per-block or per-record message many times in a
// row; one line with a repeat count keeps the log readable.
package logger

import (
	"fmt"
	"log"
	"sync"
	"time"
)

const flushDelay = 2 * time.Second

var dedup = &deduplicator{}

type deduplicator struct {
	mu      sync.Mutex
	lastMsg string
	count   int
	timer   *time.Timer
}

// flush emits the pending message; callers must hold the mutex.
func (d *deduplicator) flush() {
	if d.count == 0 {
		return
	}
	if d.count == 1 {
		log.Print(d.lastMsg)
	} else {
		log.Printf("%s (%d)", d.lastMsg, d.count)
	}
	d.count = 0
	d.lastMsg = ""
}

func (d *deduplicator) rearm() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(flushDelay, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.flush()
	})
}

// Dedup logs a formatted message, folding consecutive repeats into a single
// line with a count once the burst goes quiet.
func Dedup(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)

	dedup.mu.Lock()
	defer dedup.mu.Unlock()

	if msg == dedup.lastMsg {
		dedup.count++
		dedup.rearm()
		return
	}

	dedup.flush()
	dedup.lastMsg = msg
	dedup.count = 1
	dedup.rearm()
}
