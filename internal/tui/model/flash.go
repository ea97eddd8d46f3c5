package model

import (
	"sync"
	"time"
)

// Flash is a short-lived status line notice. The status bar polls Get on each
// redraw; once the deadline passes the notice disappears on its own.
type Flash struct {
	mu    sync.Mutex
	text  string
	until time.Time
}

// Set replaces the current notice and keeps it visible for d.
func (f *Flash) Set(text string, d time.Duration) {
	f.mu.Lock()
	f.text = text
	f.until = time.Now().Add(d)
	f.mu.Unlock()
}

// Get returns the active notice, or "" once it has expired.
func (f *Flash) Get() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.text == "" || !time.Now().Before(f.until) {
		return ""
	}
	return f.text
}
