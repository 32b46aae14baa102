package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/scanwork/scanwork/internal/protocol"
)

// Poller drives the silent background refresh of whichever form is currently
// visible. Polls never emit navigation and never log transport traffic, and
// the in-flight guard inside DocsService keeps them from racing a
// user-initiated fetch of the same resource.
type Poller struct {
	docs     DocsService
	logger   *log.Logger
	interval time.Duration

	mu      sync.Mutex
	visible protocol.Form
	formID  string
}

// NewPoller creates a poller at the standard cadence.
func NewPoller(docs DocsService) *Poller {
	return &Poller{docs: docs, interval: PollInterval}
}

// SetLogger sets the logger for debug output.
func (p *Poller) SetLogger(logger *log.Logger) {
	p.logger = logger
}

// SetVisible declares which form the user is looking at. The poller refreshes
// only that form; a screen leaving view calls ClearVisible and any in-flight
// poll completes and applies (or is discarded) harmlessly.
func (p *Poller) SetVisible(form protocol.Form, formID string) {
	p.mu.Lock()
	p.visible = form
	p.formID = formID
	p.mu.Unlock()
}

// ClearVisible stops polling until a form becomes visible again.
func (p *Poller) ClearVisible() {
	p.SetVisible("", "")
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	p.mu.Lock()
	form, formID := p.visible, p.formID
	p.mu.Unlock()

	var err error
	switch form {
	case protocol.FormDocList:
		_, err = p.docs.FetchDocumentList(ctx, true, false)
	case protocol.FormDoc:
		_, err = p.docs.FetchDocument(ctx, formID, false, false)
	case protocol.FormPos:
		_, err = p.docs.FetchPosition(ctx, formID, false, false)
	default:
		return
	}
	if err != nil && p.logger != nil {
		p.logger.Printf("background poll %s failed: %v", form, err)
	}
}
