package services

import "time"

// Timing policies layered on top of the protocol engine. The transport owns
// its own per-attempt timeouts; these govern screen-level behavior.
const (
	// PollInterval is the background refresh cadence for the task list,
	// document and position forms while visible.
	PollInterval = 5 * time.Second

	// ResumeRefreshWindow suppresses a redundant list refresh when a screen
	// regains foreground right after a fresh load.
	ResumeRefreshWindow = 2500 * time.Millisecond

	// SearchDebounce delays filtering after the last keystroke-like input.
	SearchDebounce = 120 * time.Millisecond

	// BarcodeStabilization waits for a scanned value to stop changing before
	// committing it.
	BarcodeStabilization = 200 * time.Millisecond

	// ErrorBannerDismiss and BannerAutoDismiss auto-hide transient banners.
	ErrorBannerDismiss = 3 * time.Second
	BannerAutoDismiss  = 15 * time.Second
)
