package events

import "sync/atomic"

// DefaultBuffer is the per-channel buffer size.
const DefaultBuffer = 256

// Bus fans events out to at most one consumer per kind. A full channel drops
// the event and counts the drop; alerting is fire-and-forget by contract.
type Bus struct {
	scanQueued       chan ScanQueued
	scanCompleted    chan ScanCompleted
	scanFailed       chan ScanFailed
	highRiskDetected chan HighRiskDetected
	highRiskAlert    chan HighRiskAlert
	alphaSignalAlert chan AlphaSignalAlert
	ledgerCommitted  chan LedgerCommitted

	dropped atomic.Int64
}

// NewBus creates a bus with the given per-kind buffer (DefaultBuffer if <= 0).
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus{
		scanQueued:       make(chan ScanQueued, buffer),
		scanCompleted:    make(chan ScanCompleted, buffer),
		scanFailed:       make(chan ScanFailed, buffer),
		highRiskDetected: make(chan HighRiskDetected, buffer),
		highRiskAlert:    make(chan HighRiskAlert, buffer),
		alphaSignalAlert: make(chan AlphaSignalAlert, buffer),
		ledgerCommitted:  make(chan LedgerCommitted, buffer),
	}
}

// Dropped returns the number of events discarded due to slow consumers.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// ScanQueued returns the scan-queued channel.
func (b *Bus) ScanQueued() <-chan ScanQueued { return b.scanQueued }

// ScanCompleted returns the scan-completed channel.
func (b *Bus) ScanCompleted() <-chan ScanCompleted { return b.scanCompleted }

// ScanFailed returns the scan-failed channel.
func (b *Bus) ScanFailed() <-chan ScanFailed { return b.scanFailed }

// HighRiskDetected returns the high-risk-detected channel.
func (b *Bus) HighRiskDetected() <-chan HighRiskDetected { return b.highRiskDetected }

// HighRiskAlert returns the high-risk-alert channel.
func (b *Bus) HighRiskAlert() <-chan HighRiskAlert { return b.highRiskAlert }

// AlphaSignalAlert returns the alpha-signal-alert channel.
func (b *Bus) AlphaSignalAlert() <-chan AlphaSignalAlert { return b.alphaSignalAlert }

// LedgerCommitted returns the ledger-committed channel.
func (b *Bus) LedgerCommitted() <-chan LedgerCommitted { return b.ledgerCommitted }

// PublishScanQueued publishes without blocking.
func (b *Bus) PublishScanQueued(e ScanQueued) {
	select {
	case b.scanQueued <- e:
	default:
		b.dropped.Add(1)
	}
}

// PublishScanCompleted publishes without blocking.
func (b *Bus) PublishScanCompleted(e ScanCompleted) {
	select {
	case b.scanCompleted <- e:
	default:
		b.dropped.Add(1)
	}
}

// PublishScanFailed publishes without blocking.
func (b *Bus) PublishScanFailed(e ScanFailed) {
	select {
	case b.scanFailed <- e:
	default:
		b.dropped.Add(1)
	}
}

// PublishHighRiskDetected publishes without blocking.
func (b *Bus) PublishHighRiskDetected(e HighRiskDetected) {
	select {
	case b.highRiskDetected <- e:
	default:
		b.dropped.Add(1)
	}
}

// PublishHighRiskAlert publishes without blocking.
func (b *Bus) PublishHighRiskAlert(e HighRiskAlert) {
	select {
	case b.highRiskAlert <- e:
	default:
		b.dropped.Add(1)
	}
}

// PublishAlphaSignalAlert publishes without blocking.
func (b *Bus) PublishAlphaSignalAlert(e AlphaSignalAlert) {
	select {
	case b.alphaSignalAlert <- e:
	default:
		b.dropped.Add(1)
	}
}

// PublishLedgerCommitted publishes without blocking.
func (b *Bus) PublishLedgerCommitted(e LedgerCommitted) {
	select {
	case b.ledgerCommitted <- e:
	default:
		b.dropped.Add(1)
	}
}
