package events

import (
	"testing"

	"chain-sentry/internal/domain"
)

func TestBus_PublishAndReceive(t *testing.T) {
	bus := NewBus(4)

	bus.PublishScanQueued(ScanQueued{ScanID: "s1", At: 1000})
	bus.PublishScanCompleted(ScanCompleted{ScanID: "s1", RiskScore: 42})
	bus.PublishHighRiskAlert(HighRiskAlert{Target: "0xbad", Chain: domain.ChainEthereum, FinalScore: 12})

	select {
	case e := <-bus.ScanQueued():
		if e.ScanID != "s1" {
			t.Errorf("scan-queued mismatch: %+v", e)
		}
	default:
		t.Error("expected a scan-queued event")
	}
	select {
	case e := <-bus.ScanCompleted():
		if e.RiskScore != 42 {
			t.Errorf("scan-completed mismatch: %+v", e)
		}
	default:
		t.Error("expected a scan-completed event")
	}
	select {
	case e := <-bus.HighRiskAlert():
		if e.Target != "0xbad" {
			t.Errorf("high-risk-alert mismatch: %+v", e)
		}
	default:
		t.Error("expected a high-risk alert")
	}
}

func TestBus_DropsWhenFull(t *testing.T) {
	bus := NewBus(1)

	bus.PublishScanFailed(ScanFailed{ScanID: "s1"})
	bus.PublishScanFailed(ScanFailed{ScanID: "s2"}) // buffer full, dropped

	if got := bus.Dropped(); got != 1 {
		t.Errorf("expected 1 dropped event, got %d", got)
	}

	// The first event is still deliverable.
	select {
	case e := <-bus.ScanFailed():
		if e.ScanID != "s1" {
			t.Errorf("expected s1, got %s", e.ScanID)
		}
	default:
		t.Error("expected the buffered event")
	}
}

func TestBus_DefaultBuffer(t *testing.T) {
	bus := NewBus(0)
	for i := 0; i < DefaultBuffer; i++ {
		bus.PublishLedgerCommitted(LedgerCommitted{EntryID: "e"})
	}
	if got := bus.Dropped(); got != 0 {
		t.Errorf("expected no drops within the default buffer, got %d", got)
	}
}
