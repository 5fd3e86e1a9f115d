package alert

import "testing"

func TestNotifyAnomaliesNoOpWhenEmpty(t *testing.T) {
	n, err := NewNotifier("webhook-id", "webhook-token")
	if err != nil {
		t.Fatalf("NewNotifier: %v", err)
	}
	if err := n.NotifyAnomalies("nightly", nil); err != nil {
		t.Fatalf("expected no-op for empty anomalies, got %v", err)
	}
}

func TestNewNotifierStoresWebhookIdentity(t *testing.T) {
	n, err := NewNotifier("abc", "xyz")
	if err != nil {
		t.Fatalf("NewNotifier: %v", err)
	}
	if n.webhookID != "abc" || n.token != "xyz" {
		t.Fatalf("expected webhook identity to be stored, got id=%q token=%q", n.webhookID, n.token)
	}
}
