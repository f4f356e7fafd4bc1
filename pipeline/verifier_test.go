package pipeline

import "testing"

// NOTE: DB-free. A verifier without a reachable callback URL would strand
// every closing in pending; that misconfiguration must be detected, not
// silently sent as an empty callback_url.

func TestCheckVerifierConfig(t *testing.T) {
	t.Run("verifier off", func(t *testing.T) {
		t.Setenv("VERIFIER_API_BASE_URL", "")
		t.Setenv("WEBHOOK_PUBLIC_BASE_URL", "")
		if problem := CheckVerifierConfig(); problem != "" {
			t.Errorf("no verifier configured must be fine, got %q", problem)
		}
	})

	t.Run("verifier on without callback", func(t *testing.T) {
		t.Setenv("VERIFIER_API_BASE_URL", "https://verifier.example.com")
		t.Setenv("WEBHOOK_PUBLIC_BASE_URL", "")
		if problem := CheckVerifierConfig(); problem == "" {
			t.Error("verifier without WEBHOOK_PUBLIC_BASE_URL must be reported")
		}
	})

	t.Run("verifier on with callback", func(t *testing.T) {
		t.Setenv("VERIFIER_API_BASE_URL", "https://verifier.example.com")
		t.Setenv("WEBHOOK_PUBLIC_BASE_URL", "https://portal.example.com/")
		if problem := CheckVerifierConfig(); problem != "" {
			t.Errorf("complete verifier config must be fine, got %q", problem)
		}
		if got := callbackURL(); got != "https://portal.example.com/webhooks/pipeline" {
			t.Errorf("unexpected callback url %q", got)
		}
	})
}
