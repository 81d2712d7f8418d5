package httpx

import (
	"testing"
	"time"
)

func TestRandomUserAgentReturnsKnownValue(t *testing.T) {
	ua := RandomUserAgent()
	found := false
	for _, candidate := range userAgents {
		if candidate == ua {
			found = true
		}
	}
	if !found {
		t.Fatalf("unexpected user agent: %s", ua)
	}
}

func TestRandomUserAgentVaries(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 30; i++ {
		seen[RandomUserAgent()] = true
	}
	if len(seen) == 1 {
		t.Fatal("all 30 draws returned the same user agent")
	}
}

func TestBuildClientSucceeds(t *testing.T) {
	c, err := BuildClient(0)
	if err != nil {
		t.Fatalf("BuildClient: %v", err)
	}
	if c.HTTP.Jar == nil {
		t.Fatal("expected cookie jar to be set")
	}
	if c.UserAgent == "" {
		t.Fatal("expected non-empty user agent")
	}
	if c.HTTP.Timeout != defaultTotalTimeout {
		t.Fatalf("expected default timeout %v, got %v", defaultTotalTimeout, c.HTTP.Timeout)
	}
}

func TestBuildClientUsesConfiguredTimeout(t *testing.T) {
	c, err := BuildClient(15 * time.Second)
	if err != nil {
		t.Fatalf("BuildClient: %v", err)
	}
	if c.HTTP.Timeout != 15*time.Second {
		t.Fatalf("expected configured timeout 15s, got %v", c.HTTP.Timeout)
	}
}
