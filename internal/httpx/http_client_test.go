package httpx

import (
	"testing"
	"time"
)

func TestNewClientDefaultTimeout(t *testing.T) {
	for _, seconds := range []int{0, -5} {
		c := NewClient(seconds)
		if c.Timeout != DefaultTimeout {
			t.Fatalf("NewClient(%d).Timeout = %s, want %s", seconds, c.Timeout, DefaultTimeout)
		}
	}
}

func TestNewClientConfiguredTimeout(t *testing.T) {
	c := NewClient(120)
	if c.Timeout != 120*time.Second {
		t.Fatalf("NewClient(120).Timeout = %s, want %s", c.Timeout, 120*time.Second)
	}
}
