package httpc

import (
	"net/http"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	c := NewClient(5 * time.Second)
	if c.Timeout != 5*time.Second {
		t.Errorf("Expected 5s timeout, got %v", c.Timeout)
	}

	tr, ok := c.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("Expected *http.Transport, got %T", c.Transport)
	}
	if tr.TLSHandshakeTimeout != DefaultTLSTimeout {
		t.Errorf("Expected TLS timeout %v, got %v", DefaultTLSTimeout, tr.TLSHandshakeTimeout)
	}
}

func TestNewClientUnbounded(t *testing.T) {
	c := NewClient(0)
	if c.Timeout != 0 {
		t.Errorf("Expected no overall timeout, got %v", c.Timeout)
	}
}
