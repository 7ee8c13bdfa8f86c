package proxy

import (
	"net"
	"net/http"
	"testing"
)

func TestNewHTTPClient_Direct(t *testing.T) {
	c, err := NewHTTPClient("")
	if err != nil {
		t.Fatal(err)
	}
	if c.Transport != nil {
		t.Errorf("Transport = %T, want default", c.Transport)
	}
	if c.Timeout != requestTimeout {
		t.Errorf("Timeout = %v", c.Timeout)
	}
}

func TestNewHTTPClient_Socks(t *testing.T) {
	c, err := NewHTTPClient("127.0.0.1:1080")
	if err != nil {
		t.Fatal(err)
	}
	tr, ok := c.Transport.(*http.Transport)
	if !ok || tr.DialContext == nil {
		t.Fatalf("Transport = %T, want *http.Transport with DialContext", c.Transport)
	}
}

func TestSocksClient_ProxyDown(t *testing.T) {
	// grab a free port and close it so nothing is listening
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	c, err := NewSocksClient(addr)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get("http://example.invalid/"); err == nil {
		t.Error("expected error when the proxy is unreachable")
	}
}
