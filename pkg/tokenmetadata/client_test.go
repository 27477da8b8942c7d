package tokenmetadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestLookupCachesResult(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/metadata/base/0x833589fcd6edb6e08f4c7c32d4f71b54bda02913" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"chainId":8453,"tokenAddress":"0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913","name":"USD Coin","symbol":"USDC","decimals":6,"supportsEip2612":true}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	for i := 0; i < 2; i++ {
		ok, err := client.SupportsPermit(context.Background(), 8453, "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
		if err != nil {
			t.Fatalf("SupportsPermit() error = %v", err)
		}
		if !ok {
			t.Error("Expected USDC to support EIP-2612")
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("Expected 1 upstream call, got %d", got)
	}

	metadata, _ := client.Lookup(context.Background(), 8453, "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	if metadata.Version != "2" {
		t.Errorf("Expected default version 2, got %q", metadata.Version)
	}
	if info := metadata.AssetInfo(); info.Name != "USD Coin" || info.Decimals != 6 {
		t.Errorf("Unexpected asset info %+v", info)
	}
}

func TestLookupErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	if _, err := client.Lookup(context.Background(), 8453, "0xdead"); err == nil {
		t.Error("Expected not found error")
	}
	if _, err := client.Lookup(context.Background(), 999, "0xdead"); err == nil {
		t.Error("Expected unsupported chain error")
	}
}
