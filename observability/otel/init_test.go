package otel

import (
	"context"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" authorization = Bearer abc ,bad, =x,tenant=settle")
	if len(got) != 2 || got["authorization"] != "Bearer abc" || got["tenant"] != "settle" {
		t.Fatalf("unexpected headers %v", got)
	}
}

func TestInitRequiresServiceName(t *testing.T) {
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatalf("expected missing service name to fail")
	}
	shutdown, err := Init(context.Background(), Config{ServiceName: "settlementd"})
	if err != nil {
		t.Fatalf("init without exporters: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
