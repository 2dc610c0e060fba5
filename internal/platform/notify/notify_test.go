package notify

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLogPublisher_WritesEvent(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(zerolog.New(&buf))

	err := p.Publish(context.Background(), "inventory.low_stock", map[string]interface{}{"drug_id": 4, "stock": 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `"channel":"inventory.low_stock"`) {
		t.Errorf("expected channel in log line: %s", out)
	}
	if !strings.Contains(out, `"drug_id":4`) {
		t.Errorf("expected payload in log line: %s", out)
	}
}

func TestLogPublisher_UnmarshalablePayload(t *testing.T) {
	p := NewLogPublisher(zerolog.Nop())
	if err := p.Publish(context.Background(), "x", make(chan int)); err == nil {
		t.Error("expected marshal error")
	}
}

func TestNewRedisPublisher_BadURL(t *testing.T) {
	if _, err := NewRedisPublisher(context.Background(), "not a url"); err == nil {
		t.Error("expected parse error")
	}
}
