package kafkahandlers

import (
	"context"
	"errors"
	"testing"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

type fakePurger struct {
	calls []string
	err   error
}

func (p *fakePurger) PurgeUser(ctx context.Context, userID string) error {
	p.calls = append(p.calls, userID)
	return p.err
}

func TestHandlePurge(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		purgeErr  error
		wantCalls int
		wantErr   bool
	}{
		{"valid", `{"userId":"u1","requestedAt":"2026-01-02T03:04:05Z"}`, nil, 1, false},
		{"malformed", `{not json`, nil, 0, false},
		{"missing user", `{"requestedAt":"2026-01-02T03:04:05Z"}`, nil, 0, false},
		{"purge fails", `{"userId":"u1"}`, errors.New("db down"), 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			purger := &fakePurger{err: tt.purgeErr}
			h := NewPurgeConsumerLogic(purger, zap.NewNop())
			err := h.HandlePurge(context.Background(), &kafka.Message{Key: []byte("u1"), Value: []byte(tt.value)})
			if (err != nil) != tt.wantErr {
				t.Fatalf("HandlePurge() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(purger.calls) != tt.wantCalls {
				t.Fatalf("PurgeUser calls = %v", purger.calls)
			}
		})
	}
}
