package kafka

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"mobilechat/internal/config"
)

func TestNewProducerDisabledIsNoop(t *testing.T) {
	p, err := NewProducer(config.KafkaConfig{Enabled: false}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewProducer() error = %v", err)
	}
	if _, ok := p.(NoopProducer); !ok {
		t.Fatalf("NewProducer() = %T, want NoopProducer", p)
	}
	if err := p.SendMessage(context.Background(), "topic", []byte("k"), []byte("v")); err != nil {
		t.Errorf("SendMessage() error = %v", err)
	}
	p.Close()
}

func TestConsumeRequiresTopics(t *testing.T) {
	c := NewConfluentKafkaConsumer(config.KafkaConfig{Brokers: []string{"localhost:9092"}}, zap.NewNop())
	defer c.Close()
	if err := c.Consume(context.Background(), nil, "group", nil); err == nil {
		t.Fatal("Consume() without topics should fail")
	}
}
