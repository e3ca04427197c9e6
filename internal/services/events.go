package services

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"mobilechat/internal/kafka"
)

// Notification event types published for the push service.
const (
	EventFriendRequestSent     = "friend_request.sent"
	EventFriendRequestAccepted = "friend_request.accepted"
	EventMessageCreated        = "message.created"
)

const publishTimeout = 5 * time.Second

// NotificationEvent is the payload on the notifications topic.
type NotificationEvent struct {
	Type      string    `json:"type"`
	ActorID   string    `json:"actorId"`
	TargetID  string    `json:"targetId,omitempty"`
	RoomID    string    `json:"roomId,omitempty"`
	MessageID string    `json:"messageId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PurgeEvent asks the purge consumer to clear a deleted user's graph edges.
type PurgeEvent struct {
	UserID      string    `json:"userId"`
	RequestedAt time.Time `json:"requestedAt"`
}

// eventSink sends JSON events to one topic. Failures are logged, not
// returned: notifications are best effort.
type eventSink struct {
	producer kafka.MessageProducer
	topic    string
	log      *zap.Logger
}

func newEventSink(producer kafka.MessageProducer, topic string, log *zap.Logger) eventSink {
	if producer == nil {
		producer = kafka.NoopProducer{}
	}
	return eventSink{producer: producer, topic: topic, log: log}
}

func (e eventSink) send(ctx context.Context, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	// 请求结束后仍然投递
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	return e.producer.SendMessage(ctx, e.topic, []byte(key), payload)
}

func (e eventSink) notify(ctx context.Context, key string, event NotificationEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := e.send(ctx, key, event); err != nil {
		e.log.Warn("发送通知事件失败", zap.String("type", event.Type), zap.String("key", key), zap.Error(err))
	}
}
