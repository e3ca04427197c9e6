package kafkahandlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"mobilechat/internal/services"
)

// PurgeConsumerLogic replays friend graph purges that failed while a user
// was being deleted.
type PurgeConsumerLogic struct {
	graph services.GraphPurger
	log   *zap.Logger
}

// NewPurgeConsumerLogic creates a new instance of PurgeConsumerLogic.
func NewPurgeConsumerLogic(graph services.GraphPurger, log *zap.Logger) *PurgeConsumerLogic {
	return &PurgeConsumerLogic{graph: graph, log: log.Named("purge_consumer")}
}

// HandlePurge is the MessageHandler passed to the Kafka consumer. Malformed
// messages are skipped; a failed purge returns its error so the offset is
// not committed.
func (h *PurgeConsumerLogic) HandlePurge(ctx context.Context, msg *kafka.Message) error {
	var ev services.PurgeEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		h.log.Warn("无法解析清理消息，已跳过", zap.ByteString("value", msg.Value), zap.Error(err))
		return nil
	}
	if ev.UserID == "" {
		h.log.Warn("清理消息缺少 userId，已跳过", zap.ByteString("key", msg.Key))
		return nil
	}

	if err := h.graph.PurgeUser(ctx, ev.UserID); err != nil {
		return fmt.Errorf("重试清理用户 %s 失败: %w", ev.UserID, err)
	}
	h.log.Info("已完成延迟的关系清理", zap.String("userId", ev.UserID), zap.Time("requestedAt", ev.RequestedAt))
	return nil
}
