package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mobilechat/internal/auth"
	"mobilechat/internal/config"
)

const blacklistKeyPrefix = "bl:jti:"

// NewClient 创建 Redis 客户端并确认连接可用。
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("无法连接到 Redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// TokenBlacklist 是 auth.TokenBlacklist 接口的 Redis 实现。
// 每个被吊销的 jti 对应一个键，键的过期时间与 Token 相同。
type TokenBlacklist struct {
	client redis.Cmdable
}

var _ auth.TokenBlacklist = (*TokenBlacklist)(nil)

// NewTokenBlacklist wraps client.
func NewTokenBlacklist(client redis.Cmdable) *TokenBlacklist {
	return &TokenBlacklist{client: client}
}

func blacklistKey(jti string) string {
	return blacklistKeyPrefix + jti
}

// Add 将 jti 加入黑名单。已过期的 Token 无需记录。
func (b *TokenBlacklist) Add(ctx context.Context, jti string, originalTokenExpTime time.Time) error {
	ttl := time.Until(originalTokenExpTime)
	if ttl <= 0 {
		return nil
	}
	if err := b.client.Set(ctx, blacklistKey(jti), "revoked", ttl).Err(); err != nil {
		return fmt.Errorf("添加到 Redis 黑名单失败 for JTI %s: %w", jti, err)
	}
	return nil
}

// IsBlacklisted 检查 jti 是否在黑名单中。
func (b *TokenBlacklist) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	n, err := b.client.Exists(ctx, blacklistKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("从 Redis 黑名单检查失败 for JTI %s: %w", jti, err)
	}
	return n > 0, nil
}
