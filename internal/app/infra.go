package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"mobilechat/internal/auth"
	"mobilechat/internal/config"
	"mobilechat/internal/kafka"
	appRedis "mobilechat/internal/redis"
	"mobilechat/internal/storage"
)

// NewInfra connects the backends named in cfg. The returned cleanup closes
// whatever was opened, in reverse order.
func NewInfra(ctx context.Context, cfg config.Config, log *zap.Logger) (Infra, func(), error) {
	var (
		infra   Infra
		closers []func()
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (Infra, func(), error) {
		cleanup()
		return Infra{}, func() {}, err
	}

	store, closeStore, err := storage.OpenStore(cfg.Database, log)
	if err != nil {
		return fail(fmt.Errorf("无法初始化数据库: %w", err))
	}
	infra.Store = store
	closers = append(closers, func() {
		if err := closeStore(); err != nil {
			log.Warn("关闭数据库连接失败", zap.Error(err))
		}
	})

	switch cfg.Storage.Type {
	case "s3":
		s3Store, err := storage.NewS3StorageService(cfg.Storage.S3)
		if err != nil {
			return fail(fmt.Errorf("无法初始化 S3 存储服务: %w", err))
		}
		infra.Blobs = s3Store
		log.Info("S3 存储服务初始化成功", zap.String("bucket", cfg.Storage.S3.BucketName))
	case "local", "":
		local, err := storage.NewLocalStorageService(cfg.Storage)
		if err != nil {
			return fail(fmt.Errorf("无法初始化本地存储服务: %w", err))
		}
		infra.Blobs = local
		log.Info("本地存储服务初始化成功", zap.String("path", cfg.Storage.LocalPath))
	default:
		return fail(fmt.Errorf("不支持的存储类型: %s", cfg.Storage.Type))
	}

	if cfg.Auth.Blacklist == "redis" {
		client, err := appRedis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { _ = client.Close() })
		infra.Blacklist = appRedis.NewTokenBlacklist(client)
		log.Info("成功连接到 Redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		infra.Blacklist = auth.NewMemoryBlacklist()
	}

	producer, err := kafka.NewProducer(cfg.Kafka, log)
	if err != nil {
		return fail(fmt.Errorf("无法创建 Kafka 生产者: %w", err))
	}
	infra.Producer = producer
	closers = append(closers, producer.Close)

	return infra, cleanup, nil
}
