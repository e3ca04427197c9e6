package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mobilechat/internal/app"
	"mobilechat/internal/config"
	appKafka "mobilechat/internal/kafka"
	kafkahandlers "mobilechat/internal/kafka/handlers"
	"mobilechat/internal/logging"
)

func main() {
	// 1. 加载配置
	cfg, err := config.LoadConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("无法加载配置: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("无法初始化日志: %v", err)
	}
	defer logger.Sync()
	logger = logger.With(zap.String("app", cfg.AppName), zap.String("version", cfg.AppVersion))

	if err := run(cfg, logger); err != nil {
		logger.Fatal("API 服务器异常退出", zap.Error(err))
	}
	logger.Info("API 服务器已成功关闭")
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. 初始化数据库、文件存储、Token 黑名单和 Kafka 生产者
	infra, cleanup, err := app.NewInfra(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	// 3. 初始化 Services 和路由
	server := app.New(cfg, infra, logger)

	serverAddr := fmt.Sprintf("%s:%s", cfg.APIServer.Host, cfg.APIServer.Port)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      server.Handler,
		ReadTimeout:  cfg.APIServer.ReadTimeout,
		WriteTimeout: cfg.APIServer.WriteTimeout,
		IdleTimeout:  time.Second * 60,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		server.Run(gctx)
		return nil
	})

	// 4. 启动 Kafka 消费者，处理删除用户后未完成的关系清理
	if cfg.Kafka.Enabled {
		consumer := appKafka.NewConfluentKafkaConsumer(cfg.Kafka, logger)
		defer consumer.Close()
		purge := kafkahandlers.NewPurgeConsumerLogic(server.Graph, logger)
		g.Go(func() error {
			topics := []string{cfg.Kafka.PurgeTopic}
			logger.Info("Kafka 清理消费者启动", zap.Strings("topics", topics), zap.String("group", cfg.Kafka.ConsumerGroup))
			err := consumer.Consume(gctx, topics, cfg.Kafka.ConsumerGroup, purge.HandlePurge)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("kafka 清理消费者错误: %w", err)
			}
			return nil
		})
	}

	// 5. 启动 HTTP 服务器并实现优雅关闭
	g.Go(func() error {
		logger.Info("API 服务器启动", zap.String("addr", serverAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("API 服务器启动失败: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("收到关闭信号，正在关闭 API 服务器...")
		ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		return srv.Shutdown(ctxShutdown)
	})

	return g.Wait()
}
