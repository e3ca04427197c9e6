package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"mobilechat/internal/config"
	"mobilechat/internal/kafka"
	"mobilechat/internal/keylock"
	"mobilechat/internal/logging"
	"mobilechat/internal/models"
	"mobilechat/internal/retry"
	"mobilechat/internal/services"
	"mobilechat/internal/storage"
	"mobilechat/internal/subscription"
)

func usage() {
	fmt.Println("使用方法:")
	fmt.Println("  ./admin show-user <userID>   - 显示用户资料和好友关系")
	fmt.Println("  ./admin list-rooms           - 列出所有聊天室")
	fmt.Println("  ./admin show-room <roomID>   - 显示聊天室信息和成员")
	fmt.Println("  ./admin purge-user <userID>  - 清除用户残留的好友关系")
}

func main() {
	// 简单命令行参数解析
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("无法加载配置: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("无法初始化日志: %v", err)
	}
	defer logger.Sync()

	store, closeStore, err := storage.OpenStore(cfg.Database, logger)
	if err != nil {
		log.Fatalf("无法连接数据库: %v", err)
	}
	defer closeStore()

	ctx := context.Background()
	arg := func(what string) string {
		if len(os.Args) < 3 {
			log.Fatalf("需要指定%s", what)
		}
		return os.Args[2]
	}

	// 执行指定的命令
	switch os.Args[1] {
	case "show-user":
		showUser(ctx, store, arg("用户ID"))
	case "list-rooms":
		listRooms(ctx, store)
	case "show-room":
		showRoom(ctx, store, arg("聊天室ID"))
	case "purge-user":
		purgeUser(ctx, store, cfg, logger, arg("用户ID"))
	default:
		usage()
		log.Fatalf("未知命令: %s", os.Args[1])
	}
}

func showUser(ctx context.Context, store storage.Store, userID string) {
	user, err := store.Users().GetByID(ctx, userID)
	if err != nil {
		log.Fatalf("查找用户失败: %v", err)
	}

	fmt.Printf("用户 %s 信息:\n", userID)
	fmt.Println("--------------------------------------")
	fmt.Printf("邮箱: %s\n", user.Email)
	fmt.Printf("昵称: %s\n", user.Name)
	fmt.Printf("头像: %s\n", user.PhotoURL)
	fmt.Printf("创建时间: %s\n", user.CreatedAt.Format("2006-01-02 15:04:05"))

	labels := map[models.RelationKind]string{
		models.RelationFriend:   "好友",
		models.RelationOutgoing: "已发送的请求",
		models.RelationIncoming: "收到的请求",
	}
	for _, kind := range models.AllRelationKinds {
		peers, err := store.Relations().Peers(ctx, userID, kind)
		if err != nil {
			fmt.Printf("获取%s失败: %v\n", labels[kind], err)
			continue
		}
		fmt.Printf("%s (%d): %v\n", labels[kind], len(peers), peers)
	}
}

func listRooms(ctx context.Context, store storage.Store) {
	rooms, err := store.Rooms().List(ctx)
	if err != nil {
		log.Fatalf("获取聊天室列表失败: %v", err)
	}
	fmt.Printf("共 %d 个聊天室:\n", len(rooms))
	fmt.Println("--------------------------------------")
	for i, r := range rooms {
		fmt.Printf("#%d ID: %s, 名称: %s, 加密: %v, 创建者: %s\n", i+1, r.ID, r.Name, r.Secure, r.CreatorID)
	}
}

func showRoom(ctx context.Context, store storage.Store, roomID string) {
	room, err := store.Rooms().GetByID(ctx, roomID)
	if err != nil {
		log.Fatalf("获取聊天室失败: %v", err)
	}

	fmt.Printf("聊天室 %s 信息:\n", roomID)
	fmt.Println("--------------------------------------")
	fmt.Printf("名称: %s\n", room.Name)
	fmt.Printf("加密: %v\n", room.Secure)
	fmt.Printf("创建者: %s\n", room.CreatorID)
	fmt.Printf("创建时间: %s\n", room.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("成员 (%d): %v\n", len(room.MemberIDs), room.MemberIDs)

	if last, err := store.Messages().Last(ctx, roomID); err == nil {
		fmt.Printf("消息数量: %d, 最后一条: %s\n", last.Seq, last.ID)
	} else {
		fmt.Println("消息数量: 0")
	}
}

// purgeUser 移除用户参与的所有关系边，用于 Kafka 未启用时手动补偿。
func purgeUser(ctx context.Context, store storage.Store, cfg config.Config, logger *zap.Logger, userID string) {
	hub := subscription.NewHub(1, logger)
	defer hub.Close()
	graph := services.NewFriendGraphService(store, keylock.New(), hub, kafka.NoopProducer{}, cfg.Kafka, retry.FromConfig(cfg.Retry), logger)
	if err := graph.PurgeUser(ctx, userID); err != nil {
		log.Fatalf("清除用户关系失败: %v", err)
	}
	fmt.Printf("用户 %s 的关系已清除\n", userID)
}
