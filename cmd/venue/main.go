package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"

	"exchange-core-go/internal/container"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	flag.Parse()

	// .env 不存在时静默跳过，环境变量覆盖见 config 包。
	_ = godotenv.Load()

	c, err := container.New(*cfgPath)
	if err != nil {
		log.Fatalf("初始化失败: %v", err)
	}
	if err := c.Build(); err != nil {
		log.Fatalf("构建组件失败: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Start(ctx); err != nil {
		log.Fatalf("启动失败: %v", err)
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	cancel()
	if err := c.Stop(); err != nil {
		os.Exit(1)
	}
}
