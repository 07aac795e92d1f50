package container

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"exchange-core-go/api"
	"exchange-core-go/config"
	"exchange-core-go/engine"
	"exchange-core-go/infrastructure/alert"
	"exchange-core-go/infrastructure/logger"
	"exchange-core-go/instrument"
	"exchange-core-go/internal/scheduler"
	"exchange-core-go/market"
	"exchange-core-go/monitor"
	"exchange-core-go/risk"
	"exchange-core-go/store"
)

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	cfg        *config.AppConfig
	configPath string

	// 基础设施
	logger  *logger.Logger
	monitor *monitor.Monitor
	alerts  *alert.Manager

	// 核心服务
	store     *store.Store
	registry  *instrument.Registry
	publisher *market.FanoutPublisher
	engine    *engine.Engine
	credit    *config.CreditStore

	// 表示层
	apiServer     *api.Server
	metricsServer *http.Server

	// 定时任务
	scheduler *scheduler.Scheduler

	// 生命周期管理
	lifecycle *LifecycleManager
}

// New 创建新的Container实例
func New(configPath string) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	return &Container{
		cfg:        &cfg,
		configPath: configPath,
		lifecycle:  NewLifecycleManager(),
	}, nil
}

// Build 构建所有组件
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}

	if err := c.buildCoreServices(); err != nil {
		return fmt.Errorf("build core services failed: %w", err)
	}

	if err := c.buildScheduler(); err != nil {
		return fmt.Errorf("build scheduler failed: %w", err)
	}

	c.registerLifecycleComponents()
	c.logger.Info("container built successfully")
	return nil
}

func (c *Container) buildInfrastructure() error {
	var err error
	c.logger, err = logger.New(c.cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger failed: %w", err)
	}

	c.monitor = monitor.New(monitor.Config{})
	c.alerts = alert.NewManager(time.Minute, alert.NewLogChannel("stderr", os.Stderr))

	c.logger.Info("infrastructure built")
	return nil
}

func (c *Container) buildCoreServices() error {
	var err error
	if c.cfg.Store.Dir != "" {
		c.store, err = store.Open(c.cfg.Store.Dir)
	} else {
		c.store, err = store.OpenMem()
	}
	if err != nil {
		return fmt.Errorf("open store failed: %w", err)
	}

	// 合约参考数据以持久层为准：结算价等只写一次的字段不能被
	// 配置文件里的旧数据冲掉。
	instruments := c.cfg.BuildInstruments(time.Now().UTC())
	persisted, err := c.store.LoadInstruments()
	if err != nil {
		return fmt.Errorf("load instruments failed: %w", err)
	}
	bySymbol := make(map[string]instrument.Instrument, len(persisted))
	for _, in := range persisted {
		bySymbol[in.Symbol] = in
	}
	for i := range instruments {
		if saved, ok := bySymbol[instruments[i].Symbol]; ok {
			cp := saved
			instruments[i] = &cp
		}
	}
	c.registry = instrument.NewRegistry(instruments)

	c.publisher = market.NewFanoutPublisher()
	c.engine, err = engine.New(c.registry, c.store, c.publisher, c.logger, c.monitor, nil)
	if err != nil {
		return fmt.Errorf("create engine failed: %w", err)
	}

	c.credit = config.NewCreditStore(c.cfg.Traders)
	c.engine.SetGuard(&risk.NotifyingGuard{
		Inner: &risk.CreditGuard{
			Credit:   c.credit,
			Trades:   c.engine,
			Prices:   c.engine,
			Registry: c.registry,
		},
		Alert: c.alerts,
	})

	c.apiServer = api.NewServer(c.cfg.Server, c.engine, c.publisher, c.logger, c.monitor)

	c.logger.Info("core services built")
	return nil
}

func (c *Container) buildScheduler() error {
	c.scheduler = scheduler.New(c.logger)
	jobs := []scheduler.Job{
		&scheduler.CompactJob{Engine: c.engine, Spec: c.cfg.Scheduler.CompactSpec},
		&scheduler.SettlementJob{
			Engine: c.engine,
			Spec:   c.cfg.Scheduler.SettlementSpec,
			Now:    func() time.Time { return time.Now().UTC() },
		},
	}
	for _, j := range jobs {
		if err := c.scheduler.AddJob(j); err != nil {
			return err
		}
	}
	return nil
}

func (c *Container) registerLifecycleComponents() {
	c.lifecycle.Register(&apiServerComponent{server: c.apiServer})

	if c.cfg.Server.MetricsAddr != "" {
		c.lifecycle.Register(&httpServerComponent{
			name:    "metrics_server",
			handler: c.monitor.Handler(),
			addr:    c.cfg.Server.MetricsAddr,
			logger:  c.logger,
			server:  &c.metricsServer,
		})
	}

	c.lifecycle.Register(&schedulerComponent{scheduler: c.scheduler})

	c.lifecycle.Register(&configWatchComponent{
		watcher: config.Watcher{Path: c.configPath},
		logger:  c.logger,
		onUpdate: func(cfg config.AppConfig) {
			// 热更新只接受信用额度，其余字段重启生效。
			c.credit.Replace(cfg.Traders)
			c.logger.WithFields(map[string]interface{}{
				"traders": len(cfg.Traders),
			}).Info("credit limits reloaded")
		},
	})
}

func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")

	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}

	c.logger.Info("container started")
	return nil
}

func (c *Container) Stop() error {
	c.logger.Info("stopping container...")

	if err := c.lifecycle.StopAll(); err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
	}

	if c.store != nil {
		if err := c.store.Close(); err != nil {
			c.logger.LogError(err, map[string]interface{}{"action": "close_store"})
		}
	}

	if c.logger != nil {
		c.logger.Close()
	}
	return nil
}

func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

// Engine 暴露给结算等运维入口。
func (c *Container) Engine() *engine.Engine {
	return c.engine
}
