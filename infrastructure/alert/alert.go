package alert

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// Alert 告警信息
type Alert struct {
	Level     string // "INFO", "WARNING", "ERROR"
	Message   string
	Timestamp time.Time
	Fields    map[string]interface{}
}

// Channel 告警通道接口
type Channel interface {
	Send(alert Alert) error
	Name() string
}

// LogChannel 日志告警通道
type LogChannel struct {
	logger *log.Logger
	name   string
}

func NewLogChannel(name string, output *os.File) *LogChannel {
	if output == nil {
		output = os.Stdout
	}
	return &LogChannel{
		logger: log.New(output, "[ALERT] ", log.LstdFlags),
		name:   name,
	}
}

func (c *LogChannel) Send(alert Alert) error {
	msg := fmt.Sprintf("[%s] %s", alert.Level, alert.Message)
	for k, v := range alert.Fields {
		msg += fmt.Sprintf(" %s=%v", k, v)
	}
	c.logger.Println(msg)
	return nil
}

func (c *LogChannel) Name() string { return c.name }

// Manager 告警管理器，同类告警按 key 限流避免刷屏。
type Manager struct {
	channels []Channel
	mu       sync.RWMutex
	lastSent map[string]time.Time
	interval time.Duration
}

func NewManager(interval time.Duration, channels ...Channel) *Manager {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Manager{
		channels: channels,
		lastSent: make(map[string]time.Time),
		interval: interval,
	}
}

func (m *Manager) allow(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if last, ok := m.lastSent[key]; ok && now.Sub(last) < m.interval {
		return false
	}
	m.lastSent[key] = now
	return true
}

// Send 实现 risk.AlertClient。
func (m *Manager) Send(typ, msg string) {
	if !m.allow(typ + "|" + msg) {
		return
	}
	a := Alert{Level: "WARNING", Message: msg, Timestamp: time.Now()}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range m.channels {
		_ = ch.Send(a)
	}
}
