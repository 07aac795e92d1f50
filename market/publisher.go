package market

import "sync"

// Publisher 通知端边界：撮合提交后的 Order/Trade/Depth 事件由此发出。
// 注入到引擎，替代藏在持久化钩子里的全局广播。
type Publisher interface {
	Publish(ev Event)
}

// NopPublisher 测试或批处理场景下丢弃全部事件。
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}

// FanoutPublisher 一个轻量事件分发器。订阅者拿到带缓冲的通道，
// 消费不过来就丢（select/default），不阻塞撮合路径。
type FanoutPublisher struct {
	mu   sync.RWMutex
	subs []chan Event
}

func NewFanoutPublisher() *FanoutPublisher {
	return &FanoutPublisher{subs: make([]chan Event, 0)}
}

// Subscribe 返回一个新的事件通道。
func (p *FanoutPublisher) Subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	p.mu.Lock()
	p.subs = append(p.subs, ch)
	p.mu.Unlock()
	return ch
}

func (p *FanoutPublisher) Publish(ev Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, ch := range p.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
