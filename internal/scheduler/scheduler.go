package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"exchange-core-go/infrastructure/logger"
)

// Job 定时任务。Run 必须幂等，调度器失败时不重试，留给下一个
// 周期。
type Job interface {
	Name() string
	Schedule() string
	Run(ctx context.Context) error
}

// Scheduler 薄封装 cron，负责任务登记与运行日志。
type Scheduler struct {
	cron *cron.Cron
	log  *logger.Logger

	mu   sync.Mutex
	jobs map[string]Job
}

func New(log *logger.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		log:  log,
		jobs: make(map[string]Job),
	}
}

func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name()]; exists {
		return fmt.Errorf("job %s already exists", job.Name())
	}
	_, err := s.cron.AddFunc(job.Schedule(), func() {
		s.runJob(job)
	})
	if err != nil {
		return fmt.Errorf("schedule job %s: %w", job.Name(), err)
	}
	s.jobs[job.Name()] = job

	if s.log != nil {
		s.log.WithFields(map[string]interface{}{
			"job": job.Name(), "schedule": job.Schedule(),
		}).Info("job registered")
	}
	return nil
}

func (s *Scheduler) runJob(job Job) {
	started := time.Now()
	err := job.Run(context.Background())
	if s.log == nil {
		return
	}
	fields := map[string]interface{}{
		"job": job.Name(), "duration": time.Since(started).String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		s.log.WithFields(fields).Error("job failed")
		return
	}
	s.log.WithFields(fields).Info("job completed")
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop 等待在跑的任务结束。
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
