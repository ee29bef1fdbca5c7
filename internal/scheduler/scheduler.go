package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a named periodic task.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// Scheduler управляет запланированными задачами
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	jobs   []Job
}

// New создает новый планировщик
func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers a job. Jobs with an empty spec are skipped so they can be
// disabled from configuration.
func (s *Scheduler) Add(job Job) error {
	if job.Spec == "" {
		log.Printf("⚠️ Job %s has no schedule, skipping", job.Name)
		return nil
	}
	if _, err := s.cron.AddFunc(job.Spec, func() { s.run(job) }); err != nil {
		return fmt.Errorf("schedule %s (%q): %w", job.Name, job.Spec, err)
	}
	s.jobs = append(s.jobs, job)
	return nil
}

func (s *Scheduler) run(job Job) {
	if err := job.Run(s.ctx); err != nil {
		log.Printf("❌ Job %s failed: %v", job.Name, err)
	}
}

// Start запускает планировщик
func (s *Scheduler) Start() {
	if len(s.jobs) == 0 {
		log.Println("⚠️ No jobs registered, scheduler will stay idle")
	}
	s.cron.Start()
	for _, job := range s.jobs {
		log.Printf("📅 Scheduled %s at %q (UTC)", job.Name, job.Spec)
	}
}

// Stop останавливает планировщик и ждет завершения текущих задач
func (s *Scheduler) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	if s.cancel != nil {
		s.cancel()
	}
	log.Println("📅 Scheduler stopped")
}

// IsRunning проверяет, есть ли зарегистрированные задачи
func (s *Scheduler) IsRunning() bool {
	return s.cron != nil && len(s.cron.Entries()) > 0
}
