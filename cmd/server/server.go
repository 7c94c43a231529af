package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/toricodesthings/docmatch/internal/compare"
	"github.com/toricodesthings/docmatch/internal/config"
	"github.com/toricodesthings/docmatch/internal/document"
)

const version = "1.0.0"

type server struct {
	cfg    config.Config
	log    logrus.FieldLogger
	opener document.Opener

	// engine carries the configured defaults; requests with overrides get
	// their own.
	engine *compare.Engine

	requestSem *semaphore.Weighted

	// Per-IP rate limiters
	limMu    sync.Mutex
	limiters map[string]*rate.Limiter

	metrics *serverMetrics
	proc    *process.Process
	started time.Time
}

type serverMetrics struct {
	mu            sync.RWMutex
	totalRequests int64
	activeReqs    int64
	comparisons   int64
	failures      int64
}

func (m *serverMetrics) incActive() {
	m.mu.Lock()
	m.activeReqs++
	m.totalRequests++
	m.mu.Unlock()
}

func (m *serverMetrics) decActive() {
	m.mu.Lock()
	m.activeReqs--
	m.mu.Unlock()
}

func (m *serverMetrics) record(ok bool) {
	m.mu.Lock()
	m.comparisons++
	if !ok {
		m.failures++
	}
	m.mu.Unlock()
}

func (m *serverMetrics) get() (total, active int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalRequests, m.activeReqs
}

func newServer(cfg config.Config, opener document.Opener, log logrus.FieldLogger) (*server, error) {
	engine, err := compare.New(cfg.Options(), opener, log)
	if err != nil {
		return nil, err
	}
	// gopsutil failing here only costs the process stats in /metrics
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.WithError(err).Warn("process stats unavailable")
		proc = nil
	}
	return &server{
		cfg:        cfg,
		log:        log,
		opener:     opener,
		engine:     engine,
		requestSem: semaphore.NewWeighted(cfg.MaxConcurrentRequests),
		limiters:   make(map[string]*rate.Limiter),
		metrics:    &serverMetrics{},
		proc:       proc,
		started:    time.Now(),
	}, nil
}

func (s *server) cleanupRateLimiters(ctx context.Context) {
	interval := s.cfg.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		total, active := s.metrics.get()
		s.log.WithFields(logrus.Fields{
			"active":     active,
			"total":      total,
			"goroutines": runtime.NumGoroutine(),
			"mem_mb":     m.Alloc / (1 << 20),
		}).Info("stats")

		s.limMu.Lock()
		s.limiters = make(map[string]*rate.Limiter)
		s.limMu.Unlock()
	}
}

func (s *server) getRateLimiter(ip string) *rate.Limiter {
	s.limMu.Lock()
	defer s.limMu.Unlock()

	if l, ok := s.limiters[ip]; ok {
		return l
	}

	every := s.cfg.RateLimitEvery
	if every <= 0 {
		every = 600 * time.Millisecond // ~100/min
	}
	burst := s.cfg.RateLimitBurst
	if burst <= 0 {
		burst = 20
	}

	l := rate.NewLimiter(rate.Every(every), burst)
	s.limiters[ip] = l
	return l
}

// processStats reads RSS, CPU and thread count for this process.
func (s *server) processStats() (map[string]any, error) {
	if s.proc == nil {
		return nil, fmt.Errorf("process handle unavailable")
	}
	mem, err := s.proc.MemoryInfo()
	if err != nil {
		return nil, fmt.Errorf("memory info: %w", err)
	}
	cpu, err := s.proc.CPUPercent()
	if err != nil {
		return nil, fmt.Errorf("cpu percent: %w", err)
	}
	threads, err := s.proc.NumThreads()
	if err != nil {
		return nil, fmt.Errorf("threads: %w", err)
	}
	return map[string]any{
		"rssMB":      mem.RSS / (1 << 20),
		"cpuPercent": cpu,
		"threads":    threads,
	}, nil
}
