package queue

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/xraph/jobq/job"
)

// Config defines per-queue behaviour.
type Config struct {
	// Name is the queue the settings apply to.
	Name job.QueueName

	// MaxConcurrency caps how many jobs from this queue may run at once in
	// the local pool. Zero means only the pool-wide limit applies.
	MaxConcurrency int

	// RateLimit is the sustained jobs per second that may start from this
	// queue. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the token-bucket burst. Defaults to 1 when RateLimit is
	// set.
	RateBurst int

	// DisableDeadLetter makes terminal failures end in job.StateFailed
	// instead of being copied into the dead-letter queue.
	DisableDeadLetter bool
}

type queueState struct {
	config  Config
	limiter *rate.Limiter
	active  int
}

// Manager enforces per-queue rate limits and concurrency caps. It is safe
// for concurrent use.
type Manager struct {
	mu     sync.Mutex
	queues map[job.QueueName]*queueState
}

// NewManager creates a Manager with the given queue configurations.
// Queues not listed here have no limits and dead-letter normally.
func NewManager(configs ...Config) *Manager {
	m := &Manager{queues: make(map[job.QueueName]*queueState, len(configs))}
	for _, cfg := range configs {
		m.queues[cfg.Name] = newQueueState(cfg)
	}
	return m
}

func newQueueState(cfg Config) *queueState {
	qs := &queueState{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		qs.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return qs
}

// Acquire reports whether a job from q may start now. On true the active
// count is incremented and the caller must call Release when the attempt
// ends.
func (m *Manager) Acquire(q job.QueueName) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	qs := m.queues[q]
	if qs == nil {
		return true
	}
	if qs.config.MaxConcurrency > 0 && qs.active >= qs.config.MaxConcurrency {
		return false
	}
	if qs.limiter != nil && !qs.limiter.Allow() {
		return false
	}
	qs.active++
	return true
}

// Release frees a slot taken by Acquire.
func (m *Manager) Release(q job.QueueName) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if qs := m.queues[q]; qs != nil && qs.active > 0 {
		qs.active--
	}
}

// SetQueueConfig replaces or adds a queue configuration, keeping the
// current active count.
func (m *Manager) SetQueueConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	qs := newQueueState(cfg)
	if existing := m.queues[cfg.Name]; existing != nil {
		qs.active = existing.active
	}
	m.queues[cfg.Name] = qs
}

// ActiveCount returns the number of running jobs Acquired for q.
func (m *Manager) ActiveCount(q job.QueueName) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if qs := m.queues[q]; qs != nil {
		return qs.active
	}
	return 0
}

// QueueConfig returns the configuration for q, if one was set.
func (m *Manager) QueueConfig(q job.QueueName) (Config, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if qs := m.queues[q]; qs != nil {
		return qs.config, true
	}
	return Config{}, false
}

// DeadLetters reports whether terminal failures on q go to the
// dead-letter queue.
func (m *Manager) DeadLetters(q job.QueueName) bool {
	cfg, ok := m.QueueConfig(q)
	return !ok || !cfg.DisableDeadLetter
}
