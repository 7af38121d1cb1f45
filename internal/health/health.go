// Package health отдаёт состояние хранилищ и брокера для /healthz.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// DefaultCheckTimeout ограничивает одну проверку.
const DefaultCheckTimeout = 2 * time.Second

// Status представляет статус компонента
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// Check содержит результат проверки одного компонента.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response представляет ответ health check
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	Commit        string           `json:"commit,omitempty"`
	BuildDate     string           `json:"build_date,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker проверяет компонент в пределах переданного контекста.
type Checker interface {
	Check(ctx context.Context) Check
}

// Registry хранит проверки и обслуживает /healthz и /readyz.
type Registry struct {
	mu        sync.RWMutex
	checkers  map[string]Checker
	version   string
	commit    string
	buildDate string
	timeout   time.Duration
	startTime time.Time
}

// NewRegistry создаёт пустой реестр проверок.
func NewRegistry(version string) *Registry {
	return &Registry{
		checkers:  make(map[string]Checker),
		version:   version,
		timeout:   DefaultCheckTimeout,
		startTime: time.Now(),
	}
}

// WithBuild добавляет в ответ коммит и дату сборки.
func (r *Registry) WithBuild(commit, date string) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commit = commit
	r.buildDate = date
	return r
}

// Register добавляет или заменяет проверку.
func (r *Registry) Register(name string, checker Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[name] = checker
}

// Names возвращает имена зарегистрированных проверок по алфавиту.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.checkers))
	for name := range r.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run выполняет все проверки параллельно и сводит общий статус.
func (r *Registry) Run(ctx context.Context) Response {
	r.mu.RLock()
	checkers := make(map[string]Checker, len(r.checkers))
	for k, v := range r.checkers {
		checkers[k] = v
	}
	timeout := r.timeout
	commit, buildDate := r.commit, r.buildDate
	r.mu.RUnlock()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]Check, len(checkers))
	)
	for name, checker := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			check := checker.Check(checkCtx)
			mu.Lock()
			checks[name] = check
			mu.Unlock()
		}()
	}
	wg.Wait()

	overall := StatusHealthy
	for _, check := range checks {
		switch {
		case check.Status == StatusUnhealthy:
			overall = StatusUnhealthy
		case check.Status == StatusDegraded && overall == StatusHealthy:
			overall = StatusDegraded
		}
	}

	return Response{
		Status:        overall,
		Timestamp:     time.Now(),
		Checks:        checks,
		Version:       r.version,
		Commit:        commit,
		BuildDate:     buildDate,
		UptimeSeconds: int64(time.Since(r.startTime).Seconds()),
	}
}

// ServeHTTP отдаёт JSON со статусами, 503 при хотя бы одной неуспешной проверке.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	response := r.Run(req.Context())

	statusCode := http.StatusOK
	if response.Status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// LivenessHandler простой liveness probe (всегда возвращает 200)
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ReadinessHandler отвечает 503, пока хотя бы одна проверка неуспешна.
func (r *Registry) ReadinessHandler(w http.ResponseWriter, req *http.Request) {
	if r.Run(req.Context()).Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// PingChecker оборачивает функцию Ping хранилища или брокера.
type PingChecker struct {
	name string
	ping func(ctx context.Context) error
}

// NewPingChecker создаёт проверку по функции ping.
func NewPingChecker(name string, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping}
}

// Check выполняет ping и измеряет длительность.
func (c *PingChecker) Check(ctx context.Context) Check {
	start := time.Now()
	err := c.ping(ctx)
	check := Check{
		Name:       c.name,
		Status:     StatusHealthy,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	}
	return check
}
