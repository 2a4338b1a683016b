package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

var startTime = time.Now()

// HealthChecker tracks engine liveness for the health endpoint.
type HealthChecker struct {
	mu            sync.RWMutex
	lastCycle     time.Time
	lastPrice     float64
	isConnected   bool
	breakerPaused bool
	errors        []string
}

// HealthStatus is the JSON body of the health endpoint.
type HealthStatus struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	LastCycle     time.Time `json:"last_cycle"`
	LastPrice     float64   `json:"last_price"`
	IsConnected   bool      `json:"is_connected"`
	BreakerPaused bool      `json:"breaker_paused"`
	Uptime        string    `json:"uptime"`
	Errors        []string  `json:"errors,omitempty"`
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		errors: make([]string, 0),
	}
}

// MarkCycle records a completed trading cycle and the price it saw.
func (h *HealthChecker) MarkCycle(price float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastCycle = time.Now()
	h.lastPrice = price
	h.errors = h.errors[:0]
}

// SetConnected records exchange connectivity.
func (h *HealthChecker) SetConnected(connected bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.isConnected = connected
}

// SetBreakerPaused records the circuit-breaker state. A paused breaker
// is not an error; the endpoint reports it separately.
func (h *HealthChecker) SetBreakerPaused(paused bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.breakerPaused = paused
}

// ReportError appends an error to the health view. Cleared on the next
// successful cycle.
func (h *HealthChecker) ReportError(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, msg)
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	if !h.isConnected || time.Since(h.lastCycle) > time.Hour {
		status = "degraded"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if len(h.errors) > 0 {
		status = "unhealthy"
		w.WriteHeader(http.StatusInternalServerError)
	}

	health := HealthStatus{
		Status:        status,
		Timestamp:     time.Now(),
		LastCycle:     h.lastCycle,
		LastPrice:     h.lastPrice,
		IsConnected:   h.isConnected,
		BreakerPaused: h.breakerPaused,
		Uptime:        time.Since(startTime).String(),
		Errors:        h.errors,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}
