package utils

import (
	"sync"
	"time"
)

// Metrics содержит метрики приложения
type Metrics struct {
	mu sync.RWMutex

	// Метрики запросов
	TotalRequests   int64
	FailedRequests  int64
	RequestLatency  time.Duration
	AverageLatency  time.Duration
	LastRequestTime time.Time

	// Метрики операций леджера
	LedgerOperations    map[string]int64
	RejectedOperations  map[string]int64
	LastLedgerOperation time.Time

	// Метрики ошибок
	ErrorCount     int64
	LastErrorTime  time.Time
	ErrorTypes     map[string]int64
	CriticalErrors int64
}

var (
	metrics     *Metrics
	metricsOnce sync.Once
)

// NewMetrics создает пустой набор метрик
func NewMetrics() *Metrics {
	return &Metrics{
		LedgerOperations:   make(map[string]int64),
		RejectedOperations: make(map[string]int64),
		ErrorTypes:         make(map[string]int64),
	}
}

// GetMetrics возвращает общий экземпляр метрик
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = NewMetrics()
	})
	return metrics
}

// RecordRequest записывает метрики HTTP-запроса.
// failed - ответ со статусом 5xx.
func (m *Metrics) RecordRequest(duration time.Duration, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRequests++
	m.RequestLatency += duration
	m.AverageLatency = m.RequestLatency / time.Duration(m.TotalRequests)
	m.LastRequestTime = time.Now()

	if failed {
		m.FailedRequests++
	}
}

// RecordLedgerOperation записывает результат операции леджера.
// errorKind пуст для успешных операций и инфраструктурных ошибок.
func (m *Metrics) RecordLedgerOperation(operation, errorKind string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastLedgerOperation = time.Now()
	switch {
	case err == nil:
		m.LedgerOperations[operation]++
	case errorKind != "":
		m.RejectedOperations[operation]++
		m.recordErrorLocked(errorKind)
	default:
		m.CriticalErrors++
		m.recordErrorLocked("internal")
	}
}

// RecordError записывает метрики ошибки
func (m *Metrics) RecordError(errorType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordErrorLocked(errorType)
}

func (m *Metrics) recordErrorLocked(errorType string) {
	m.ErrorCount++
	m.LastErrorTime = time.Now()
	if errorType == "" {
		errorType = "unknown"
	}
	m.ErrorTypes[errorType]++
}

// GetMetricsSnapshot возвращает снимок текущих метрик
func (m *Metrics) GetMetricsSnapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"total_requests":        m.TotalRequests,
		"failed_requests":       m.FailedRequests,
		"average_latency_ms":    m.AverageLatency.Milliseconds(),
		"ledger_operations":     copyCounters(m.LedgerOperations),
		"rejected_operations":   copyCounters(m.RejectedOperations),
		"last_ledger_operation": m.LastLedgerOperation,
		"error_count":           m.ErrorCount,
		"critical_errors":       m.CriticalErrors,
		"last_error_time":       m.LastErrorTime,
		"error_types":           copyCounters(m.ErrorTypes),
	}
}

// ResetMetrics сбрасывает все метрики
func (m *Metrics) ResetMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRequests = 0
	m.FailedRequests = 0
	m.RequestLatency = 0
	m.AverageLatency = 0
	m.LedgerOperations = make(map[string]int64)
	m.RejectedOperations = make(map[string]int64)
	m.ErrorCount = 0
	m.CriticalErrors = 0
	m.ErrorTypes = make(map[string]int64)
}

func copyCounters(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
