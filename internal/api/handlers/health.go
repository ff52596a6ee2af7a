// health.go — обработчики health endpoints ncstore.
// /health/live — liveness probe (процесс жив)
// /health/ready — readiness probe (PostgreSQL, директория данных, JWKS при включённой аутентификации)
// /metrics — Prometheus метрики
package handlers

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/ncstore/internal/config"
)

// serviceName — имя сервиса в ответах health.
const serviceName = "ncstore"

// Константы статусов health check.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
)

// ReadinessChecker — интерфейс проверки готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status, message string)
}

// dependency — зависимость, проверяемая readiness probe.
type dependency struct {
	name    string
	checker ReadinessChecker
	// optional — fail понижается до degraded, nil пропускается
	optional bool
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	deps        []dependency
	promHandler http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
// pgChecker и storageChecker обязательны: nil означает "fail".
// jwksChecker — nil при отключённой аутентификации.
func NewHealthHandler(pgChecker, storageChecker, jwksChecker ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		deps: []dependency{
			{name: "postgresql", checker: pgChecker},
			{name: "storage", checker: storageChecker},
			// без JWKS новые токены не проверить, но сервис продолжает работу
			{name: "jwks", checker: jwksChecker, optional: true},
		},
		promHandler: promhttp.Handler(),
	}
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthLiveResponse — ответ liveness probe.
type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

// healthReadyResponse — ответ readiness probe.
type healthReadyResponse struct {
	Status    string                       `json:"status"`
	Timestamp string                       `json:"timestamp"`
	Version   string                       `json:"version"`
	Service   string                       `json:"service"`
	Checks    map[string]healthCheckResult `json:"checks"`
}

// HealthLive — liveness probe. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthLiveResponse{
		Status:    statusOK,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	})
}

// HealthReady — readiness probe.
// Возвращает 200 (ok/degraded) или 503 (fail).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	resp := healthReadyResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
		Checks:    make(map[string]healthCheckResult, len(h.deps)),
	}

	statuses := make([]string, 0, len(h.deps))
	for _, dep := range h.deps {
		res := check(dep)
		if res == nil {
			continue
		}
		resp.Checks[dep.name] = *res
		statuses = append(statuses, res.Status)
	}
	resp.Status = overallStatus(statuses...)

	status := http.StatusOK
	if resp.Status == statusFail {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// check опрашивает зависимость. nil — необязательная зависимость не настроена.
func check(dep dependency) *healthCheckResult {
	if dep.checker == nil {
		if dep.optional {
			return nil
		}
		return &healthCheckResult{Status: statusFail, Message: "не инициализирован"}
	}
	st, msg := dep.checker.CheckReady()
	if dep.optional && st == statusFail {
		st = statusDegraded
	}
	return &healthCheckResult{Status: st, Message: msg}
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

// overallStatus определяет итоговый статус из статусов зависимостей.
// Если хотя бы одна зависимость fail — итог fail.
// Если хотя бы одна degraded — итог degraded.
func overallStatus(statuses ...string) string {
	hasDegraded := false
	for _, s := range statuses {
		if s == statusFail {
			return statusFail
		}
		if s == statusDegraded {
			hasDegraded = true
		}
	}
	if hasDegraded {
		return statusDegraded
	}
	return statusOK
}
