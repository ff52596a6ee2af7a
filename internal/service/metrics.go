// metrics.go — доменные Prometheus-метрики ncstore.
package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	revisionsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ncstore_revisions_created_total",
		Help: "Количество созданных ревизий (kind: initial, subsequent).",
	}, []string{"kind"})

	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ncstore_upload_bytes_total",
		Help: "Объём загруженных файлов ревизий в байтах.",
	})

	rollbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ncstore_rollbacks_total",
		Help: "Количество откатов текущей ревизии (result: applied, noop).",
	}, []string{"result"})

	workflowTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ncstore_workflow_transitions_total",
		Help: "Количество переходов workflow по действиям.",
	}, []string{"action"})

	orphanFilesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ncstore_orphan_files_total",
		Help: "Удаление файлов, не закреплённых транзакцией (result: removed, failed).",
	}, []string{"result"})

	contentCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ncstore_content_cache_hits_total",
		Help: "Попадания в LRU-кэш содержимого ревизий.",
	})
	contentCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ncstore_content_cache_misses_total",
		Help: "Промахи LRU-кэша содержимого ревизий.",
	})

	verifyIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ncstore_verify_issues_total",
		Help: "Проблемы, найденные проверкой целостности, по типу.",
	}, []string{"type"})

	verifyDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ncstore_verify_duration_seconds",
		Help:    "Длительность проверки целостности в секундах.",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	})
)
