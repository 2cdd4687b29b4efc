// Package metrics exposes the worker's Prometheus instrumentation. The
// worker loop records task outcomes, durations and idle polls; the
// follow-up publisher in package tasks counts published follow-ups.
// Clients stay instrumentation-free.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TasksTotal counts completed/failed/skipped tasks by (type, product, outcome).
	TasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cloudnet",
		Subsystem: "worker",
		Name:      "tasks_total",
		Help:      "Number of tasks processed, labeled by task type, product id, and outcome (complete|skip|fail).",
	}, []string{"task_type", "product", "outcome"})

	// TaskDuration histograms task processing wall time by task type.
	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cloudnet",
		Subsystem: "worker",
		Name:      "task_duration_seconds",
		Help:      "Task processing duration in seconds, labeled by task type.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s .. ~34m
	}, []string{"task_type"})

	// QueueEmptyTotal counts how often queue.receive returned no task.
	QueueEmptyTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cloudnet",
		Subsystem: "worker",
		Name:      "queue_empty_total",
		Help:      "Number of times queue.receive returned no task (worker went idle).",
	})

	// FollowupTasksPublished counts derived-product follow-up tasks enqueued.
	FollowupTasksPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cloudnet",
		Subsystem: "worker",
		Name:      "followup_tasks_published_total",
		Help:      "Number of derived-product follow-up tasks published, labeled by product id.",
	}, []string{"product"})
)
