// Copyright (C) 2026 The settingsd Authors
//
// This file is part of settingsd
//
// SPDX-License-Identifier: Apache-2.0

// Package metrics provides Prometheus metrics for settingsd observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all settingsd metrics.
const namespace = "settingsd"

// Settings operation metrics
var (
	// UpdatesTotal counts settings update requests by outcome.
	UpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Total number of settings update requests by outcome",
		},
		[]string{"status"},
	)

	// UpdateDuration measures settings update latency including retries.
	UpdateDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "update_duration_seconds",
			Help:      "Settings update duration in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// ReadsTotal counts settings read operations.
	ReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reads_total",
			Help:      "Total number of settings read operations",
		},
		[]string{"op"},
	)

	// UpgradesTotal counts schema upgrade steps by version pair and outcome.
	UpgradesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upgrades_total",
			Help:      "Total number of schema upgrade steps by version pair and outcome",
		},
		[]string{"from", "to", "status"},
	)

	// CommitConflictsTotal counts optimistic commit conflicts observed
	// before a retry.
	CommitConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commit_conflicts_total",
			Help:      "Total number of optimistic commit conflicts",
		},
	)

	// DocumentRevision tracks the current revision of the settings document.
	DocumentRevision = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "document_revision",
			Help:      "Current revision of the settings document",
		},
	)
)

// Notifier metrics
var (
	// NotifierSubscribers tracks the current number of change subscribers.
	NotifierSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notifier_subscribers",
			Help:      "Current number of change subscribers",
		},
	)

	// NotifierEventsDroppedTotal counts events dropped because a
	// subscriber's buffer was full.
	NotifierEventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifier_events_dropped_total",
			Help:      "Total number of change events dropped due to slow subscribers",
		},
	)
)

// Cluster metrics
var (
	// ClusterMembers tracks the number of live members seen by the
	// compatibility tracker.
	ClusterMembers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cluster_members",
			Help:      "Number of live cluster members",
		},
	)

	// EffectiveCompatVersion exposes the effective compatibility
	// version as major*10+minor.
	EffectiveCompatVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "effective_compat_version",
			Help:      "Effective cluster compatibility version (major*10+minor)",
		},
	)
)
