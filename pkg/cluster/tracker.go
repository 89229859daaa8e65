// Copyright (C) 2026 The settingsd Authors
//
// This file is part of settingsd
//
// SPDX-License-Identifier: Apache-2.0

// Package cluster tracks the cluster-wide compatibility version. Each
// node advertises the schema version its build supports through
// memberlist node metadata; the effective version is the minimum
// across live members and only ever moves forward. The settings
// manager consumes it as a read-only accessor and never decides it.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/memberlist"

	"github.com/cruxdb/settingsd/pkg/metrics"
	"github.com/cruxdb/settingsd/pkg/settings"
)

// ErrNotRunning is returned for operations on a stopped tracker.
var ErrNotRunning = errors.New("tracker is not running")

// Config holds configuration for the version tracker.
type Config struct {
	// NodeName is the unique name for this node.
	NodeName string

	// BindAddr is the address to bind for gossip (IP only).
	BindAddr string

	// BindPort is the port to bind for gossip.
	BindPort int

	// Seeds are the addresses of nodes to join on startup.
	Seeds []string

	// LocalVersion is the schema version this build supports and
	// advertises to peers.
	LocalVersion settings.Version

	// OnChange is invoked (on a tracker goroutine) whenever the
	// effective version rises. Optional.
	OnChange func(settings.Version)

	// Logger for structured logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// Static returns a version accessor pinned to v, for single-node
// deployments that run without the tracker.
func Static(v settings.Version) func() settings.Version {
	return func() settings.Version { return v }
}

// Tracker derives the effective compatibility version from cluster
// membership.
type Tracker struct {
	config Config
	logger *slog.Logger

	mu        sync.RWMutex
	list      *memberlist.Memberlist
	effective settings.Version
	running   bool
}

// NewTracker creates a Tracker.
func NewTracker(cfg Config) (*Tracker, error) {
	if cfg.NodeName == "" {
		return nil, errors.New("NodeName is required")
	}
	if cfg.LocalVersion == 0 {
		return nil, errors.New("LocalVersion is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Tracker{
		config:    cfg,
		logger:    logger,
		effective: settings.MinSupportedVersion,
	}, nil
}

// Start joins the gossip mesh and begins tracking.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return errors.New("tracker already running")
	}
	t.mu.Unlock()

	t.logger.Info("starting version tracker",
		"node_name", t.config.NodeName,
		"bind_addr", t.config.BindAddr,
		"bind_port", t.config.BindPort,
		"local_version", t.config.LocalVersion.String(),
	)

	mlConfig := memberlist.DefaultLANConfig()
	mlConfig.Name = t.config.NodeName
	if t.config.BindAddr != "" {
		mlConfig.BindAddr = t.config.BindAddr
	}
	mlConfig.BindPort = t.config.BindPort
	mlConfig.Delegate = &versionDelegate{tracker: t}
	mlConfig.Events = &versionEvents{tracker: t}
	mlConfig.Logger = nil
	mlConfig.LogOutput = &slogWriter{logger: t.logger.With("component", "memberlist")}

	// Create is not run under the lock: it can deliver join events
	// synchronously, and recompute takes the lock itself.
	list, err := memberlist.Create(mlConfig)
	if err != nil {
		return fmt.Errorf("failed to create memberlist: %w", err)
	}

	t.mu.Lock()
	t.list = list
	t.running = true
	t.mu.Unlock()

	if len(t.config.Seeds) > 0 {
		if _, err := list.Join(t.config.Seeds); err != nil {
			t.logger.Warn("failed to join seed nodes on startup",
				"error", err,
				"seeds", t.config.Seeds,
			)
			// Membership catches up through gossip; not fatal.
		}
	}

	t.recompute()
	return nil
}

// Stop leaves the mesh and shuts the tracker down.
func (t *Tracker) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return nil
	}
	t.running = false

	if err := t.list.Leave(5 * time.Second); err != nil {
		t.logger.Warn("failed to leave cluster cleanly", "error", err)
	}
	return t.list.Shutdown()
}

// Effective returns the current effective compatibility version.
func (t *Tracker) Effective() settings.Version {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.effective
}

// Members returns the number of live cluster members.
func (t *Tracker) Members() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.running {
		return 0
	}
	return t.list.NumMembers()
}

// recompute derives the effective version as the minimum advertised
// version across live members. The effective version is monotonic: a
// member advertising something older than the already-effective
// version is reported and ignored, because compatibility never moves
// backwards once raised.
func (t *Tracker) recompute() {
	t.mu.Lock()

	if !t.running {
		t.mu.Unlock()
		return
	}

	members := t.list.Members()
	peers := make([]settings.Version, 0, len(members))
	for _, node := range members {
		v, err := settings.ParseVersion(string(node.Meta))
		if err != nil {
			t.logger.Warn("member with unparseable version metadata",
				"member", node.Name,
				"error", err,
			)
			continue
		}
		peers = append(peers, v)
	}

	metrics.ClusterMembers.Set(float64(len(members)))

	old := t.effective
	min := effectiveVersion(old, t.config.LocalVersion, peers)
	if min == old {
		t.mu.Unlock()
		return
	}

	t.effective = min
	onChange := t.config.OnChange
	t.mu.Unlock()

	metrics.EffectiveCompatVersion.Set(float64(min))
	t.logger.Info("effective compatibility version advanced",
		"from", old.String(),
		"to", min.String(),
	)
	if onChange != nil {
		onChange(min)
	}
}

// effectiveVersion computes the next effective version: the minimum
// version advertised across live members (capped by the local build's
// version), but never below current. Compatibility only ever moves
// forward once raised; a member advertising something older is the
// join-ordering race, not a downgrade.
func effectiveVersion(current, local settings.Version, peers []settings.Version) settings.Version {
	min := local
	for _, v := range peers {
		if v < min {
			min = v
		}
	}
	if min < current {
		return current
	}
	return min
}

// versionDelegate advertises the local supported version as node
// metadata. No user-level gossip messages are exchanged.
type versionDelegate struct {
	tracker *Tracker
}

func (d *versionDelegate) NodeMeta(limit int) []byte {
	meta := []byte(d.tracker.config.LocalVersion.String())
	if len(meta) > limit {
		return meta[:limit]
	}
	return meta
}

func (d *versionDelegate) NotifyMsg([]byte) {}

func (d *versionDelegate) GetBroadcasts(overhead, limit int) [][]byte { return nil }

func (d *versionDelegate) LocalState(join bool) []byte { return nil }

func (d *versionDelegate) MergeRemoteState(buf []byte, join bool) {}

// versionEvents recomputes the effective version on membership changes.
type versionEvents struct {
	tracker *Tracker
}

func (e *versionEvents) NotifyJoin(node *memberlist.Node)   { e.tracker.recompute() }
func (e *versionEvents) NotifyLeave(node *memberlist.Node)  { e.tracker.recompute() }
func (e *versionEvents) NotifyUpdate(node *memberlist.Node) { e.tracker.recompute() }

// slogWriter adapts slog.Logger to io.Writer for memberlist logging.
type slogWriter struct {
	logger *slog.Logger
}

func (w *slogWriter) Write(p []byte) (n int, err error) {
	msg := string(p)
	if len(msg) > 0 && msg[len(msg)-1] == '\n' {
		msg = msg[:len(msg)-1]
	}
	// memberlist logs are quite verbose, log at debug level
	w.logger.Debug(msg)
	return len(p), nil
}

// Ensure slogWriter implements io.Writer
var _ io.Writer = (*slogWriter)(nil)
