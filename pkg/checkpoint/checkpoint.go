// Package checkpoint implements copy-on-write session snapshots, branch
// creation, and rollback (spec.md §3/§4.8, C8). Grounded on hector's
// pkg/checkpoint/manager.go shape (a thin Manager delegating to storage,
// config-driven "should checkpoint" predicates), adapted from hector's
// session-state-embedded snapshot to spec.md's explicit deep-copied
// message-list snapshot so P4 (rollback round-trip) and P5 (branch
// independence) hold by value semantics rather than by storage contract.
package checkpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/penguin-run/penguin/pkg/eventbus"
	"github.com/penguin-run/penguin/pkg/perrors"
	"github.com/penguin-run/penguin/pkg/session"
)

// Type identifies why a Checkpoint was created (spec.md §3).
type Type string

const (
	TypeAuto     Type = "AUTO"
	TypeManual   Type = "MANUAL"
	TypeBranch   Type = "BRANCH"
	TypeRollback Type = "ROLLBACK"
)

// Checkpoint is an immutable snapshot of a session at a point in time.
type Checkpoint struct {
	ID                 string
	SessionID          string
	CreatedAt          time.Time
	Type               Type
	Name               string
	Description        string
	ParentCheckpointID string
	Snapshot           *session.Session
}

// Summary is the lightweight listing shape for Manager.List.
type Summary struct {
	ID                 string
	Type               Type
	Name               string
	CreatedAt          time.Time
	ParentCheckpointID string
}

// RetentionConfig governs AUTO checkpoint pruning (spec.md §4.8).
// MANUAL/BRANCH/ROLLBACK checkpoints are never pruned by age/count, only by
// explicit Delete.
type RetentionConfig struct {
	MaxCount int
	MaxAge   time.Duration
	// Frequency is "every N messages" for automatic checkpointing, default 1
	// (spec.md §4.8: "governed by a frequency setting (default: every 1 message)").
	Frequency int
}

// DefaultRetention matches spec.md's stated defaults.
func DefaultRetention() RetentionConfig {
	return RetentionConfig{MaxCount: 50, MaxAge: 24 * time.Hour, Frequency: 1}
}

// Manager owns the checkpoint lineage for exactly one session, per
// spec.md §4.9 ("ConversationManager owns ... one CheckpointManager per agent").
type Manager struct {
	retention   RetentionConfig
	bus         *eventbus.Bus
	checkpoints map[string]*Checkpoint
	order       []string // creation order, oldest first
}

// NewManager creates an empty Manager.
func NewManager(retention RetentionConfig, bus *eventbus.Bus) *Manager {
	if retention.Frequency <= 0 {
		retention.Frequency = 1
	}
	return &Manager{
		retention:   retention,
		bus:         bus,
		checkpoints: make(map[string]*Checkpoint),
	}
}

// Create snapshots sess (by deep copy) and records it. For typ ==
// TypeAuto, the caller is responsible for honoring ShouldCheckpoint
// (frequency gating); Create itself always creates when called.
func (m *Manager) Create(sess *session.Session, typ Type, name, description string) *Checkpoint {
	cp := &Checkpoint{
		ID:          uuid.NewString(),
		SessionID:   sess.ID,
		CreatedAt:   time.Now(),
		Type:        typ,
		Name:        name,
		Description: description,
		Snapshot:    sess.Clone(),
	}
	m.add(cp)
	if typ == TypeAuto {
		m.pruneAuto()
	}
	return cp
}

func (m *Manager) add(cp *Checkpoint) {
	m.checkpoints[cp.ID] = cp
	m.order = append(m.order, cp.ID)
	if m.bus != nil {
		m.bus.Publish(context.Background(), eventbus.TypeCheckpointCreated, map[string]any{
			"id": cp.ID, "type": cp.Type, "name": cp.Name,
		}, eventbus.Normal)
	}
}

// ShouldCheckpoint reports whether an AUTO checkpoint should be taken after
// appending the messageIndex'th message (0-based), per Frequency.
func (m *Manager) ShouldCheckpoint(messageIndex int) bool {
	return (messageIndex+1)%m.retention.Frequency == 0
}

// Get returns the checkpoint registered under id.
func (m *Manager) Get(id string) (*Checkpoint, bool) {
	cp, ok := m.checkpoints[id]
	return cp, ok
}

// List returns up to limit checkpoint summaries, newest first. limit <= 0
// means unlimited.
func (m *Manager) List(limit int) []Summary {
	var out []Summary
	for i := len(m.order) - 1; i >= 0; i-- {
		cp := m.checkpoints[m.order[i]]
		out = append(out, Summary{
			ID: cp.ID, Type: cp.Type, Name: cp.Name,
			CreatedAt: cp.CreatedAt, ParentCheckpointID: cp.ParentCheckpointID,
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Rollback replaces sess's content in place with the checkpointID snapshot,
// then records a ROLLBACK-type checkpoint referencing the rolled-back state
// for safety (spec.md §4.8). P4 holds: the resulting sess.Messages equal
// the snapshot taken at Create time, by value.
func (m *Manager) Rollback(sess *session.Session, checkpointID string) error {
	cp, ok := m.checkpoints[checkpointID]
	if !ok {
		return perrors.NewPersistenceError("checkpoint.Manager", fmt.Sprintf("checkpoint %q not found", checkpointID), nil)
	}

	restored := cp.Snapshot.Clone()
	sess.Messages = restored.Messages
	sess.SystemPrompt = restored.SystemPrompt
	sess.Metadata = restored.Metadata
	sess.LastActiveAt = time.Now()

	rollbackCP := &Checkpoint{
		ID:                 uuid.NewString(),
		SessionID:           sess.ID,
		CreatedAt:           time.Now(),
		Type:                TypeRollback,
		Name:                "rollback to " + checkpointID,
		ParentCheckpointID:  checkpointID,
		Snapshot:            sess.Clone(),
	}
	m.add(rollbackCP)
	return nil
}

// Branch deep-copies the checkpointID snapshot into a brand-new Session with
// ParentSessionID set, and records a BRANCH-type checkpoint in this manager
// referencing the origin (spec.md §4.8). P5 holds: mutations to the
// returned session never touch cp.Snapshot or the original live session,
// since both are independent clones.
func (m *Manager) Branch(checkpointID, name string) (*session.Session, error) {
	cp, ok := m.checkpoints[checkpointID]
	if !ok {
		return nil, perrors.NewPersistenceError("checkpoint.Manager", fmt.Sprintf("checkpoint %q not found", checkpointID), nil)
	}

	branched := cp.Snapshot.Clone()
	branched.ID = uuid.NewString()
	branched.ParentSessionID = cp.SessionID
	branched.CreatedAt = time.Now()
	branched.LastActiveAt = branched.CreatedAt
	if name != "" {
		branched.Title = name
	}

	m.add(&Checkpoint{
		ID:                 uuid.NewString(),
		SessionID:           cp.SessionID,
		CreatedAt:           time.Now(),
		Type:                TypeBranch,
		Name:                name,
		ParentCheckpointID:  checkpointID,
		Snapshot:            branched.Clone(),
	})

	return branched, nil
}

// Delete removes a MANUAL/BRANCH/ROLLBACK checkpoint explicitly.
func (m *Manager) Delete(id string) {
	delete(m.checkpoints, id)
	for i, cid := range m.order {
		if cid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// referencedAsParent reports whether id is any surviving checkpoint's
// ParentCheckpointID — such a checkpoint is an ancestor of a live branch or
// rollback lineage and must never be pruned (spec.md §9 Open Question #2).
func (m *Manager) referencedAsParent(id string) bool {
	for _, cp := range m.checkpoints {
		if cp.ParentCheckpointID == id {
			return true
		}
	}
	return false
}

// pruneAuto removes AUTO checkpoints beyond MaxCount or older than MaxAge,
// oldest-first, refusing to prune any checkpoint still referenced as an
// ancestor by a surviving checkpoint.
func (m *Manager) pruneAuto() {
	now := time.Now()
	autoCount := 0
	for _, id := range m.order {
		if m.checkpoints[id].Type == TypeAuto {
			autoCount++
		}
	}

	for _, id := range append([]string(nil), m.order...) {
		cp, ok := m.checkpoints[id]
		if !ok || cp.Type != TypeAuto {
			continue
		}
		tooOld := m.retention.MaxAge > 0 && now.Sub(cp.CreatedAt) > m.retention.MaxAge
		tooMany := m.retention.MaxCount > 0 && autoCount > m.retention.MaxCount
		if !tooOld && !tooMany {
			continue
		}
		if m.referencedAsParent(id) {
			continue
		}
		m.Delete(id)
		autoCount--
	}
}
