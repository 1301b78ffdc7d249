// Package syncdecision implements the pure decision engine: given the
// local, previously-synced, and remote metadata for a path, it decides
// what — if anything — must happen on each side, with no I/O of its own.
package syncdecision

import (
	"github.com/opensyncbox/syncbox/internal/hashsign"
)

// Operation is what a Decision asks a side to do.
type Operation string

const (
	OpNoop   Operation = "NOOP"
	OpCreate Operation = "CREATE"
	OpModify Operation = "MODIFY"
	OpDelete Operation = "DELETE"
)

// Side identifies which half of a DecisionPair a Decision belongs to.
type Side string

const (
	SideLocal  Side = "LOCAL"
	SideRemote Side = "REMOTE"
)

// ActionType is the derived action_type property: operation × side,
// collapsed to a single tag so the Consumer and Local State store don't
// need to carry the pair apart.
type ActionType string

const (
	ActionNoop         ActionType = "NOOP"
	ActionCreateLocal  ActionType = "CREATE_LOCAL"
	ActionCreateRemote ActionType = "CREATE_REMOTE"
	ActionModifyLocal  ActionType = "MODIFY_LOCAL"
	ActionModifyRemote ActionType = "MODIFY_REMOTE"
	ActionDeleteLocal  ActionType = "DELETE_LOCAL"
	ActionDeleteRemote ActionType = "DELETE_REMOTE"
)

// Decision is one side's instruction for a path.
type Decision struct {
	Operation  Operation
	Side       Side
	LocalMeta  *hashsign.FileMetadata
	RemoteMeta *hashsign.FileMetadata
}

// ActionType derives the combined operation×side tag.
func (d Decision) ActionType() ActionType {
	if d.Operation == OpNoop {
		return ActionNoop
	}
	switch {
	case d.Operation == OpCreate && d.Side == SideLocal:
		return ActionCreateLocal
	case d.Operation == OpCreate && d.Side == SideRemote:
		return ActionCreateRemote
	case d.Operation == OpModify && d.Side == SideLocal:
		return ActionModifyLocal
	case d.Operation == OpModify && d.Side == SideRemote:
		return ActionModifyRemote
	case d.Operation == OpDelete && d.Side == SideLocal:
		return ActionDeleteLocal
	case d.Operation == OpDelete && d.Side == SideRemote:
		return ActionDeleteRemote
	default:
		return ActionNoop
	}
}

func noop(side Side) Decision {
	return Decision{Operation: OpNoop, Side: side}
}

// DecisionPair is the per-tick output for one path: at most one side is
// non-NOOP, except that the decision rules below never produce a
// "both create" pair by construction.
type DecisionPair struct {
	Local  Decision
	Remote Decision
}

// metadataEqual compares by SHA-256 hash only: size/mtime never
// participate in sync-decision equality.
func metadataEqual(a, b *hashsign.FileMetadata) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Hash == b.Hash
}

// Decide is the total function from (current_local, previous_local,
// current_remote) to a DecisionPair (spec I4: every triple of
// Metadata-or-nil maps to exactly one DecisionPair).
func Decide(currentLocal, previousLocal, currentRemote *hashsign.FileMetadata) DecisionPair {
	localModified := !metadataEqual(currentLocal, previousLocal)
	remoteModified := !metadataEqual(previousLocal, currentRemote)
	inSync := metadataEqual(currentLocal, currentRemote)
	conflict := localModified && remoteModified && !inSync

	switch {
	case inSync:
		return DecisionPair{Local: noop(SideLocal), Remote: noop(SideRemote)}

	case conflict:
		// Server wins: the remote state was written earlier by some client
		// and is globally visible: the loser must re-edit.
		return DecisionPair{
			Local:  fromModifiedStates(SideLocal, currentLocal, currentRemote),
			Remote: noop(SideRemote),
		}

	case localModified && !remoteModified:
		return DecisionPair{
			Local:  noop(SideLocal),
			Remote: fromModifiedStates(SideRemote, currentLocal, currentRemote),
		}

	case remoteModified && !localModified:
		return DecisionPair{
			Local:  fromModifiedStates(SideLocal, currentLocal, currentRemote),
			Remote: noop(SideRemote),
		}

	default:
		// Neither side changed since the last observation and they already
		// agree with each other — indistinguishable from inSync given
		// hash-only equality, but kept explicit for totality.
		return DecisionPair{Local: noop(SideLocal), Remote: noop(SideRemote)}
	}
}

// fromModifiedStates yields the Decision that brings `side` in line with
// the other side's state: DELETE if the source-of-truth for that side is
// nil, CREATE if `side` currently lacks the file, MODIFY otherwise.
func fromModifiedStates(side Side, currentLocal, currentRemote *hashsign.FileMetadata) Decision {
	// sourceOfTruth is the state the side-being-updated should converge to;
	// existing is what that side currently holds.
	var sourceOfTruth, existing *hashsign.FileMetadata
	if side == SideLocal {
		sourceOfTruth = currentRemote
		existing = currentLocal
	} else {
		sourceOfTruth = currentLocal
		existing = currentRemote
	}

	d := Decision{Side: side, LocalMeta: currentLocal, RemoteMeta: currentRemote}

	switch {
	case sourceOfTruth == nil:
		d.Operation = OpDelete
	case existing == nil:
		d.Operation = OpCreate
	default:
		d.Operation = OpModify
	}

	return d
}
