package syncconsumer

import (
	"strings"

	"github.com/opensyncbox/syncbox/internal/datasite"
	"github.com/opensyncbox/syncbox/internal/hashsign"
	"github.com/opensyncbox/syncbox/internal/syncdecision"
	"github.com/opensyncbox/syncbox/internal/syncstate"
)

// record decides what to write to Local State given both sides' outcomes.
// A decision skipped by a validation gate (oversize file, invalid
// permission file, missing data) is recorded as an ERROR with the gate's
// reason — it is not NOOP-equivalent, and original_source's
// write_to_local_state always lands a not-executed, not-NOOP decision in
// its ERROR branch.
func (c *Consumer) record(path datasite.RelativePath, pair syncdecision.DecisionPair, current, remote *hashsign.FileMetadata, localExecuted, remoteExecuted bool, localErr, remoteErr error, localSkipReason, remoteSkipReason string) error {
	if localErr != nil || remoteErr != nil {
		action, message := firstFailure(pair, localErr, remoteErr)
		return c.state.InsertStatus(path, syncstate.StatusError, action, message)
	}

	if !localExecuted && !remoteExecuted {
		if action, reason, skipped := firstSkip(pair, localSkipReason, remoteSkipReason); skipped {
			return c.state.InsertStatus(path, syncstate.StatusError, action, reason)
		}
		return nil
	}

	// At least one side executed successfully. The recorded metadata is the
	// remote view for any pair where the local side isn't the lone NOOP
	// (i.e. the remote moved, or both moved via the conflict rule), else
	// the unchanged local view.
	action, resultMetadata := resolvedOutcome(pair, current, remote)
	return c.state.InsertSynced(path, resultMetadata, action)
}

func firstFailure(pair syncdecision.DecisionPair, localErr, remoteErr error) (syncdecision.ActionType, string) {
	var messages []string
	action := syncdecision.ActionNoop

	if localErr != nil {
		messages = append(messages, "local: "+localErr.Error())
		action = pair.Local.ActionType()
	}
	if remoteErr != nil {
		messages = append(messages, "remote: "+remoteErr.Error())
		action = pair.Remote.ActionType()
	}

	return action, strings.Join(messages, "; ")
}

// firstSkip reports the action/reason to record for a gate-skipped
// decision. At most one side is ever non-NOOP for a given pair, so at most
// one of localSkipReason/remoteSkipReason is ever non-empty.
func firstSkip(pair syncdecision.DecisionPair, localSkipReason, remoteSkipReason string) (syncdecision.ActionType, string, bool) {
	if localSkipReason != "" {
		return pair.Local.ActionType(), localSkipReason, true
	}
	if remoteSkipReason != "" {
		return pair.Remote.ActionType(), remoteSkipReason, true
	}
	return syncdecision.ActionNoop, "", false
}

// resolvedOutcome picks the action/metadata pair to persist once both sides
// have executed without error.
func resolvedOutcome(pair syncdecision.DecisionPair, current, remote *hashsign.FileMetadata) (syncdecision.ActionType, *hashsign.FileMetadata) {
	if pair.Remote.Operation != syncdecision.OpNoop {
		// Local pushed to remote: the server now holds what local held.
		return pair.Remote.ActionType(), current
	}
	if pair.Local.Operation != syncdecision.OpNoop {
		// Remote state was pulled/applied to local: local now matches remote.
		return pair.Local.ActionType(), remote
	}
	return syncdecision.ActionNoop, current
}
