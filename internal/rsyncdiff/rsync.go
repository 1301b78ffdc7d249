// Package rsyncdiff implements the rsync-style signature/diff/patch codec
// required by the sync engine's transfer path. It wraps mutagen's
// synchronization rsync engine (github.com/mutagen-io/mutagen/pkg/rsync),
// a pure-Go implementation of the rolling-checksum/strong-hash scheme that
// librsync and py_fast_rsync also use. Signatures and diffs are gob-encoded
// mutagen structures, not librsync's byte format, so only peers using this
// package can read them.
package rsyncdiff

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"

	"github.com/mutagen-io/mutagen/pkg/rsync"
)

// ErrCorruptDiff is returned by Apply when diffBytes cannot be decoded or
// the operation stream it describes is inconsistent with oldData.
var ErrCorruptDiff = fmt.Errorf("corrupt diff")

func newEngine() *rsync.Engine {
	return rsync.NewEngine()
}

// Signature computes an rsync signature of base's content using the engine's
// default block size. The returned bytes are the gob encoding of mutagen's
// Signature, readable only by this package's Diff — not a stable wire format
// in its own right.
func Signature(base io.Reader) ([]byte, error) {
	sig, err := newEngine().Signature(base, 0)
	if err != nil {
		return nil, fmt.Errorf("compute rsync signature: %w", err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(sig); err != nil {
		return nil, fmt.Errorf("encode rsync signature: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeSignature(signatureBytes []byte) (*rsync.Signature, error) {
	var sig rsync.Signature
	if err := gob.NewDecoder(bytes.NewReader(signatureBytes)).Decode(&sig); err != nil {
		return nil, fmt.Errorf("%w: decode signature: %v", ErrCorruptDiff, err)
	}
	return &sig, nil
}

// Diff computes a binary delta of newData against the peer's previously
// observed content, described by oldSignatureBytes (as returned by
// Signature). The delta lets a holder of the old content reconstruct
// newData by calling Apply.
func Diff(oldSignatureBytes []byte, newData []byte) ([]byte, error) {
	sig, err := decodeSignature(oldSignatureBytes)
	if err != nil {
		return nil, err
	}

	engine := newEngine()

	var operations []rsync.Operation
	transmit := func(op rsync.Operation) error {
		// Operation.Data aliases the engine's internal read buffer; copy it
		// out since we accumulate operations instead of streaming them.
		cp := op
		if len(op.Data) > 0 {
			cp.Data = append([]byte(nil), op.Data...)
		}
		operations = append(operations, cp)
		return nil
	}

	if err := engine.Deltify(bytes.NewReader(newData), sig, 0, transmit); err != nil {
		return nil, fmt.Errorf("compute rsync diff: %w", err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(operations); err != nil {
		return nil, fmt.Errorf("encode rsync diff: %w", err)
	}
	return buf.Bytes(), nil
}

// Apply reconstructs new content by applying diffBytes (as returned by
// Diff) to oldData, the content the signature passed to Diff was computed
// over. Returns ErrCorruptDiff if diffBytes cannot be decoded or applying
// it fails.
func Apply(oldData []byte, diffBytes []byte) ([]byte, error) {
	var operations []rsync.Operation
	if err := gob.NewDecoder(bytes.NewReader(diffBytes)).Decode(&operations); err != nil {
		return nil, fmt.Errorf("%w: decode operations: %v", ErrCorruptDiff, err)
	}

	var out bytes.Buffer
	base := bytes.NewReader(oldData)
	if err := newEngine().Patch(&out, base, operations); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDiff, err)
	}

	return out.Bytes(), nil
}
