// proof/errors.go
package proof

import (
	"errors"
	"fmt"

	"avlmerkle/hash"
)

// Sentinel errors for the failure kinds that carry no payload.
var (
	// ErrEmptyProof is raised when a proof has zero leaves.
	ErrEmptyProof = errors.New("proof: empty proof")

	// ErrMalformedProof is raised when path/leaf counts don't line up, or
	// leaves remain unconsumed after COMPUTE_ROOT exhausts every path.
	ErrMalformedProof = errors.New("proof: malformed proof")
)

// RootMismatchError is raised when a verifier's re-derived root digest
// doesn't match the expected root.
type RootMismatchError struct {
	Got, Want hash.Digest
}

func (e *RootMismatchError) Error() string {
	return fmt.Sprintf("proof: root mismatch: got %x, want %x", e.Got, e.Want)
}

// ValueDigestMismatchError is raised by verify_item when the proof's leaf
// carries a different value digest than the one being checked against.
type ValueDigestMismatchError struct {
	Key []byte
}

func (e *ValueDigestMismatchError) Error() string {
	return fmt.Sprintf("proof: value digest mismatch for key %q", e.Key)
}

// KeyNotInProofError is raised by verify_item when the queried key isn't
// among the proof's leaves at all.
type KeyNotInProofError struct {
	Key []byte
}

func (e *KeyNotInProofError) Error() string {
	return fmt.Sprintf("proof: key %q not present in proof", e.Key)
}

// AbsenceDisprovedError is raised by verify_absence when the proof
// actually contains the queried key, at Index.
type AbsenceDisprovedError struct {
	Index int
}

func (e *AbsenceDisprovedError) Error() string {
	return fmt.Sprintf("proof: absence disproved: key present at index %d", e.Index)
}

// AbsenceNotProvenError is raised by verify_absence when none of the
// absence rules in §4.4 are satisfied by the proof's shape.
type AbsenceNotProvenError struct {
	Reason string
}

func (e *AbsenceNotProvenError) Error() string {
	return fmt.Sprintf("proof: absence not proven: %s", e.Reason)
}
