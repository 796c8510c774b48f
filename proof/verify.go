// proof/verify.go
package proof

import (
	"bytes"

	"avlmerkle/hash"
)

// Verify reports whether the proof's re-derived root digest equals root.
func (p *RangeProof) Verify(root hash.Digest) (bool, error) {
	got, err := p.RootDigest()
	if err != nil {
		return false, err
	}
	return got == root, nil
}

// VerifyItem checks that the proof attests key maps to value under root.
func (p *RangeProof) VerifyItem(root hash.Digest, key, value []byte) error {
	got, err := p.RootDigest()
	if err != nil {
		return err
	}
	if got != root {
		return &RootMismatchError{Got: got, Want: root}
	}

	for _, leaf := range p.Leaves {
		if bytes.Equal(leaf.Key, key) {
			if leaf.ValueDigest != p.hasher.Digest(value) {
				return &ValueDigestMismatchError{Key: key}
			}
			return nil
		}
	}
	return &KeyNotInProofError{Key: key}
}

// VerifyAbsence checks that the proof attests key does not exist under
// root, per the four absence rules in spec §4.4.
func (p *RangeProof) VerifyAbsence(root hash.Digest, key []byte) error {
	got, err := p.RootDigest()
	if err != nil {
		return err
	}
	if got != root {
		return &RootMismatchError{Got: got, Want: root}
	}
	if len(p.Leaves) == 0 {
		return ErrEmptyProof
	}

	for i, leaf := range p.Leaves {
		if bytes.Equal(leaf.Key, key) {
			return &AbsenceDisprovedError{Index: i}
		}
	}

	first := p.Leaves[0]
	last := p.Leaves[len(p.Leaves)-1]

	switch {
	case bytes.Compare(key, first.Key) < 0:
		if !isLeftmost(p.LeftPath) {
			return &AbsenceNotProvenError{Reason: "key precedes the proof's first leaf, but left_path is not the tree's leftmost path"}
		}
		return nil

	case bytes.Compare(key, last.Key) > 0:
		treeEnd, err := p.TreeEnd()
		if err != nil {
			return err
		}
		if len(p.LeftPath) == 0 || isRightmost(p.LeftPath) || treeEnd {
			return nil
		}
		return &AbsenceNotProvenError{Reason: "key follows the proof's last leaf, but the proof doesn't reach the tree's rightmost edge"}

	default:
		for i := 1; i < len(p.Leaves); i++ {
			prev, next := p.Leaves[i-1], p.Leaves[i]
			if bytes.Compare(prev.Key, key) < 0 && bytes.Compare(key, next.Key) < 0 {
				return nil
			}
		}
		return &AbsenceNotProvenError{Reason: "key falls in a gap not bracketed by two adjacent proof leaves"}
	}
}

// isLeftmost reports whether path is the tree's leftmost path: every
// ancestor descends left (sibling on the right throughout).
func isLeftmost(path []ProofInner) bool {
	for _, step := range path {
		if step.Side != SideRight {
			return false
		}
	}
	return true
}

// isRightmost reports whether path is the tree's rightmost path: every
// ancestor descends right (sibling on the left throughout).
func isRightmost(path []ProofInner) bool {
	for _, step := range path {
		if step.Side != SideLeft {
			return false
		}
	}
	return true
}
