package rollup

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/kashguard/go-evidence/internal/evidence/canonical"
	"github.com/pkg/errors"
)

// Algorithm names the tree construction recorded in every rollup.
const Algorithm = "sha256-binary-duplicate-last"

var (
	ErrNoLeaves     = errors.New("merkle tree needs at least one leaf")
	ErrLeafNotFound = errors.New("leaf index out of range")
)

// ProofStep is one sibling on the path from a leaf to the root.
type ProofStep struct {
	Hash string `json:"hash"`
	// Left is true when the sibling is hashed on the left.
	Left bool `json:"left"`
}

// Proof is an inclusion proof for one leaf.
type Proof struct {
	Leaf      string      `json:"leaf"`
	LeafIndex int         `json:"leaf_index"`
	TreeSize  int         `json:"tree_size"`
	Root      string      `json:"root"`
	Path      []ProofStep `json:"path"`
}

// leafNode turns a leaf value into its 32-byte node. Values that already are a
// hex SHA-256 are used as-is; anything else is hashed.
func leafNode(leaf string) []byte {
	norm := canonical.NormalizeHash(leaf)
	if len(norm) == sha256.Size*2 {
		if b, err := hex.DecodeString(norm); err == nil {
			return b
		}
	}
	sum := sha256.Sum256([]byte(leaf))
	return sum[:]
}

func parent(left []byte, right []byte) []byte {
	h := sha256.New()
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}

// levels returns every level of the tree, leaves first. An odd node at any
// level is paired with itself.
func levels(leaves []string) ([][][]byte, error) {
	if len(leaves) == 0 {
		return nil, ErrNoLeaves
	}

	level := make([][]byte, len(leaves))
	for i, l := range leaves {
		level[i] = leafNode(l)
	}

	out := [][][]byte{level}
	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := level[i]
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, parent(level[i], right))
		}
		out = append(out, next)
		level = next
	}

	return out, nil
}

// Root computes the Merkle root over leaves in the given order.
func Root(leaves []string) (string, error) {
	lv, err := levels(leaves)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(lv[len(lv)-1][0]), nil
}

// BuildProof returns the inclusion proof of leaves[index].
func BuildProof(leaves []string, index int) (*Proof, error) {
	if index < 0 || index >= len(leaves) {
		return nil, errors.Wrapf(ErrLeafNotFound, "index %d of %d", index, len(leaves))
	}
	lv, err := levels(leaves)
	if err != nil {
		return nil, err
	}

	path := make([]ProofStep, 0, len(lv)-1)
	idx := index
	for _, level := range lv[:len(lv)-1] {
		if idx%2 == 0 {
			sib := idx + 1
			if sib >= len(level) {
				sib = idx
			}
			path = append(path, ProofStep{Hash: hex.EncodeToString(level[sib])})
		} else {
			path = append(path, ProofStep{Hash: hex.EncodeToString(level[idx-1]), Left: true})
		}
		idx /= 2
	}

	return &Proof{
		Leaf:      leaves[index],
		LeafIndex: index,
		TreeSize:  len(leaves),
		Root:      hex.EncodeToString(lv[len(lv)-1][0]),
		Path:      path,
	}, nil
}

// VerifyProof recomputes the root from the proof's leaf and path.
func VerifyProof(p *Proof) bool {
	if p == nil {
		return false
	}

	current := leafNode(p.Leaf)
	for _, step := range p.Path {
		sib, err := hex.DecodeString(step.Hash)
		if err != nil {
			return false
		}
		if step.Left {
			current = parent(sib, current)
		} else {
			current = parent(current, sib)
		}
	}

	return hex.EncodeToString(current) == canonical.NormalizeHash(p.Root)
}
