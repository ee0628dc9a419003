package decision

import (
	"crypto/md5"
	"fmt"
	"math/big"
	"math/rand"
	"sync/atomic"
	"time"
)

// buildCounter distinguishes successive builds of the same tree definition.
var buildCounter atomic.Int64

// Build decodes a wire encoded tree and stamps it as a fresh instance:
// every node receives its depth and the tree-wide instance id.
func Build(data []byte) (Node, error) {
	node, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return Stamp(node), nil
}

// Stamp assigns levels and a new instance id to an already decoded tree.
// Answers recorded against one instance do not leak into a rebuilt copy of
// the same uid because node identity includes the instance id.
func Stamp(node Node) Node {
	id := int(buildCounter.Add(1))
	stampRecursive(node, 0, id)
	return node
}

func stampRecursive(n Node, level, instanceID int) {
	meta := n.Meta()
	meta.Level = level
	meta.InstanceID = instanceID
	for _, child := range meta.Children {
		stampRecursive(child, level+1, instanceID)
	}
}

// GenerateUID produces a collision resistant opaque uid. It hashes the
// current time plus randomness; uniqueness is probabilistic, not
// cryptographic, which is sufficient for an editing session.
func GenerateUID() string {
	sum := md5.Sum([]byte(fmt.Sprintf("%d%f", time.Now().UnixNano(), rand.Float64())))
	return new(big.Int).SetBytes(sum[:]).Text(36)
}
