package ids

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

const (
	nodeBits = 10
	seqBits  = 12
	maxNode  = 1<<nodeBits - 1
	seqMask  = 1<<seqBits - 1
)

var epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// Node issues snowflake ids: 41 bits of milliseconds since 2020-01-01,
// 10 bits of node and 12 bits of sequence.
type Node struct {
	mu       sync.Mutex
	epochMS  int64
	nodeID   int64
	seq      int64
	lastTSMS int64
	now      func() time.Time
}

var (
	defaultNode *Node
	once        sync.Once
)

func NewNode(nodeID int64) (*Node, error) {
	if nodeID < 0 || nodeID > maxNode {
		return nil, fmt.Errorf("node id %d out of range [0,%d]", nodeID, maxNode)
	}
	return &Node{epochMS: epoch.UnixMilli(), nodeID: nodeID, now: time.Now}, nil
}

func initDefault() {
	once.Do(func() {
		defaultNode, _ = NewNode(1)
	})
}

// Generate returns the next id of the process wide node.
func Generate() int64 {
	initDefault()
	return defaultNode.Next()
}

func GenerateString() string {
	return strconv.FormatInt(Generate(), 10)
}

// SetNodeID rebinds the process wide node; out of range values fall back to 1.
func SetNodeID(nodeID int64) {
	initDefault()
	if nodeID < 0 || nodeID > maxNode {
		nodeID = 1
	}
	defaultNode.mu.Lock()
	defaultNode.nodeID = nodeID
	defaultNode.mu.Unlock()
}

func (n *Node) Next() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	for {
		now := n.now().UnixMilli()
		if now < n.lastTSMS {
			// clock moved backwards
			time.Sleep(time.Duration(n.lastTSMS-now) * time.Millisecond)
			continue
		}
		if now == n.lastTSMS {
			n.seq = (n.seq + 1) & seqMask
			if n.seq == 0 {
				for now <= n.lastTSMS {
					now = n.now().UnixMilli()
				}
			}
		} else {
			n.seq = 0
		}
		n.lastTSMS = now

		ts := (now - n.epochMS) & ((1 << 41) - 1)
		return (ts << (nodeBits + seqBits)) | (n.nodeID << seqBits) | n.seq
	}
}

// NodeOf extracts the node part of an id.
func NodeOf(id int64) int64 {
	return (id >> seqBits) & maxNode
}
