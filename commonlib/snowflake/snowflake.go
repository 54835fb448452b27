package snowflake

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

// =============================================================================
// Snowflake ID Generator
// =============================================================================

// Default epoch: 2024-01-01 00:00:00 UTC
var defaultEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

const (
	nodeBits     = 10
	sequenceBits = 12
	maxNodeID    = -1 ^ (-1 << nodeBits)
	maxSequence  = -1 ^ (-1 << sequenceBits)
	timeShift    = nodeBits + sequenceBits
	nodeShift    = sequenceBits
)

// Snowflake generates unique, time ordered IDs.
// Structure: timestamp(41) | node(10) | sequence(12)
type Snowflake struct {
	mu       sync.Mutex
	nodeID   int64
	epoch    int64
	sequence int64
	lastTime int64
	now      func() int64
}

// New creates a new Snowflake generator for the given node.
func New(nodeID int64) (*Snowflake, error) {
	if nodeID < 0 || nodeID > maxNodeID {
		return nil, fmt.Errorf("node ID must be between 0 and %d", maxNodeID)
	}
	return &Snowflake{
		nodeID: nodeID,
		epoch:  defaultEpoch,
		now:    func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// Generate generates a new unique ID.
func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now < s.lastTime {
		// clock moved backwards; keep issuing from the last seen millisecond
		now = s.lastTime
	}
	if now == s.lastTime {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			for now <= s.lastTime {
				now = s.now()
			}
		}
	} else {
		s.sequence = 0
	}
	s.lastTime = now

	return ((now - s.epoch) << timeShift) | (s.nodeID << nodeShift) | s.sequence
}

// =============================================================================
// Typed IDs
// =============================================================================

// IDType selects the prefix of a generated ID.
type IDType byte

const (
	IDTypeCorrelation IDType = 1
	IDTypeRequest     IDType = 2
)

func typePrefix(t IDType) string {
	switch t {
	case IDTypeCorrelation:
		return "cor"
	case IDTypeRequest:
		return "req"
	default:
		return "id"
	}
}

// TypedID generates prefixed IDs such as "cor_1234".
type TypedID struct {
	sf *Snowflake
}

// NewTypedID creates a typed ID generator.
func NewTypedID(nodeID int64) (*TypedID, error) {
	sf, err := New(nodeID)
	if err != nil {
		return nil, err
	}
	return &TypedID{sf: sf}, nil
}

// Generate generates a typed ID.
func (t *TypedID) Generate(idType IDType) string {
	return typePrefix(idType) + "_" + strconv.FormatInt(t.sf.Generate(), 10)
}

// CorrelationID generates an ID for an envelope without a caller-assigned one.
func (t *TypedID) CorrelationID() string {
	return t.Generate(IDTypeCorrelation)
}
