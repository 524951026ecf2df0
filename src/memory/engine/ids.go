package engine

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

// IDGenerator assigns record ids. Implementations must be safe for concurrent use.
type IDGenerator interface {
	NewID() string
}

// UUIDs issues random version 4 UUIDs.
type UUIDs struct{}

func (UUIDs) NewID() string { return uuid.NewString() }

// SnowflakeIDs issues time-ordered snowflake ids, useful when stores sort by id.
type SnowflakeIDs struct {
	node *snowflake.Node
}

// NewSnowflakeIDs creates a generator for the given node number (0-1023).
func NewSnowflakeIDs(node int64) (*SnowflakeIDs, error) {
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("snowflake node: %w", err)
	}
	return &SnowflakeIDs{node: n}, nil
}

func (s *SnowflakeIDs) NewID() string { return s.node.Generate().String() }
