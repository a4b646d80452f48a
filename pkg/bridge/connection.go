// Copyright 2024-2026 Aiku AI

package bridge

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TokenTTL is how long a pending connection accepts /connect.
const TokenTTL = time.Hour

// Direction controls which side of a completed connection receives
// forwarded messages.
type Direction string

const (
	DirectionNone    Direction = "none"
	DirectionTwoWay  Direction = "two-way"
	DirectionToLeft  Direction = "to-left"
	DirectionToRight Direction = "to-right"
)

// ParseDirection validates a direction name.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case DirectionNone, DirectionTwoWay, DirectionToLeft, DirectionToRight:
		return d, nil
	default:
		return "", fmt.Errorf("unknown direction %q", s)
	}
}

// arrow renders the direction as seen with left on the left.
func (d Direction) arrow() string {
	switch d {
	case DirectionTwoWay:
		return "<->"
	case DirectionToLeft:
		return "<-"
	case DirectionToRight:
		return "->"
	default:
		return "-x-"
	}
}

// Connection pairs two conversations. A connection without a right side is
// pending and can be completed with its token until it expires.
type Connection struct {
	ID        uuid.UUID     `json:"id"`
	Token     string        `json:"token,omitempty"`
	Left      *Conversation `json:"left"`
	Right     *Conversation `json:"right,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	Direction Direction     `json:"direction"`
}

// Pending reports whether the right side is still missing.
func (c *Connection) Pending() bool {
	return c.Right == nil
}

// Expired reports whether a pending connection's token is past its TTL.
// Completed connections never expire.
func (c *Connection) Expired(now time.Time) bool {
	return c.Pending() && now.After(c.CreatedAt.Add(TokenTTL))
}

// Involves reports whether the conversation is on either side.
func (c *Connection) Involves(id ProviderID) bool {
	return c.IsLeft(id) || c.IsRight(id)
}

// IsLeft reports whether the conversation is the left side.
func (c *Connection) IsLeft(id ProviderID) bool {
	return c.Left != nil && c.Left.ID == id
}

// IsRight reports whether the conversation is the right side.
func (c *Connection) IsRight(id ProviderID) bool {
	return c.Right != nil && c.Right.ID == id
}

// Other returns the conversation opposite to id, or nil if id is not a side
// or the connection is pending.
func (c *Connection) Other(id ProviderID) *Conversation {
	switch {
	case c.Pending():
		return nil
	case c.IsLeft(id):
		return c.Right
	case c.IsRight(id):
		return c.Left
	}
	return nil
}

// ForwardTarget returns the conversation a message from origin should be
// forwarded to, or nil if the direction policy forbids it.
func (c *Connection) ForwardTarget(origin ProviderID) *Conversation {
	switch c.Direction {
	case DirectionTwoWay:
		return c.Other(origin)
	case DirectionToLeft:
		if c.IsRight(origin) {
			return c.Left
		}
	case DirectionToRight:
		if c.IsLeft(origin) {
			return c.Right
		}
	}
	return nil
}

// Sides returns the conversations on both ends, omitting a missing right side.
func (c *Connection) Sides() []*Conversation {
	if c.Right == nil {
		return []*Conversation{c.Left}
	}
	return []*Conversation{c.Left, c.Right}
}
