// Package condition implements the boolean condition trees that gate every
// update task.
//
// A Condition is either a single leaf predicate or an ordered group of items.
// Groups are evaluated left to right with short-circuit rules that depend on
// item order, so the order found in a feed is significant.
package condition

import (
	"fmt"
	"strings"
)

// Join is how an item combines with the running result of its group.
type Join int

const (
	And Join = iota
	Or
)

func (j Join) String() string {
	if j == Or {
		return "or"
	}
	return "and"
}

// Item is one entry of a group.
type Item struct {
	Condition Condition
	Join      Join
	Negate    bool
}

// Condition is a leaf predicate or an ordered group. The zero value is an
// empty group and is always met.
type Condition struct {
	leaf  Leaf
	items []Item
}

// NewLeaf wraps a leaf predicate.
func NewLeaf(l Leaf) Condition {
	return Condition{leaf: l}
}

// NewGroup builds a group from items in evaluation order.
func NewGroup(items ...Item) Condition {
	return Condition{items: append([]Item(nil), items...)}
}

// IsLeaf reports whether c wraps a single leaf.
func (c Condition) IsLeaf() bool {
	return c.leaf != nil
}

// Leaf returns the wrapped leaf, or nil for groups.
func (c Condition) Leaf() Leaf {
	return c.leaf
}

// Items returns a copy of the group's items. Leaves have none.
func (c Condition) Items() []Item {
	return append([]Item(nil), c.items...)
}

// Len is the number of direct children of a group.
func (c Condition) Len() int {
	return len(c.items)
}

// Add returns a new group with item appended. Calling Add on a leaf turns it
// into the first item of a new group.
func (c Condition) Add(item Item) Condition {
	if c.leaf != nil {
		return NewGroup(Item{Condition: c, Join: And}, item)
	}
	return NewGroup(append(c.Items(), item)...)
}

// Degrade unwraps a group holding exactly one non-negated item and returns
// that item's condition. Any other condition is returned unchanged.
func (c Condition) Degrade() Condition {
	if c.leaf == nil && len(c.items) == 1 && !c.items[0].Negate {
		return c.items[0].Condition
	}
	return c
}

// Evaluate reports whether the condition is met in env.
//
// The running result starts true. The first item is always evaluated. After
// that an OR item short-circuits the group to true when the running result
// is already true, an AND item is skipped when the running result is false,
// and every other item replaces the running result with its own value.
func (c Condition) Evaluate(env Env) bool {
	if c.leaf != nil {
		return c.leaf.Met(env)
	}

	passed := true
	for i, item := range c.items {
		if i > 0 {
			if passed && item.Join == Or {
				return true
			}
			if !passed && item.Join == And {
				continue
			}
		}
		passed = item.Condition.Evaluate(env)
		if item.Negate {
			passed = !passed
		}
	}
	return passed
}

// ParseType maps a feed "type" attribute to a join and negate flag.
// An empty value means "and".
func ParseType(value string) (Join, bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "and":
		return And, false, nil
	case "or":
		return Or, false, nil
	case "not", "and-not":
		return And, true, nil
	case "or-not":
		return Or, true, nil
	default:
		return And, false, fmt.Errorf("unknown condition type %q", value)
	}
}

// TypeString is the inverse of ParseType.
func TypeString(join Join, negate bool) string {
	s := join.String()
	if negate {
		s += "-not"
	}
	return s
}
