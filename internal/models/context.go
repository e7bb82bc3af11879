package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Context is an independent interaction domain. Each context has its own
// profiles and connection semantics, but mutual interest in any of them
// feeds the same canonical Match.
type Context string

const (
	ContextDating     Context = "dating"
	ContextNetworking Context = "networking"
	ContextMentorship Context = "mentorship"
	ContextJob        Context = "job"
)

func (c Context) Valid() bool {
	switch c {
	case ContextDating, ContextNetworking, ContextMentorship, ContextJob:
		return true
	}
	return false
}

func ParseContext(s string) (Context, error) {
	c := Context(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown context %q", s)
	}
	return c, nil
}

// Action is what an actor did toward a target profile.
type Action string

const (
	ActionLike Action = "like"
	ActionPass Action = "pass"
)

func (a Action) Valid() bool {
	return a == ActionLike || a == ActionPass
}

// ContextSet is a set of contexts stored as a JSON array column.
// Add is idempotent and serialization order is stable so rows stay
// byte-comparable across rewrites.
type ContextSet []Context

func (s ContextSet) Contains(c Context) bool {
	for _, v := range s {
		if v == c {
			return true
		}
	}
	return false
}

// Add returns the set with c included. Adding an already-present
// context returns the set unchanged.
func (s ContextSet) Add(c Context) ContextSet {
	if s.Contains(c) {
		return s
	}
	out := append(ContextSet{}, s...)
	out = append(out, c)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s ContextSet) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *ContextSet) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("unsupported type for ContextSet")
	}
	if len(b) == 0 {
		*s = nil
		return nil
	}
	return json.Unmarshal(b, s)
}
