package common

import (
	"time"

	"stablevault/core/events"
	"stablevault/crypto"
)

// MaxCallDepth bounds nested contract calls within a single top-level call.
const MaxCallDepth = 16

// StateStore is the persistence surface contracts operate on. The node backs
// it with a buffered overlay that is committed only when the top-level call
// succeeds.
type StateStore interface {
	KVPut(key []byte, value interface{}) error
	KVGet(key []byte, out interface{}) (bool, error)
	KVDelete(key []byte) error
	KVAppend(key []byte, value []byte) error
	KVRemove(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
	Snapshot() int
	RevertToSnapshot(id int)
}

// Context carries the identity of the immediate caller, the state view and the
// event buffer through one contract invocation.
type Context struct {
	caller crypto.Address
	state  StateStore
	now    time.Time
	log    *eventLog
	depth  int
}

type eventLog struct {
	events []events.Event
}

// NewContext starts a top-level call on behalf of caller.
func NewContext(caller crypto.Address, state StateStore, now time.Time) *Context {
	return &Context{caller: caller, state: state, now: now, log: &eventLog{}}
}

// Caller returns the address that invoked the current contract.
func (c *Context) Caller() crypto.Address { return c.caller }

// State returns the state view shared by every frame of the call.
func (c *Context) State() StateStore { return c.state }

// Now returns the timestamp fixed for the whole top-level call.
func (c *Context) Now() time.Time { return c.now }

// Timestamp returns Now as unix seconds, clamped at zero for persistence.
func (c *Context) Timestamp() uint64 {
	if sec := c.now.Unix(); sec > 0 {
		return uint64(sec)
	}
	return 0
}

// Depth reports how many nested calls separate this frame from the top level.
func (c *Context) Depth() int { return c.depth }

// Emit buffers an event. Buffered events are discarded with the state when
// the frame that emitted them fails.
func (c *Context) Emit(e events.Event) {
	if e == nil {
		return
	}
	c.log.events = append(c.log.events, e)
}

// Events returns the events buffered so far.
func (c *Context) Events() []events.Event {
	return append([]events.Event(nil), c.log.events...)
}

// Call runs fn as a nested call made by the contract at self. The callee sees
// self as its caller. On failure every state write and event produced inside
// fn is rolled back before the error is returned.
func (c *Context) Call(self crypto.Address, fn func(*Context) error) error {
	if c.depth+1 > MaxCallDepth {
		return ErrCallDepth
	}
	snap := c.state.Snapshot()
	mark := len(c.log.events)
	child := &Context{caller: self, state: c.state, now: c.now, log: c.log, depth: c.depth + 1}
	if err := fn(child); err != nil {
		c.state.RevertToSnapshot(snap)
		c.log.events = c.log.events[:mark]
		return err
	}
	return nil
}
