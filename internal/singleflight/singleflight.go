package singleflight

import (
	"context"
	"sync"
)

// Group manages a set of in-flight calls to prevent duplicate work.
// A key is removed from the group as soon as its call settles, so the next
// call for that key always starts a fresh execution.
type Group struct {
	mu sync.Mutex
	m  map[string]*call
}

// call represents an active function call.
type call struct {
	done   chan struct{}
	val    interface{}
	err    error
	dups   int
	shared bool
}

// New creates a new singleflight Group.
func New() *Group {
	return &Group{
		m: make(map[string]*call),
	}
}

// Do executes fn for key unless a call for key is already in flight, in which
// case it waits for that call and returns its result. shared reports whether
// the result was delivered to more than one caller.
//
// A waiting caller returns ctx.Err() when ctx is done first; the running call
// is not affected. The caller that starts the call runs fn on its own
// goroutine and always waits for it.
func (g *Group) Do(ctx context.Context, key string, fn func() (interface{}, error)) (v interface{}, err error, shared bool) {
	g.mu.Lock()
	if c, ok := g.m[key]; ok {
		c.dups++
		g.mu.Unlock()
		select {
		case <-c.done:
			return c.val, c.err, true
		case <-ctx.Done():
			return nil, ctx.Err(), true
		}
	}

	c := &call{done: make(chan struct{})}
	g.m[key] = c
	g.mu.Unlock()

	g.doCall(c, key, fn)
	return c.val, c.err, c.shared
}

func (g *Group) doCall(c *call, key string, fn func() (interface{}, error)) {
	normalReturn := false
	recovered := false

	defer func() {
		if !normalReturn && !recovered {
			c.err = errGoexit
		}
		g.finish(key, c)
	}()

	func() {
		defer func() {
			if !normalReturn {
				if r := recover(); r != nil {
					recovered = true
					c.err = &PanicError{Key: key, Value: r}
				}
			}
		}()
		c.val, c.err = fn()
		normalReturn = true
	}()

	if recovered {
		// The deferred finish still runs while this panic unwinds.
		panic(c.err.(*PanicError).Value)
	}
}

// finish removes the call from the group and then releases its waiters.
func (g *Group) finish(key string, c *call) {
	g.mu.Lock()
	if g.m[key] == c {
		delete(g.m, key)
	}
	c.shared = c.dups > 0
	g.mu.Unlock()
	close(c.done)
}

// Len returns the number of calls currently in flight.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.m)
}

// InFlight reports whether a call for key is currently running.
func (g *Group) InFlight(key string) bool {
	g.mu.Lock()
	_, ok := g.m[key]
	g.mu.Unlock()
	return ok
}
