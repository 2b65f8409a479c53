// Package calls keeps the bounded stack of script call contexts.
package calls

import (
	"time"

	"github.com/zond/juicebridge/marshal"
	"github.com/zond/juicebridge/uid"

	cache "github.com/go-pkgz/expirable-cache/v3"
)

type CallbackID uint32

const (
	NoCallback CallbackID = 0
)

const (
	DefaultDepth       = 16
	DefaultResultLimit = 1024
	DefaultResultTTL   = time.Minute
)

// Owner is the script interface a context runs on behalf of.
type Owner interface {
	Name() string
}

type Context struct {
	Source  string
	Owner   Owner
	Timer   bool
	Scratch *uid.Scratch
	Scope   *marshal.Scope

	index      int
	guard      *Guard
	callback   CallbackID
	invalid    bool
	results    cache.Cache[uint32, any]
	nextResult uint32
}

func (c *Context) Index() int {
	return c.index
}

func (c *Context) CallbackID() CallbackID {
	return c.callback
}

// SetCallbackID fails if the context already has a callback id, keeping the
// first one.
func (c *Context) SetCallbackID(id CallbackID) bool {
	if c.callback != NoCallback {
		return false
	}
	c.callback = id
	return true
}

// Invalid is true once the source of the context was reloaded.
func (c *Context) Invalid() bool {
	return c.invalid
}

func (c *Context) AddResult(v any) uint32 {
	c.nextResult++
	c.results.Set(c.nextResult, v, 0)
	return c.nextResult
}

func (c *Context) Result(id uint32) (any, bool) {
	return c.results.Get(id)
}

func (c *Context) RemoveResult(id uint32) bool {
	if _, found := c.results.Peek(id); !found {
		return false
	}
	c.results.Invalidate(id)
	return true
}

func (c *Context) Results() int {
	return c.results.Len()
}

func (c *Context) reset() {
	c.Scope.Reset()
	c.Scratch.Reset()
	c.results.Purge()
	c.nextResult = 0
	c.callback = NoCallback
	c.Timer = false
	c.invalid = false
	c.Source = ""
	c.Owner = nil
	c.guard = nil
}

// Guard is returned by Reserve. Release resets the context and can be called
// any number of times.
type Guard struct {
	stack    *Stack
	ctx      *Context
	released bool
}

func (g *Guard) Context() *Context {
	return g.ctx
}

func (g *Guard) Release() {
	if g.released {
		return
	}
	g.released = true
	g.ctx.reset()
	g.stack.inUse[g.ctx.index] = false
	for g.stack.depth > 0 && !g.stack.inUse[g.stack.depth-1] {
		g.stack.depth--
	}
}

type Stack struct {
	contexts []*Context
	inUse    []bool
	depth    int
}

type Options struct {
	Depth       int
	ResultLimit int
	ResultTTL   time.Duration
}

func New(opts Options) *Stack {
	if opts.Depth <= 0 {
		opts.Depth = DefaultDepth
	}
	if opts.ResultLimit <= 0 {
		opts.ResultLimit = DefaultResultLimit
	}
	if opts.ResultTTL <= 0 {
		opts.ResultTTL = DefaultResultTTL
	}
	s := &Stack{
		contexts: make([]*Context, opts.Depth),
		inUse:    make([]bool, opts.Depth),
	}
	for i := range s.contexts {
		s.contexts[i] = &Context{
			index:   i,
			Scratch: uid.NewScratch(),
			Scope:   &marshal.Scope{},
			results: cache.NewCache[uint32, any]().WithMaxKeys(opts.ResultLimit).WithTTL(opts.ResultTTL),
		}
	}
	return s
}

func (s *Stack) Capacity() int {
	return len(s.contexts)
}

func (s *Stack) Depth() int {
	return s.depth
}

// Reserve returns false when every context is in use.
func (s *Stack) Reserve(source string, owner Owner) (*Guard, bool) {
	if s.depth >= len(s.contexts) {
		return nil, false
	}
	ctx := s.contexts[s.depth]
	ctx.Source = source
	ctx.Owner = owner
	ctx.guard = &Guard{stack: s, ctx: ctx}
	s.inUse[s.depth] = true
	s.depth++
	return ctx.guard, true
}

// Current returns the innermost context in use.
func (s *Stack) Current() (*Context, bool) {
	if s.depth == 0 {
		return nil, false
	}
	return s.contexts[s.depth-1], true
}

// Unwind releases every context above depth and returns how many it released.
func (s *Stack) Unwind(depth int) int {
	count := 0
	for i := len(s.contexts) - 1; i >= depth && i >= 0; i-- {
		if s.inUse[i] {
			s.contexts[i].guard.Release()
			count++
		}
	}
	return count
}

// Invalidate marks every context running code from source as invalid.
func (s *Stack) Invalidate(source string) int {
	count := 0
	for i := 0; i < s.depth; i++ {
		if s.inUse[i] && s.contexts[i].Source == source {
			s.contexts[i].invalid = true
			count++
		}
	}
	return count
}
