package server

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/zond/juicebridge/console"
	"github.com/zond/juicebridge/pools"
)

// reload loads the current code of source, releasing whatever its previous
// code created. It must run on the task loop.
func (s *Server) reload(source string) (int, error) {
	src, err := s.library.Load(source)
	if err != nil {
		return 0, err
	}
	iface := s.runtime.Interface(src.Name)
	if iface.Loaded() {
		return iface.Reload(src.Code)
	}
	released := s.runtime.OnReloadSource(src.Name)
	return released, iface.Load(src.Code)
}

func (s *Server) reloadChanged() ([]string, error) {
	var errs []error
	reloaded := []string{}
	for _, name := range s.library.Changed() {
		if _, err := s.reload(name); err != nil {
			errs = append(errs, err)
			if _, statErr := os.Stat(filepath.Join(s.library.Dir(), filepath.FromSlash(name))); errors.Is(statErr, os.ErrNotExist) {
				// Removed sources stop handling events.
				s.library.Forget(name)
				s.runtime.OnReloadSource(name)
			}
		}
		reloaded = append(reloaded, name)
	}
	return reloaded, errors.Join(errs...)
}

func (s *Server) reInit() ([]string, error) {
	err := s.runtime.ReInit()
	return s.library.Loaded(), err
}

type outcome[T any] struct {
	value T
	err   error
}

// onLoop runs f on the task loop and waits for it. The result only leaves
// the loop through the channel, so a caller giving up on ctx never shares
// memory with a task still running.
func onLoop[T any](ctx context.Context, s *Server, f func() (T, error)) (T, error) {
	results := make(chan outcome[T], 1)
	if err := s.dispatcher.Do(ctx, func() {
		value, err := f()
		results <- outcome[T]{value: value, err: err}
	}); err != nil {
		var zero T
		return zero, err
	}
	res := <-results
	return res.value, res.err
}

func (s *Server) do(ctx context.Context, f func() error) error {
	_, err := onLoop(ctx, s, func() (struct{}, error) {
		return struct{}{}, f()
	})
	return err
}

func (s *Server) Sources(ctx context.Context) ([]console.SourceInfo, error) {
	names, err := s.library.Names()
	if err != nil {
		return nil, err
	}
	changed := map[string]bool{}
	for _, name := range s.library.Changed() {
		changed[name] = true
	}
	return onLoop(ctx, s, func() ([]console.SourceInfo, error) {
		result := make([]console.SourceInfo, len(names))
		for i, name := range names {
			result[i] = console.SourceInfo{Name: name, Changed: changed[name]}
			if iface, found := s.runtime.Lookup(name); found {
				result[i].Loaded = iface.Loaded()
				result[i].Handlers = iface.Handlers()
			}
		}
		return result, nil
	})
}

func (s *Server) Reload(ctx context.Context, source string) (int, error) {
	return onLoop(ctx, s, func() (int, error) {
		return s.reload(source)
	})
}

func (s *Server) ReloadChanged(ctx context.Context) ([]string, error) {
	return onLoop(ctx, s, s.reloadChanged)
}

func (s *Server) ReInit(ctx context.Context) ([]string, error) {
	return onLoop(ctx, s, s.reInit)
}

// ReloadAugments reads the augment definitions again. Augments held by
// creatures keep their modifiers, observers of the old definitions see them
// removed.
func (s *Server) ReloadAugments(ctx context.Context) (int, error) {
	return onLoop(ctx, s, func() (int, error) {
		err := s.augments.Reload()
		return len(s.augments.Names()), err
	})
}

func (s *Server) Timers(ctx context.Context) ([]console.TimerInfo, error) {
	return onLoop(ctx, s, func() ([]console.TimerInfo, error) {
		var result []console.TimerInfo
		if !s.runtime.Initialized() {
			return result, nil
		}
		for _, ev := range s.runtime.Timers().Pending() {
			result = append(result, console.TimerInfo{ID: ev.ID, Source: ev.Source, At: ev.At})
		}
		return result, nil
	})
}

func (s *Server) Pools(ctx context.Context) ([]console.PoolInfo, error) {
	result, err := onLoop(ctx, s, func() ([]console.PoolInfo, error) {
		var result []console.PoolInfo
		if !s.runtime.Initialized() {
			return result, nil
		}
		s.runtime.Pools().Each(func(p pools.Releaser) {
			result = append(result, console.PoolInfo{Name: p.Name(), Owners: p.Owners()})
		})
		return result, nil
	})
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result, err
}

func (s *Server) Stats(ctx context.Context) (console.Stats, error) {
	return onLoop(ctx, s, func() (console.Stats, error) {
		return console.Stats{
			Tasks:   s.dispatcher.Pending(),
			Runtime: s.runtime.Stats(),
			World:   s.world.Stats(),
		}, nil
	})
}
