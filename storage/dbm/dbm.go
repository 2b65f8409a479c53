// Package dbm wraps tkrzw hash files.
package dbm

import (
	"fmt"
	"os"
	"sync"

	"github.com/estraier/tkrzw-go"
	"github.com/fxamacker/cbor/v2"
	"github.com/zond/juicebridge"
)

type Hash struct {
	dbm   *tkrzw.DBM
	mutex *sync.RWMutex
}

// OpenHash opens or creates path.tkh.
func OpenHash(path string) (*Hash, error) {
	dbm := tkrzw.NewDBM()
	stat := dbm.Open(fmt.Sprintf("%s.tkh", path), true, map[string]string{
		"update_mode":      "UPDATE_APPENDING",
		"record_comp_mode": "RECORD_COMP_NONE",
		"restore_mode":     "RESTORE_SYNC|RESTORE_NO_SHORTCUTS|RESTORE_WITH_HARDSYNC",
	})
	if !stat.IsOK() {
		return nil, juicebridge.WithStack(stat)
	}
	return &Hash{dbm, &sync.RWMutex{}}, nil
}

func (h *Hash) Get(k string) ([]byte, error) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	b, stat := h.dbm.Get(k)
	if stat.GetCode() == tkrzw.StatusNotFoundError {
		return nil, juicebridge.WithStack(os.ErrNotExist)
	} else if !stat.IsOK() {
		return nil, juicebridge.WithStack(stat)
	}
	return b, nil
}

func (h *Hash) Set(k string, v []byte, overwrite bool) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if stat := h.dbm.Set(k, v, overwrite); !stat.IsOK() {
		return juicebridge.WithStack(stat)
	}
	return nil
}

// Del returns os.ErrNotExist for missing keys.
func (h *Hash) Del(k string) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if stat := h.dbm.Remove(k); stat.GetCode() == tkrzw.StatusNotFoundError {
		return juicebridge.WithStack(os.ErrNotExist)
	} else if !stat.IsOK() {
		return juicebridge.WithStack(stat)
	}
	return nil
}

// Each calls f for every record until f returns an error.
func (h *Hash) Each(f func(k string, v []byte) error) error {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	iter := h.dbm.MakeIterator()
	defer iter.Destruct()
	if stat := iter.First(); !stat.IsOK() {
		return juicebridge.WithStack(stat)
	}
	for {
		k, v, stat := iter.Get()
		if stat.GetCode() == tkrzw.StatusNotFoundError {
			return nil
		} else if !stat.IsOK() {
			return juicebridge.WithStack(stat)
		}
		if err := f(string(k), v); err != nil {
			return err
		}
		if stat := iter.Next(); !stat.IsOK() {
			return juicebridge.WithStack(stat)
		}
	}
}

func (h *Hash) Count() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	count, _ := h.dbm.Count()
	return int(count)
}

func (h *Hash) Close() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if stat := h.dbm.Close(); !stat.IsOK() {
		return juicebridge.WithStack(stat)
	}
	return nil
}

// TypeHash stores CBOR encoded values of T.
type TypeHash[T any] struct {
	*Hash
}

func OpenTypeHash[T any](path string) (*TypeHash[T], error) {
	h, err := OpenHash(path)
	if err != nil {
		return nil, err
	}
	return &TypeHash[T]{h}, nil
}

func (h *TypeHash[T]) Get(k string) (*T, error) {
	b, err := h.Hash.Get(k)
	if err != nil {
		return nil, err
	}
	result := new(T)
	if err := cbor.Unmarshal(b, result); err != nil {
		return nil, juicebridge.WithStack(err)
	}
	return result, nil
}

func (h *TypeHash[T]) Set(k string, v *T, overwrite bool) error {
	b, err := cbor.Marshal(v)
	if err != nil {
		return juicebridge.WithStack(err)
	}
	return h.Hash.Set(k, b, overwrite)
}

func (h *TypeHash[T]) Each(f func(k string, v *T) error) error {
	return h.Hash.Each(func(k string, b []byte) error {
		v := new(T)
		if err := cbor.Unmarshal(b, v); err != nil {
			return juicebridge.WithStack(err)
		}
		return f(k, v)
	})
}
