package storage

import (
	"errors"
	"fmt"
	"os"

	"github.com/zond/juicebridge"
	"github.com/zond/juicebridge/storage/dbm"
	"github.com/zond/juicebridge/world"
)

// Uniques persists unique items keyed by their durable id.
type Uniques struct {
	hash *dbm.TypeHash[world.UniqueRecord]
}

func OpenUniques(path string) (*Uniques, error) {
	h, err := dbm.OpenTypeHash[world.UniqueRecord](path)
	if err != nil {
		return nil, err
	}
	return &Uniques{hash: h}, nil
}

func uniqueKey(id uint16) string {
	return fmt.Sprintf("%04x", id)
}

func (u *Uniques) Put(rec world.UniqueRecord) error {
	return u.hash.Set(uniqueKey(rec.ID), &rec, true)
}

// Delete ignores missing records.
func (u *Uniques) Delete(id uint16) error {
	if err := u.hash.Del(uniqueKey(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return juicebridge.WithStack(err)
	}
	return nil
}

func (u *Uniques) Get(id uint16) (*world.UniqueRecord, error) {
	return u.hash.Get(uniqueKey(id))
}

func (u *Uniques) All() ([]world.UniqueRecord, error) {
	result := []world.UniqueRecord{}
	if err := u.hash.Each(func(_ string, rec *world.UniqueRecord) error {
		result = append(result, *rec)
		return nil
	}); err != nil {
		return nil, err
	}
	return result, nil
}

func (u *Uniques) Close() error {
	return u.hash.Close()
}
