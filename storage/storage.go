// Package storage persists what the bridge must keep across restarts: unique
// items, the fault journal and the console audit log.
package storage

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/zond/juicebridge"
)

type Storage struct {
	Uniques *Uniques
	Journal *Journal
	Audit   *AuditLogger
}

// Open opens or creates every store under dir.
func Open(dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, juicebridge.WithStack(err)
	}
	o := &opener{Dir: dir}
	s := &Storage{
		Uniques: o.OpenUniques("uniques"),
		Journal: o.OpenJournal("faults"),
	}
	if o.Err != nil {
		o.abort()
		return nil, o.Err
	}
	s.Audit = NewAuditLogger(filepath.Join(dir, "audit.log"))
	return s, nil
}

func (s *Storage) Close() error {
	return errors.Join(s.Uniques.Close(), s.Journal.Close(), s.Audit.Close())
}
