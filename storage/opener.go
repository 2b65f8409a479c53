package storage

import (
	"path/filepath"
)

// opener opens stores in dir until the first failure, after which every
// call is a no-op and Err holds the failure.
type opener struct {
	Dir    string
	Err    error
	closer []func() error
}

func (o *opener) path(name string) string {
	return filepath.Join(o.Dir, name)
}

func (o *opener) OpenUniques(name string) *Uniques {
	if o.Err != nil {
		return nil
	}
	u, err := OpenUniques(o.path(name))
	if err != nil {
		o.Err = err
		return nil
	}
	o.closer = append(o.closer, u.Close)
	return u
}

func (o *opener) OpenJournal(name string) *Journal {
	if o.Err != nil {
		return nil
	}
	j, err := OpenJournal(o.path(name + ".sqlite"))
	if err != nil {
		o.Err = err
		return nil
	}
	o.closer = append(o.closer, j.Close)
	return j
}

// abort closes whatever was opened before the failure.
func (o *opener) abort() {
	for _, c := range o.closer {
		c()
	}
}
