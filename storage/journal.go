package storage

import (
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/zond/juicebridge"
	"github.com/zond/juicebridge/faults"

	_ "modernc.org/sqlite"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS Fault (
	ID TEXT PRIMARY KEY,
	At DATETIME NOT NULL,
	Kind TEXT NOT NULL,
	Source TEXT NOT NULL,
	Callback TEXT NOT NULL,
	Message TEXT NOT NULL,
	Location TEXT NOT NULL,
	Stack TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS FaultAt ON Fault (At);
CREATE INDEX IF NOT EXISTS FaultKind ON Fault (Kind);
`

// JournalEntry is a persisted fault.
type JournalEntry struct {
	ID       string
	At       time.Time
	Kind     string
	Source   string
	Callback string
	Message  string
	Location string
	Stack    string
}

// Journal keeps every reported fault in SQLite, so they survive restarts.
type Journal struct {
	db *sqlx.DB
}

func OpenJournal(path string) (*Journal, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, juicebridge.WithStack(err)
	}
	// Columns are named like the struct fields.
	db.MapperFunc(func(s string) string { return s })
	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, juicebridge.WithStack(err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Record(f faults.Fault) error {
	_, err := j.db.NamedExec(`INSERT INTO Fault (ID, At, Kind, Source, Callback, Message, Location, Stack)
VALUES (:ID, :At, :Kind, :Source, :Callback, :Message, :Location, :Stack)`, JournalEntry{
		ID:       f.ID,
		At:       f.At.UTC(),
		Kind:     string(f.Kind),
		Source:   f.Source,
		Callback: f.Callback,
		Message:  f.Message,
		Location: f.Location.String(),
		Stack:    f.Stack,
	})
	return juicebridge.WithStack(err)
}

// Recent returns up to n entries, newest first.
func (j *Journal) Recent(n int) ([]JournalEntry, error) {
	result := []JournalEntry{}
	if err := j.db.Select(&result, "SELECT * FROM Fault ORDER BY At DESC LIMIT ?", n); err != nil {
		return nil, juicebridge.WithStack(err)
	}
	return result, nil
}

type KindCount struct {
	Kind  string
	Count int
}

func (j *Journal) CountByKind() ([]KindCount, error) {
	result := []KindCount{}
	if err := j.db.Select(&result, "SELECT Kind, COUNT(*) AS Count FROM Fault GROUP BY Kind ORDER BY Kind"); err != nil {
		return nil, juicebridge.WithStack(err)
	}
	return result, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}
