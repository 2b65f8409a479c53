// Package console is the SSH admin console of the script host.
package console

import (
	"context"
	"fmt"
	"io"
	"log"
	"regexp"
	"time"

	"github.com/gliderlabs/ssh"
	cache "github.com/go-pkgz/expirable-cache/v3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/zond/juicebridge"
	"github.com/zond/juicebridge/faults"
	"github.com/zond/juicebridge/js"
	"github.com/zond/juicebridge/storage"
	"github.com/zond/juicebridge/timers"
	"github.com/zond/juicebridge/world"
	"golang.org/x/term"
)

var (
	ErrOperationAborted = fmt.Errorf("operation aborted")
	ErrQuit             = fmt.Errorf("quit")
)

const (
	loginAttemptInterval = 10 * time.Second
	loginAttemptKeys     = 10000
)

var (
	whitespacePattern = regexp.MustCompile(`\s+`)
)

type SourceInfo struct {
	Name     string
	Loaded   bool
	Changed  bool
	Handlers []string
}

type TimerInfo struct {
	ID     timers.EventID
	Source string
	At     time.Time
}

type PoolInfo struct {
	Name   string
	Owners map[string]int
}

type Stats struct {
	Runtime js.Stats
	World   world.Stats
	// Tasks is the number of tasks pending on the script thread.
	Tasks int
}

// Host is what the console administers. Its methods are called from
// session goroutines.
type Host interface {
	Sources(ctx context.Context) ([]SourceInfo, error)
	Reload(ctx context.Context, source string) (int, error)
	ReloadChanged(ctx context.Context) ([]string, error)
	ReInit(ctx context.Context) ([]string, error)
	Timers(ctx context.Context) ([]TimerInfo, error)
	Pools(ctx context.Context) ([]PoolInfo, error)
	Stats(ctx context.Context) (Stats, error)
}

// Journal is the persisted fault history.
type Journal interface {
	Recent(n int) ([]storage.JournalEntry, error)
	CountByKind() ([]storage.KindCount, error)
}

// Faults is the in memory fault history.
type Faults interface {
	Recent(n int) []faults.Fault
	Counts() map[faults.Kind]uint64
}

type Options struct {
	Host        Host
	Faults      Faults
	Journal     Journal
	Audit       *storage.AuditLogger
	Switchboard *Switchboard
	// Admins maps user names to Argon2id password hashes.
	Admins map[string]string
}

type Console struct {
	opts     Options
	failures cache.Cache[string, time.Time]
}

func New(opts Options) *Console {
	if opts.Switchboard == nil {
		opts.Switchboard = NewSwitchboard(nil)
	}
	return &Console{
		opts:     opts,
		failures: cache.NewCache[string, time.Time]().WithMaxKeys(loginAttemptKeys).WithTTL(loginAttemptInterval),
	}
}

func (c *Console) audit(ctx context.Context, event string, data storage.AuditData) {
	if c.opts.Audit != nil {
		c.opts.Audit.Log(ctx, event, data)
	}
}

// waitIfNeeded blocks if a recent failed attempt exists for the username.
func (c *Console) waitIfNeeded(username string, w io.Writer) {
	if last, found := c.failures.Get(username); found {
		if wait := loginAttemptInterval - time.Since(last); wait > 0 {
			fmt.Fprintf(w, "Please wait %v before trying again.\n", wait.Round(time.Second))
			time.Sleep(wait)
		}
	}
}

func (c *Console) HandleSession(sess ssh.Session) {
	conn := &Connection{
		console: c,
		term:    term.NewTerminal(sess, "> "),
		remote:  sess.RemoteAddr().String(),
		ctx:     storage.WithSessionID(sess.Context(), uuid.NewString()),
	}
	defer c.opts.Switchboard.DetachAll(conn.term)
	if err := conn.Connect(); err != nil {
		if !errors.Is(err, io.EOF) && !errors.Is(err, ErrQuit) {
			fmt.Fprintf(conn.term, "InternalServerError: %v\n", err)
			log.Println(err)
			log.Println(juicebridge.StackTrace(err))
		}
	}
}

type Connection struct {
	console *Console
	term    *term.Terminal
	remote  string
	user    string
	ctx     context.Context
}

func (c *Connection) Connect() error {
	fmt.Fprint(c.term, "Script host console\n\n")
	for c.user == "" {
		if err := c.login(); errors.Is(err, ErrOperationAborted) {
			return juicebridge.WithStack(ErrQuit)
		} else if err != nil {
			return juicebridge.WithStack(err)
		}
	}
	return c.Process()
}

func (c *Connection) login() error {
	fmt.Fprintln(c.term, "Enter username or [abort]:")
	username, err := c.term.ReadLine()
	if err != nil {
		return juicebridge.WithStack(err)
	}
	if username == "abort" {
		return juicebridge.WithStack(ErrOperationAborted)
	}

	c.console.waitIfNeeded(username, c.term)

	fmt.Fprint(c.term, "Enter password:\n")
	password, err := c.term.ReadPassword("> ")
	if err != nil {
		return juicebridge.WithStack(err)
	}

	hash, found := c.console.opts.Admins[username]
	if !found || !verifyPassword(password, hash) {
		c.console.failures.Set(username, time.Now(), 0)
		c.console.audit(c.ctx, "LOGIN_FAILED", storage.AuditLoginFailed{
			User:   username,
			Remote: c.remote,
		})
		fmt.Fprintln(c.term, "Invalid credentials!")
		return nil
	}
	c.console.failures.Invalidate(username)
	c.user = username
	c.console.audit(c.ctx, "LOGIN", storage.AuditLogin{
		User:   username,
		Remote: c.remote,
	})
	fmt.Fprintf(c.term, "Welcome, %s! Try /help.\n\n", username)
	return nil
}

// Process runs commands until the session ends.
func (c *Connection) Process() error {
	if c.user == "" {
		return errors.New("can't process without user")
	}
	for {
		line, err := c.term.ReadLine()
		if err != nil {
			return juicebridge.WithStack(err)
		}
		if err := c.exec(line); errors.Is(err, ErrQuit) {
			return err
		} else if err != nil {
			fmt.Fprintln(c.term, err)
		}
	}
}

func (c *Connection) exec(line string) error {
	words := whitespacePattern.Split(line, -1)
	if len(words) == 0 || words[0] == "" {
		return nil
	}
	if found, err := c.commands().attempt(c, words[0], line); err != nil {
		return err
	} else if !found {
		fmt.Fprintf(c.term, "Unknown command: %q\n", words[0])
	}
	return nil
}
