package console

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/buildkite/shellwords"
	"github.com/rodaine/table"
	"github.com/zond/juicebridge"
	"github.com/zond/juicebridge/faults"
	"github.com/zond/juicebridge/lang"
	"github.com/zond/juicebridge/storage"
)

type command struct {
	names map[string]bool
	usage string
	help  string
	f     func(c *Connection, parts []string) error
}

type commands []command

func (cmds commands) attempt(conn *Connection, name string, line string) (bool, error) {
	for _, cmd := range cmds {
		if cmd.names[name] {
			parts, err := shellwords.SplitPosix(line)
			if err != nil {
				return true, juicebridge.WithStack(err)
			}
			if err := cmd.f(conn, parts); err != nil {
				return true, juicebridge.WithStack(err)
			}
			return true, nil
		}
	}
	return false, nil
}

func m(s ...string) map[string]bool {
	res := map[string]bool{}
	for _, p := range s {
		res[p] = true
	}
	return res
}

// parseIntArg parses parts[index], returning defaultVal if not present or
// invalid.
func parseIntArg(parts []string, index int, defaultVal int) int {
	if len(parts) > index {
		if parsed, err := strconv.Atoi(parts[index]); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultVal
}

func (c *Connection) commands() commands {
	var cmds commands
	cmds = commands{
		{
			names: m("/help", "/?"),
			help:  "List commands",
			f: func(c *Connection, _ []string) error {
				t := table.New("Command", "Description").WithWriter(c.term)
				for _, cmd := range cmds {
					names := make([]string, 0, len(cmd.names))
					for name := range cmd.names {
						names = append(names, name)
					}
					sort.Strings(names)
					t.AddRow(strings.TrimSpace(strings.Join(names, ", ")+" "+cmd.usage), cmd.help)
				}
				t.Print()
				return nil
			},
		},
		{
			names: m("/sources"),
			help:  "List script sources",
			f: func(c *Connection, _ []string) error {
				sources, err := c.console.opts.Host.Sources(c.ctx)
				if err != nil {
					return err
				}
				t := table.New("Source", "Loaded", "Changed", "Handlers").WithWriter(c.term)
				for _, src := range sources {
					t.AddRow(src.Name, src.Loaded, src.Changed, strings.Join(src.Handlers, " "))
				}
				t.Print()
				fmt.Fprintf(c.term, "%s\n", lang.Capitalize(lang.Card(len(sources), "source")))
				return nil
			},
		},
		{
			names: m("/reload"),
			usage: "[source...]",
			help:  "Reload the named sources, or every changed source",
			f: func(c *Connection, parts []string) error {
				host := c.console.opts.Host
				if len(parts) == 1 {
					reloaded, err := host.ReloadChanged(c.ctx)
					for _, source := range reloaded {
						c.console.audit(c.ctx, "RELOAD", storage.AuditReload{Source: source})
					}
					if len(reloaded) > 0 {
						fmt.Fprintf(c.term, "Reloaded %s\n", lang.Enumerator{Pattern: "%q"}.Do(reloaded...))
					} else {
						fmt.Fprintln(c.term, "No changed sources.")
					}
					return err
				}
				for _, source := range parts[1:] {
					released, err := host.Reload(c.ctx, source)
					c.console.audit(c.ctx, "RELOAD", storage.AuditReload{Source: source, Released: released})
					if err != nil {
						fmt.Fprintf(c.term, "Reloading %q: %v\n", source, err)
						continue
					}
					fmt.Fprintf(c.term, "Reloaded %q, released %s\n", source, lang.Card(released, "resource"))
				}
				return nil
			},
		},
		{
			names: m("/reinit"),
			help:  "Restart the script runtime and load every source again",
			f: func(c *Connection, _ []string) error {
				sources, err := c.console.opts.Host.ReInit(c.ctx)
				c.console.audit(c.ctx, "REINIT", storage.AuditReInit{Sources: len(sources)})
				fmt.Fprintf(c.term, "Reinitialized with %s\n", lang.Card(len(sources), "source"))
				return err
			},
		},
		{
			names: m("/timers"),
			help:  "List pending deferred callbacks",
			f: func(c *Connection, _ []string) error {
				pending, err := c.console.opts.Host.Timers(c.ctx)
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					fmt.Fprintln(c.term, "No pending timers.")
					return nil
				}
				t := table.New("ID", "Source", "Due").WithWriter(c.term)
				for _, timer := range pending {
					t.AddRow(timer.ID, timer.Source, time.Until(timer.At).Round(time.Millisecond))
				}
				t.Print()
				return nil
			},
		},
		{
			names: m("/pools"),
			help:  "List load time helper objects per source",
			f: func(c *Connection, _ []string) error {
				pools, err := c.console.opts.Host.Pools(c.ctx)
				if err != nil {
					return err
				}
				t := table.New("Pool", "Source", "Count").WithWriter(c.term)
				for _, pool := range pools {
					owners := make([]string, 0, len(pool.Owners))
					for owner := range pool.Owners {
						owners = append(owners, owner)
					}
					sort.Strings(owners)
					for _, owner := range owners {
						t.AddRow(pool.Name, owner, pool.Owners[owner])
					}
				}
				t.Print()
				return nil
			},
		},
		{
			names: m("/faults"),
			usage: "[n]",
			help:  "Show the latest faults",
			f: func(c *Connection, parts []string) error {
				recent := c.console.opts.Faults.Recent(parseIntArg(parts, 1, 10))
				if len(recent) == 0 {
					fmt.Fprintln(c.term, "No recent faults.")
					return nil
				}
				for _, f := range recent {
					fmt.Fprintf(c.term, "[%s] %s", f.At.Format("15:04:05"), f)
					if f.Repeats > 0 {
						fmt.Fprintf(c.term, " (repeated %d times)", f.Repeats)
					}
					fmt.Fprintln(c.term)
				}
				return nil
			},
		},
		{
			names: m("/journal"),
			usage: "[kinds|n]",
			help:  "Show persisted faults, or their counts per kind",
			f: func(c *Connection, parts []string) error {
				journal := c.console.opts.Journal
				if journal == nil {
					fmt.Fprintln(c.term, "No fault journal.")
					return nil
				}
				if len(parts) > 1 && parts[1] == "kinds" {
					counts, err := journal.CountByKind()
					if err != nil {
						return err
					}
					t := table.New("Kind", "Count").WithWriter(c.term)
					for _, count := range counts {
						t.AddRow(count.Kind, count.Count)
					}
					t.Print()
					return nil
				}
				entries, err := journal.Recent(parseIntArg(parts, 1, 10))
				if err != nil {
					return err
				}
				t := table.New("At", "Kind", "Source", "Location", "Message").WithWriter(c.term)
				for _, e := range entries {
					t.AddRow(e.At.Format(time.RFC3339), e.Kind, e.Source, e.Location, e.Message)
				}
				t.Print()
				return nil
			},
		},
		{
			names: m("/stats"),
			help:  "Show runtime statistics",
			f: func(c *Connection, _ []string) error {
				stats, err := c.console.opts.Host.Stats(c.ctx)
				if err != nil {
					return err
				}
				t := table.New("Stat", "Value").WithWriter(c.term)
				t.AddRow("Sources", fmt.Sprintf("%d/%d loaded", stats.Runtime.Loaded, stats.Runtime.Interfaces))
				t.AddRow("Callbacks", stats.Runtime.Callbacks)
				t.AddRow("Timers", stats.Runtime.Timers)
				t.AddRow("Wrappers", stats.Runtime.Wrappers)
				t.AddRow("Call depth", stats.Runtime.Depth)
				t.AddRow("Tasks", stats.Tasks)
				t.AddRow("Creatures", stats.World.Creatures)
				t.AddRow("Players", stats.World.Players)
				t.AddRow("Unique items", stats.World.Uniques)
				counts := c.console.opts.Faults.Counts()
				kinds := make([]string, 0, len(counts))
				for kind := range counts {
					kinds = append(kinds, string(kind))
				}
				sort.Strings(kinds)
				for _, kind := range kinds {
					t.AddRow("Faults: "+kind, counts[faults.Kind(kind)])
				}
				t.Print()
				return nil
			},
		},
		{
			names: m("/debug"),
			usage: "[source]",
			help:  "Attach to the log output of a source, or of every source",
			f: func(c *Connection, parts []string) error {
				source := AllSources
				if len(parts) > 1 {
					source = parts[1]
				}
				sb := c.console.opts.Switchboard
				for _, line := range sb.Buffered(source) {
					c.term.Write(line)
				}
				sb.Attach(source, c.term)
				fmt.Fprintf(c.term, "Attached to %s\n", source)
				return nil
			},
		},
		{
			names: m("/undebug"),
			help:  "Detach from all log output",
			f: func(c *Connection, _ []string) error {
				c.console.opts.Switchboard.DetachAll(c.term)
				fmt.Fprintln(c.term, "Detached")
				return nil
			},
		},
		{
			names: m("/quit", "/exit"),
			help:  "End the session",
			f: func(c *Connection, _ []string) error {
				return ErrQuit
			},
		},
	}
	return cmds
}
