// Package server wires the script runtime to the world, storage, the admin
// console and the control socket.
package server

import (
	"context"
	"errors"
	"log"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/gliderlabs/ssh"
	"github.com/zond/juicebridge"
	"github.com/zond/juicebridge/augments"
	"github.com/zond/juicebridge/bindings"
	"github.com/zond/juicebridge/calls"
	"github.com/zond/juicebridge/console"
	"github.com/zond/juicebridge/dispatcher"
	"github.com/zond/juicebridge/faults"
	"github.com/zond/juicebridge/js"
	"github.com/zond/juicebridge/pemfile"
	"github.com/zond/juicebridge/scripts"
	"github.com/zond/juicebridge/storage"
	"github.com/zond/juicebridge/timers"
	"github.com/zond/juicebridge/world"

	gossh "golang.org/x/crypto/ssh"
)

// ThinkHandler is called on every loaded source each think interval, with
// the interval in milliseconds.
const ThinkHandler = "onThink"

type Server struct {
	config      Config
	storage     *storage.Storage
	reporter    *faults.Reporter
	dispatcher  *dispatcher.Dispatcher
	world       *world.World
	augments    *augments.Registry
	library     *scripts.Library
	runtime     *js.Runtime
	switchboard *console.Switchboard
	console     *console.Console
}

// New opens the storage under config.Dir and builds an uninitialized
// runtime. Start initializes it and loads the sources.
func New(config Config) (*Server, error) {
	for _, dir := range []string{config.Dir, config.path(config.ScriptsDir), config.path(config.AugmentsDir)} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, juicebridge.WithStack(err)
		}
	}
	policy, err := timers.ParsePolicy(config.CapturePolicy)
	if err != nil {
		return nil, juicebridge.WithStack(err)
	}
	st, err := storage.Open(config.Dir)
	if err != nil {
		return nil, err
	}
	s := &Server{
		config:  config,
		storage: st,
		reporter: faults.NewReporter(faults.Options{
			LogPath:    filepath.Join(config.Dir, "faults.log"),
			MaxSizeMB:  config.FaultLogMaxSizeMB,
			MaxBackups: config.FaultLogMaxBackups,
			MaxAgeDays: config.FaultLogMaxAgeDays,
			Journal:    st.Journal,
		}),
		dispatcher:  dispatcher.New(nil),
		world:       world.New(st.Uniques, config.Seed),
		augments:    augments.NewRegistry(config.path(config.AugmentsDir)),
		library:     scripts.NewLibrary(config.path(config.ScriptsDir)),
		switchboard: console.NewSwitchboard(log.Writer()),
	}
	if count, err := s.world.LoadUniques(); err != nil {
		s.Close()
		return nil, err
	} else if count > 0 {
		log.Printf("Restored %d unique items", count)
	}
	if err := s.augments.LoadAll(); err != nil {
		log.Printf("Loading augments: %v", err)
	}
	s.runtime = js.NewRuntime(s.world, s.dispatcher, s.reporter, js.Options{
		Timeout: config.Timeout,
		Calls:   calls.Options{Depth: config.CallDepth},
		Timers: timers.Options{
			MinDelay: config.MinTimerDelay,
			Policy:   policy,
		},
		Console: s.switchboard,
	})
	if err := s.runtime.Install(bindings.New(s.world, s.augments).Install); err != nil {
		s.Close()
		return nil, err
	}
	s.console = console.New(console.Options{
		Host:        s,
		Faults:      s.reporter,
		Journal:     st.Journal,
		Audit:       st.Audit,
		Switchboard: s.switchboard,
		Admins:      config.Admins,
	})
	return s, nil
}

// Close stops the task loop and closes the runtime and the storage.
func (s *Server) Close() error {
	if err := s.dispatcher.Close(); err != nil {
		return err
	}
	if s.runtime != nil {
		s.runtime.Close()
	}
	return errors.Join(s.reporter.Close(), s.storage.Close())
}

// Init initializes the runtime and loads every source. It must run on the
// task loop.
func (s *Server) Init() error {
	if err := s.runtime.Init(); err != nil {
		return err
	}
	names, err := s.library.Names()
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, err := s.reload(name); err != nil {
			log.Printf("Loading %q: %v", name, err)
		}
	}
	return nil
}

// think runs the onThink handlers, then posts itself again.
func (s *Server) think() {
	for _, iface := range s.runtime.Interfaces() {
		if !iface.Loaded() {
			continue
		}
		if id, found := iface.Handler(ThinkHandler); found {
			// Faults are reported by Call.
			iface.Call(id, s.config.ThinkInterval.Milliseconds())
		}
	}
	s.dispatcher.PostDelayed(s.config.ThinkInterval, s.think)
}

// Start runs the task loop, the control socket and the SSH console until
// ctx is cancelled or one of them fails.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, 3)
	go func() {
		errs <- s.dispatcher.Start(ctx)
	}()

	if err := s.do(ctx, s.Init); err != nil {
		return err
	}
	log.Printf("Loaded %d sources from %q", len(s.library.Loaded()), s.library.Dir())
	if s.config.ThinkInterval > 0 {
		s.dispatcher.PostDelayed(s.config.ThinkInterval, s.think)
	}

	socketPath := s.config.path(s.config.ControlSocket)
	os.Remove(socketPath)
	control, err := net.Listen("unix", socketPath)
	if err != nil {
		return juicebridge.WithStack(err)
	}
	defer os.Remove(socketPath)
	go func() {
		errs <- s.serveControl(ctx, control)
	}()

	pemBytes, signer, err := pemfile.KeyParams{
		KeyPath:       filepath.Join(s.config.Dir, "private.pem"),
		SSHPubKeyPath: filepath.Join(s.config.Dir, "public.pem"),
	}.Load()
	if err != nil {
		return err
	}
	sshServer := &ssh.Server{
		Addr:    s.config.SSHAddr,
		Handler: s.console.HandleSession,
	}
	if err := sshServer.SetOption(ssh.HostKeyPEM(pemBytes)); err != nil {
		return juicebridge.WithStack(err)
	}
	go func() {
		log.Printf("Console listening on %q with public key %q", s.config.SSHAddr, gossh.FingerprintSHA256(signer.PublicKey()))
		errs <- juicebridge.WithStack(sshServer.ListenAndServe())
	}()

	var result error
	select {
	case <-ctx.Done():
		result = ctx.Err()
	case result = <-errs:
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	sshServer.Shutdown(shutdownCtx)
	control.Close()
	return result
}
