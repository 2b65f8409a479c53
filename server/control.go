package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strings"

	"github.com/google/uuid"
	"github.com/zond/juicebridge"
	"github.com/zond/juicebridge/storage"
)

// Control socket commands. Every command gets one line in response, "OK"
// optionally followed by details, or "ERROR: " followed by the problem.
const (
	// ControlReload reloads the named source, or every changed source.
	ControlReload = "RELOAD"
	// ControlReInit restarts the runtime and loads every source again.
	ControlReInit = "REINIT"
	// ControlAugments reloads the augment definitions.
	ControlAugments = "AUGMENTS"
)

func (s *Server) serveControl(ctx context.Context, listener net.Listener) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return juicebridge.WithStack(err)
		}
		go func() {
			defer conn.Close()
			s.handleControl(storage.WithSessionID(ctx, "control-"+uuid.NewString()), conn)
		}()
	}
}

func (s *Server) handleControl(ctx context.Context, rw io.ReadWriter) {
	line, err := bufio.NewReader(rw).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		log.Printf("Reading control command: %v", err)
		return
	}
	response, err := s.control(ctx, strings.Fields(line))
	if err != nil {
		fmt.Fprintf(rw, "ERROR: %v\n", strings.ReplaceAll(err.Error(), "\n", "; "))
		return
	}
	if response == "" {
		fmt.Fprintln(rw, "OK")
	} else {
		fmt.Fprintf(rw, "OK %s\n", response)
	}
}

func (s *Server) control(ctx context.Context, words []string) (string, error) {
	if len(words) == 0 {
		return "", errors.New("empty command")
	}
	switch words[0] {
	case ControlReload:
		if len(words) == 1 {
			reloaded, err := s.ReloadChanged(ctx)
			for _, source := range reloaded {
				s.storage.Audit.Log(ctx, "RELOAD", storage.AuditReload{Source: source})
			}
			return strings.Join(reloaded, " "), err
		}
		released := 0
		for _, source := range words[1:] {
			count, err := s.Reload(ctx, source)
			s.storage.Audit.Log(ctx, "RELOAD", storage.AuditReload{Source: source, Released: count})
			if err != nil {
				return "", fmt.Errorf("reloading %q: %w", source, err)
			}
			released += count
		}
		return fmt.Sprintf("released %d", released), nil
	case ControlReInit:
		sources, err := s.ReInit(ctx)
		s.storage.Audit.Log(ctx, "REINIT", storage.AuditReInit{Sources: len(sources)})
		return fmt.Sprintf("%d sources", len(sources)), err
	case ControlAugments:
		count, err := s.ReloadAugments(ctx)
		return fmt.Sprintf("%d augments", count), err
	}
	return "", fmt.Errorf("unknown command %q", words[0])
}
