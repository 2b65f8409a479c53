package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/zond/juicebridge/console"
	"github.com/zond/juicebridge/server"
	"golang.org/x/term"
)

func main() {
	config := server.DefaultConfig()

	flag.StringVar(&config.Dir, "dir", filepath.Join(os.Getenv("HOME"), ".juicebridge"), "Where to save databases, logs and settings.")
	configFile := flag.String("config", "", "TOML file overriding the defaults. Defaults to juicebridge.toml in -dir.")
	sshAddr := flag.String("ssh", "", "Where to listen to SSH console connections.")
	scriptsDir := flag.String("scripts", "", "Where to read script sources from.")
	hashPassword := flag.Bool("hash-password", false, "Read a password from the terminal, print its hash for the admins table, and exit.")

	flag.Parse()

	if *hashPassword {
		fmt.Fprint(os.Stderr, "Password: ")
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			log.Fatal(err)
		}
		hash, err := console.HashPassword(string(password))
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(hash)
		return
	}

	if *configFile == "" {
		*configFile = filepath.Join(config.Dir, server.ConfigFile)
	}
	if err := config.Overlay(*configFile); err != nil {
		log.Fatal(err)
	}
	if *sshAddr != "" {
		config.SSHAddr = *sshAddr
	}
	if *scriptsDir != "" {
		config.ScriptsDir = *scriptsDir
	}
	if len(config.Admins) == 0 {
		log.Printf("No admins in %q, the console accepts no logins. Use -hash-password to create one.", *configFile)
	}

	srv, err := server.New(config)
	if err != nil {
		log.Fatal(err)
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil && ctx.Err() == nil {
		log.Print(err)
	}
}
