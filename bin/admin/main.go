// juicebridge-admin is the administration tool for juicebridge servers.
// It communicates with a running server via Unix domain socket.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
)

func main() {
	// Default socket path
	homeDir, _ := os.UserHomeDir()
	defaultSocket := filepath.Join(homeDir, ".juicebridge", "control.sock")

	socketPath := flag.String("socket", defaultSocket, "Path to control socket")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <command> [args...]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  reload [source...]  Reload the named sources\n")
		fmt.Fprintf(os.Stderr, "                      Default: every source changed since it was loaded\n")
		fmt.Fprintf(os.Stderr, "  reinit              Restart the script runtime and load every source again\n")
		fmt.Fprintf(os.Stderr, "  augments            Reload the augment definitions\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(1)
	}

	var cmd string
	switch args[0] {
	case "reload":
		cmd = strings.Join(append([]string{"RELOAD"}, args[1:]...), " ")
	case "reinit":
		cmd = "REINIT"
	case "augments":
		cmd = "AUGMENTS"
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
		flag.Usage()
		os.Exit(1)
	}

	result, err := send(*socketPath, cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if result != "" {
		fmt.Println(result)
	} else {
		fmt.Println("Done")
	}
}

func send(socketPath, cmd string) (string, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return "", fmt.Errorf("failed to connect to control socket %s: %w", socketPath, err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "%s\n", cmd); err != nil {
		return "", fmt.Errorf("failed to send command: %w", err)
	}

	response, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	response = strings.TrimSpace(response)
	switch {
	case response == "OK":
		return "", nil
	case strings.HasPrefix(response, "OK "):
		return strings.TrimPrefix(response, "OK "), nil
	case strings.HasPrefix(response, "ERROR:"):
		return "", fmt.Errorf("%s", strings.TrimSpace(strings.TrimPrefix(response, "ERROR:")))
	}
	return "", fmt.Errorf("unexpected response: %s", response)
}
