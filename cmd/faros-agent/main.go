package main

import (
	"fmt"
	"log/slog"
	"os"
)

var AppVersion string

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: faros-agent <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  enroll   Enroll this device with the server via the device flow")
	fmt.Fprintln(os.Stderr, "  run      Run the agent loop: poll commands and send heartbeats")
	fmt.Fprintln(os.Stderr, "  logout   Revoke this device's credentials on the server")
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "enroll":
		err = runEnroll(os.Args[2:])
	case "run":
		err = runAgent(os.Args[2:])
	case "logout":
		err = runLogout(os.Args[2:])
	case "version":
		fmt.Println(AppVersion)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
