// Copyright (C) 2022 - Tillitis AB
// SPDX-License-Identifier: GPL-2.0-only

package main

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
)

const progname = "blakesig"

var version string

type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	// Use when printing err/diag msgs
	le   *log.Logger
	rand io.Reader
}

type command struct {
	summary string
	run     func(c *cli, fs *pflag.FlagSet, args []string) error
}

var commands = map[string]command{
	"seed-new":       {"Create a new random seed and store it encrypted.", (*cli).seedNew},
	"seed-import":    {"Store an existing seed, given as a mnemonic or in hex.", (*cli).seedImport},
	"seed-mnemonic":  {"Print the stored seed as a 24-word mnemonic.", (*cli).seedMnemonic},
	"pubkey":         {"Print the public key of an account.", (*cli).pubkey},
	"sign":           {"Sign a message with the key of an account.", (*cli).sign},
	"verify":         {"Verify a signature over a message.", (*cli).verify},
	"authorized-key": {"Print accounts as SSH authorized_keys lines.", (*cli).authorizedKey},
	"version":        {"Output version information.", (*cli).printVersion},
}

// usageError makes run print the usage and exit with 2.
type usageError struct {
	msg string
}

func (e usageError) Error() string {
	return e.msg
}

func usagef(format string, a ...any) error {
	return usageError{msg: fmt.Sprintf(format, a...)}
}

// errQuiet fails with exit code 1 without further output.
var errQuiet = errors.New("")

func main() {
	if version == "" {
		version = readBuildInfo()
	}

	handleSignals(func() { os.Exit(1) }, os.Interrupt, syscall.SIGTERM)

	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	c := &cli{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		le:     log.New(stderr, "", 0),
		rand:   rand.Reader,
	}
	return c.run(args)
}

func (c *cli) run(args []string) int {
	if len(args) == 0 {
		c.usage()
		return 2
	}
	name := args[0]
	if name == "help" || name == "--help" || name == "-h" {
		c.usage()
		return 0
	}

	cmd, ok := commands[name]
	if !ok {
		c.le.Printf("Unknown command: %s\n\n", name)
		c.usage()
		return 2
	}

	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.SortFlags = false
	fs.Usage = func() {
		c.le.Printf("Usage: %s %s [flags...]\n\n%s\n\n%s", progname, name, cmd.summary,
			fs.FlagUsagesWrapped(80))
	}

	err := cmd.run(c, fs, args[1:])
	var uerr usageError
	switch {
	case err == nil:
		return 0
	case errors.Is(err, pflag.ErrHelp):
		return 0
	case errors.As(err, &uerr):
		c.le.Printf("%s\n\n", uerr.msg)
		fs.Usage()
		return 2
	case errors.Is(err, errQuiet):
		return 1
	default:
		c.le.Printf("%s\n", err)
		return 1
	}
}

// parse parses args into fs. Positional arguments are not used by any
// command.
func parse(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return err
		}
		return usageError{msg: err.Error()}
	}
	if fs.NArg() > 0 {
		return usagef("Unexpected argument: %s", strings.Join(fs.Args(), " "))
	}
	return nil
}

func (c *cli) usage() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		fmt.Fprintf(&sb, "  %-16s %s\n", name, commands[name].summary)
	}

	c.le.Printf(`Usage: %[1]s COMMAND [flags...]

%[1]s derives Ed25519 keys hashed with BLAKE2b-512 from a 32-byte seed and
an account index, and signs and verifies with them. The seed is stored
encrypted with a passphrase.

Commands:
%[2]s
Run '%[1]s COMMAND --help' for the flags of a command.
`, progname, sb.String())
}

func (c *cli) printVersion(fs *pflag.FlagSet, args []string) error {
	if err := parse(fs, args); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "%s %s\n", progname, version)
	return nil
}

func defaultSeedFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, progname, "seed.json")
}

func readBuildInfo() string {
	version := "devel without BuildInfo"
	if info, ok := debug.ReadBuildInfo(); ok {
		sb := strings.Builder{}
		sb.WriteString("devel")
		for _, setting := range info.Settings {
			if strings.HasPrefix(setting.Key, "vcs") {
				sb.WriteString(fmt.Sprintf(" %s=%s", setting.Key, setting.Value))
			}
		}
		version = sb.String()
	}
	return version
}

func handleSignals(action func(), sig ...os.Signal) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sig...)
	go func() {
		for {
			<-ch
			action()
		}
	}()
}
