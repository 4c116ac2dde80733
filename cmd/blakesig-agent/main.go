// SPDX-FileCopyrightText: 2022 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

package main

import (
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/tillitis/blakesig/b2ssh"
	"github.com/tillitis/blakesig/internal/config"
	"github.com/tillitis/blakesig/internal/util"
	"golang.org/x/time/rate"
)

// Use when printing err/diag msgs
var le = log.New(os.Stderr, "", 0)

const (
	progname         = "blakesig-agent"
	keyCommentPrefix = "blakesig"
)

var version string

const windowsPipePrefix = `\\.\pipe\`

type options struct {
	configPath     string
	agentPath      string
	seedFile       string
	indices        []uint
	idleLock       time.Duration
	signRate       float64
	signBurst      int
	metricsAddr    string
	passphraseFile string
	pinentryPath   string
	quiet          bool
	showPubkeyOnly bool
	versionOnly    bool
	helpOnly       bool
}

func main() {
	exit := func(code int) {
		os.Exit(code)
	}

	if version == "" {
		version = readBuildInfo()
	}

	var opts options
	pflag.CommandLine.SetOutput(os.Stderr)
	pflag.CommandLine.SortFlags = false
	pflag.StringVarP(&opts.agentPath, "agent-path", "a", "",
		fmt.Sprintf("Start the agent, setting the `PATH` to the UNIX-domain socket that it should listen on. On Windows, a Named Pipe at '%s\\PATH' will be used.", windowsPipePrefix))
	pflag.BoolVarP(&opts.showPubkeyOnly, "show-pubkey", "p", false,
		"Don't start the agent, only output the public keys in authorized_keys format.")
	pflag.StringVarP(&opts.configPath, "config", "c", "",
		"Read settings from the YAML `FILE`. Flags override the file.")
	pflag.StringVarP(&opts.seedFile, "seed-file", "s", "",
		"Read the encrypted seed from `FILE`, as written by 'blakesig seed-new'.")
	pflag.UintSliceVarP(&opts.indices, "index", "i", nil,
		"Derive the account with `INDEX`. Repeat or separate with commas for several keys. Default is 0.")
	pflag.DurationVar(&opts.idleLock, "idle-lock", 0,
		"Wipe the keys after `DURATION` without use, asking for the passphrase again on the next signature. 0 keeps them until exit. Default is 15m.")
	pflag.Float64Var(&opts.signRate, "sign-rate", 0,
		"Allow at most `N` signatures per second on average. 0 means no limit.")
	pflag.IntVar(&opts.signBurst, "sign-burst", 1,
		"Allow bursts of `N` signatures when --sign-rate is set.")
	pflag.StringVar(&opts.metricsAddr, "metrics-addr", "",
		"Serve Prometheus metrics on `ADDR`, e.g. 127.0.0.1:9477.")
	pflag.StringVar(&opts.passphraseFile, "passphrase-file", "",
		"Read the seed passphrase from `FILE` instead of asking with pinentry. Use '-' (dash) to read from stdin.")
	pflag.StringVar(&opts.pinentryPath, "pinentry", "",
		"Pinentry `PROGRAM` used to ask for the passphrase. The default is found by looking in your gpg-agent.conf for pinentry-program, or 'pinentry' if not found there. On Windows, an attempt is made to find Gpg4win's pinentry program to use as default.")
	pflag.BoolVarP(&opts.quiet, "quiet", "q", false,
		"Print notifications on stderr instead of showing them on the desktop.")
	pflag.BoolVar(&opts.versionOnly, "version", false, "Output version information.")
	pflag.BoolVar(&opts.helpOnly, "help", false, "Output this help.")
	pflag.Usage = func() {
		desc := fmt.Sprintf(`Usage: %[1]s -a|-p [flags...]

%[1]s is an SSH agent holding Ed25519 keys that use BLAKE2b-512
instead of SHA-512. The keys are derived from a 32-byte seed, stored encrypted
with a passphrase, and an account index. Several indices give several keys.

When the environment variable SSH_AUTH_SOCK is set to contain the agent-path,
programs like ssh(1) can find and use this agent. The keys have the type
%[2]s, which the other end must accept.

The passphrase is asked for when a key is first needed. After --idle-lock
without use, the keys are wiped from memory until the next request.`, progname, b2ssh.KeyAlgo)
		le.Printf("%s\n\n%s", desc,
			pflag.CommandLine.FlagUsagesWrapped(86))
	}
	pflag.Parse()

	if pflag.NArg() > 0 {
		le.Printf("Unexpected argument: %s\n\n", strings.Join(pflag.Args(), " "))
		pflag.Usage()
		exit(2)
	}

	if opts.helpOnly {
		pflag.Usage()
		exit(0)
	}

	if opts.versionOnly {
		fmt.Printf("%s %s\n", progname, version)
		exit(0)
	}

	cfg, err := mergeConfig(pflag.CommandLine, opts)
	if err != nil {
		le.Printf("%s\n\n", err)
		exit(2)
	}

	agentPath := opts.agentPath
	if opts.showPubkeyOnly {
		if agentPath != "" {
			le.Printf("Pass only one of -a or -p.\n\n")
			pflag.Usage()
			exit(2)
		}
	} else if agentPath == "" {
		agentPath = cfg.AgentPath
	}

	if !opts.showPubkeyOnly && agentPath == "" {
		le.Printf("Please pass at least -a or -p.\n\n")
		pflag.Usage()
		exit(2)
	}

	if cfg.SeedFile == "" {
		le.Printf("Please pass --seed-file or set seed_file in the config file.\n\n")
		exit(2)
	}

	notifier := util.Notifier{Progname: progname, Quiet: opts.quiet}

	passphrase, err := passphraseSource(opts.passphraseFile, cfg.SeedFile, cfg.PinentryPath, os.Stdin)
	if err != nil {
		le.Printf("%s\n", err)
		exit(1)
	}

	signer := NewSigner(cfg.SeedFile, cfg.Indices, cfg.IdleLock, passphrase, notifier.Notify)

	if opts.showPubkeyOnly {
		le.Printf("Your SSH public keys (on stdout):\n")
		if err := signer.WriteAuthorizedKeys(os.Stdout); err != nil {
			le.Printf("%s\n", err)
			exit(1)
		}
		signer.Close()
		exit(0)
	}

	if runtime.GOOS == "windows" {
		agentPath = filepath.Join(windowsPipePrefix, agentPath)
	} else {
		agentPath, err = filepath.Abs(agentPath)
		if err != nil {
			le.Printf("Failed to resolve socket path: %s", err)
			exit(1)
		}
	}

	removeSocket, err := claimSocketPath(agentPath)
	if err != nil {
		notifier.Notify(err.Error())
		le.Printf("%s\n", err)
		// Don't remove the socket for the agent running.
		exit(1)
	}

	prevExitFunc := exit
	exit = func(code int) {
		signer.Close()
		removeSocket()
		prevExitFunc(code)
	}

	handleSignals(func() {}, syscall.SIGHUP)
	handleSignals(func() {
		exit(1)
	}, os.Interrupt, syscall.SIGTERM)

	m := newMetrics()
	if cfg.MetricsAddr != "" {
		if _, err := m.serve(cfg.MetricsAddr); err != nil {
			le.Printf("Failed to serve metrics: %s\n", err)
			exit(1)
		}
	}

	var limiter *rate.Limiter
	if cfg.SignRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.SignRate), cfg.SignBurst)
	}

	agent := NewSSHAgent(signer, limiter, m, notifier.Notify)
	if err := agent.Serve(agentPath); err != nil {
		le.Printf("%s\n", err)
		exit(1)
	}

	exit(0)
}

// claimSocketPath refuses a path that already exists, since another
// agent may be listening on it. The returned func removes the socket
// when we exit.
func claimSocketPath(path string) (func(), error) {
	_, err := os.Stat(path)
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("Is an agent already running? Path %s exists.", path)
	}
	return func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			le.Printf("Remove: %s\n", err)
		}
	}, nil
}

// mergeConfig loads the config file, if any, and lets the flags that
// were given on the command line override it.
func mergeConfig(fs *pflag.FlagSet, opts options) (*config.Config, error) {
	cfg, err := config.Load(config.ExpandHome(opts.configPath))
	if err != nil {
		return nil, err
	}

	if fs.Changed("seed-file") {
		cfg.SeedFile = opts.seedFile
	}
	if fs.Changed("index") {
		cfg.Indices = cfg.Indices[:0]
		for _, idx := range opts.indices {
			if idx > math.MaxUint32 {
				return nil, fmt.Errorf("account index %d out of range", idx)
			}
			cfg.Indices = append(cfg.Indices, uint32(idx))
		}
	}
	if fs.Changed("idle-lock") {
		cfg.IdleLock = opts.idleLock
	}
	if fs.Changed("sign-rate") {
		cfg.SignRate = opts.signRate
	}
	if fs.Changed("sign-burst") {
		cfg.SignBurst = opts.signBurst
	}
	if fs.Changed("metrics-addr") {
		cfg.MetricsAddr = opts.metricsAddr
	}
	if fs.Changed("pinentry") {
		cfg.PinentryPath = opts.pinentryPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
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
