package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"k8s.io/klog/v2"

	"github.com/woliveiras/efisync/pkg/config"
	"github.com/woliveiras/efisync/pkg/disk"
	"github.com/woliveiras/efisync/pkg/engine"
	"github.com/woliveiras/efisync/pkg/lock"
	"github.com/woliveiras/efisync/pkg/mirror"
	"github.com/woliveiras/efisync/pkg/resolve"
	"github.com/woliveiras/efisync/pkg/runlog"
)

// Options are the command-line options. Parsing stops at the first
// positional parameter, so clone-tool parameters pass through untouched.
type Options struct {
	Config   string `long:"config" value-name:"FILE" default:"/etc/efisync.yaml" description:"YAML settings file; a missing file means defaults"`
	Simulate bool   `long:"simulate" description:"show what would change on the destination without changing it"`
	Live     bool   `long:"live" description:"copy and verify even if the settings file asks for a simulation"`
	LogFile  string `long:"log-file" value-name:"FILE" description:"run log, recreated on every run"`
	LockFile string `long:"lock-file" value-name:"FILE" description:"lock file guarding against concurrent runs"`
	Backend  string `long:"backend" choice:"native" choice:"rsync" description:"how the EFI partition contents are mirrored"`
	Verbose  []bool `short:"v" long:"verbose" description:"more console output; repeat for command traces"`
}

// ExitError carries a non-zero exit status for a run that completed with
// a failure outcome.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// newDeps builds the disk, mirror and hash collaborators for cfg.
var newDeps = func(cfg config.Config) engine.Deps {
	runner := disk.NewExecRunner()
	du := disk.NewDiskutil(runner)

	commands := []string{"diskutil"}
	var m mirror.Mirror = mirror.NewNative(nil)
	if cfg.Backend == config.BackendRsync {
		m = mirror.NewRsync(runner)
		commands = append(commands, "rsync")
	}

	return engine.Deps{
		Resolver:  resolve.NewResolver(du, disk.NewSystemMountTable()),
		Locator:   resolve.NewLocator(du, du, du),
		Inventory: du,
		Mounter:   du,
		Mirror:    m,
		Hasher:    mirror.NewHasher(nil),
		Preflight: func() error { return engine.CheckPrerequisites(commands...) },
	}
}

// Run is the main entrypoint for the CLI. args[0] is the program name.
//
// A run that did nothing (unsupported parameters, a failed backup reported
// by the clone tool, another run holding the lock) returns nil. A failed
// run returns an *ExitError with the status to exit with.
func Run(args []string) error {
	defer klog.Flush()

	if len(args) == 0 {
		return fmt.Errorf("no arguments provided")
	}
	opts, params, err := parseArgs(args[1:])
	if err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, ferr.Message)
			return nil
		}
		return err
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if err := setVerbosity(len(opts.Verbose)); err != nil {
		return err
	}

	// The run log belongs to the lock holder; a run that cannot take the
	// lock reports on the console only.
	console := runlog.Console{}
	lk, err := lock.Acquire(cfg.LockFile)
	if errors.Is(err, lock.ErrLocked) {
		console.Notify(runlog.Warning, fmt.Sprintf("did not run: %v", err))
		return nil
	}
	if err != nil {
		console.Notify(runlog.Error, fmt.Sprintf("failed, nothing was changed: %v", err))
		return &ExitError{Code: engine.ResolutionFailure.ExitCode(), Err: err}
	}
	defer lk.Release()

	notifier := runlog.Multi{console}
	header := fmt.Sprintf("efisync run started %s with parameters %q", time.Now().Format(time.RFC3339), params)
	if l, err := runlog.Create(cfg.LogFile, header); err != nil {
		klog.Warningf("run log disabled: %v", err)
	} else {
		defer l.Close()
		notifier = append(notifier, l)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := newDeps(cfg)
	deps.Notifier = notifier
	rep := engine.New(cfg, deps).RunParams(ctx, params)
	if code := rep.ExitCode(); code != 0 {
		return &ExitError{Code: code, Err: rep.Err}
	}
	return nil
}

func parseArgs(args []string) (Options, []string, error) {
	var opts Options
	p := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash|flags.PassAfterNonOption)
	p.Name = "efisync"
	p.Usage = "[OPTIONS] SOURCE DESTINATION [CLONE TOOL PARAMETERS]"
	rest, err := p.ParseArgs(args)
	if err != nil {
		return Options{}, nil, err
	}
	if opts.Simulate && opts.Live {
		return Options{}, nil, fmt.Errorf("--simulate and --live are mutually exclusive")
	}
	return opts, rest, nil
}

// loadConfig reads the settings file and applies the options on top.
func loadConfig(opts Options) (config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return config.Config{}, err
	}
	switch {
	case opts.Simulate:
		cfg.Simulate = true
	case opts.Live:
		cfg.Simulate = false
	}
	if opts.LogFile != "" {
		cfg.LogFile = opts.LogFile
	}
	if opts.LockFile != "" {
		cfg.LockFile = opts.LockFile
	}
	if opts.Backend != "" {
		cfg.Backend = strings.ToLower(opts.Backend)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func setVerbosity(level int) error {
	fs := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(fs)
	return fs.Set("v", strconv.Itoa(level))
}
