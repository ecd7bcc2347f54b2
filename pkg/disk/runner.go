package disk

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// CommandRunner runs an external command and returns its standard output.
type CommandRunner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec. Every command is logged at
// verbosity 1; on failure the error carries the command line and whatever
// the command printed on stderr.
type ExecRunner struct{}

func NewExecRunner() ExecRunner { return ExecRunner{} }

func (ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmdline := strings.TrimSpace(name + " " + strings.Join(args, " "))
	klog.V(1).Infof("EXEC: %s", cmdline)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if len(out) > 0 {
		klog.V(2).Infof("OUTPUT: %s", strings.TrimSpace(string(out)))
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(string(out))
		}
		return out, errors.Wrapf(err, "%s: %s", cmdline, msg)
	}
	return out, nil
}
