// Package shell is a reference RuntimeAdapter for the shell test type: a
// persistent `sh` process driven with sentinel-delimited output capture.
// Like runtime/python, this is a minimal reference implementation; the
// full shell evaluator is out of scope here.
package shell

import (
	"context"
	"fmt"

	"github.com/gar1t/groktest/match"
	"github.com/gar1t/groktest/runtime"
	"github.com/google/uuid"
)

// Adapter implements runtime.Adapter over a persistent POSIX shell.
type Adapter struct {
	proc      runtime.Process
	workDir   string
	available bool
}

func New(workDir string) runtime.Adapter {
	return &Adapter{workDir: workDir}
}

func init() {
	runtime.Register("shell", New)
}

func (a *Adapter) Start(ctx context.Context) error {
	if err := a.proc.Start(ctx, "/bin/sh", nil, a.workDir); err != nil {
		return err
	}
	a.available = true
	return nil
}

func (a *Adapter) IsAvailable() bool {
	return a.available && a.proc.Running()
}

func (a *Adapter) InitForTests(ctx context.Context, config map[string]any) error {
	init, _ := config["shell.init"].(string)
	if init == "" {
		return nil
	}
	_, err := a.run(init)
	return err
}

func (a *Adapter) ExecTestExpr(ctx context.Context, expr string, options map[string]any) (runtime.Output, error) {
	out, err := a.run(expr)
	if err != nil {
		return out, err
	}
	stderr := a.proc.DrainStderr()
	if match.Options(options).Bool("stderr", false) && stderr != "" {
		out.Output += stderr
	}
	return out, nil
}

func (a *Adapter) run(expr string) (runtime.Output, error) {
	sentinel := "__groktest_" + uuid.NewString() + "__"
	if err := a.proc.WriteLine(expr); err != nil {
		return runtime.Output{}, err
	}
	if err := a.proc.WriteLine(fmt.Sprintf("echo %s $?", sentinel)); err != nil {
		return runtime.Output{}, err
	}
	raw, err := a.proc.ReadUntilPrefixed(sentinel)
	if err != nil {
		return runtime.Output{}, err
	}
	code := 0
	if raw.ExitCode != 0 {
		code = 1
	}
	return runtime.Output{Code: code, Output: raw.Output}, nil
}

func (a *Adapter) HandleTestMatch(ctx context.Context, vars map[string]any) error {
	for name, v := range vars {
		if err := a.proc.WriteLine(fmt.Sprintf("%s=%v", name, v)); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) Stop() error {
	a.available = false
	return a.proc.Stop()
}
