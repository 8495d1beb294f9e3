// Package python is a reference RuntimeAdapter for the python-doctest
// test type. It is intentionally minimal: the full Python evaluator is
// out of this repo's core, so this package exists only to demonstrate
// the adapter contract end to end with a real persistent interpreter
// process.
package python

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gar1t/groktest/match"
	"github.com/gar1t/groktest/runtime"
)

// driverScript is a small companion program fed to `python3 -u`. It
// reads one JSON request per line from stdin and writes one JSON
// response per line to stdout, evaluating each request against a single
// persistent global namespace so that bindings from one test are visible
// to the next, in the order they were bound.
const driverScript = `
import sys, io, json, traceback

_globals = {}

def _run(expr):
    buf = io.StringIO()
    old_stdout = sys.stdout
    sys.stdout = buf
    try:
        try:
            code = compile(expr, "<groktest>", "eval")
        except SyntaxError:
            code = compile(expr, "<groktest>", "exec")
        result = eval(code, _globals) if code.co_flags & 0x20 == 0 else exec(code, _globals)
        if result is not None:
            print(repr(result))
        return 0, buf.getvalue(), ""
    except Exception:
        tb = traceback.format_exc()
        lines = tb.strip().splitlines()
        short = lines[0] + "\n" + lines[-1] if len(lines) > 1 else tb
        return 1, buf.getvalue() + tb, short
    finally:
        sys.stdout = old_stdout

for line in sys.stdin:
    line = line.strip()
    if not line:
        continue
    req = json.loads(line)
    op = req.get("op")
    if op == "init":
        try:
            exec(req.get("code", ""), _globals)
            sys.stdout.write(json.dumps({"code": 0, "output": "", "short_error": ""}) + "\n")
        except Exception:
            sys.stdout.write(json.dumps({"code": 1, "output": traceback.format_exc(), "short_error": ""}) + "\n")
    elif op == "bind":
        _globals.update(req.get("vars", {}))
        sys.stdout.write(json.dumps({"code": 0, "output": "", "short_error": ""}) + "\n")
    elif op == "exec":
        code, output, short_error = _run(req.get("expr", ""))
        sys.stdout.write(json.dumps({"code": code, "output": output, "short_error": short_error}) + "\n")
    sys.stdout.flush()
`

type request struct {
	Op   string         `json:"op"`
	Expr string         `json:"expr,omitempty"`
	Code string         `json:"code,omitempty"`
	Vars map[string]any `json:"vars,omitempty"`
}

type response struct {
	Code       int    `json:"code"`
	Output     string `json:"output"`
	ShortError string `json:"short_error"`
}

// Adapter implements runtime.Adapter over a persistent `python3` process.
type Adapter struct {
	proc       runtime.Process
	workDir    string
	scriptPath string
	available  bool
}

func New(workDir string) runtime.Adapter {
	return &Adapter{workDir: workDir}
}

func init() {
	runtime.Register("python", New)
}

func (a *Adapter) Start(ctx context.Context) error {
	f, err := os.CreateTemp("", "groktest-driver-*.py")
	if err != nil {
		return fmt.Errorf("python runtime: temp driver: %w", err)
	}
	if _, err := f.WriteString(driverScript); err != nil {
		f.Close()
		return fmt.Errorf("python runtime: write driver: %w", err)
	}
	f.Close()
	a.scriptPath = f.Name()

	if err := a.proc.Start(ctx, "python3", []string{"-u", a.scriptPath}, a.workDir); err != nil {
		return err
	}
	a.available = true
	return nil
}

func (a *Adapter) IsAvailable() bool {
	return a.available && a.proc.Running()
}

func (a *Adapter) InitForTests(ctx context.Context, config map[string]any) error {
	init, _ := config["python.init"].(string)
	if section, ok := config["python"].(map[string]any); ok {
		if s, ok := section["init"].(string); ok {
			init = s
		}
	}
	if init == "" {
		return nil
	}
	if err := a.proc.WriteJSON(request{Op: "init", Code: init}); err != nil {
		return err
	}
	var resp response
	return a.proc.ReadJSON(&resp)
}

func (a *Adapter) ExecTestExpr(ctx context.Context, expr string, options map[string]any) (runtime.Output, error) {
	if err := a.proc.WriteJSON(request{Op: "exec", Expr: expr}); err != nil {
		return runtime.Output{}, err
	}
	var resp response
	if err := a.proc.ReadJSON(&resp); err != nil {
		return runtime.Output{}, err
	}
	// The driver's print() ends the output with a newline that the
	// extracted expected block never carries.
	out := strings.TrimSuffix(resp.Output, "\n")
	stderr := a.proc.DrainStderr()
	if match.Options(options).Bool("stderr", false) && stderr != "" {
		out += stderr
	}
	return runtime.Output{Code: resp.Code, Output: out, ShortError: resp.ShortError}, nil
}

func (a *Adapter) HandleTestMatch(ctx context.Context, vars map[string]any) error {
	if len(vars) == 0 {
		return nil
	}
	if err := a.proc.WriteJSON(request{Op: "bind", Vars: vars}); err != nil {
		return err
	}
	var resp response
	return a.proc.ReadJSON(&resp)
}

func (a *Adapter) Stop() error {
	a.available = false
	err := a.proc.Stop()
	if a.scriptPath != "" {
		_ = os.Remove(filepath.Clean(a.scriptPath))
	}
	return err
}
