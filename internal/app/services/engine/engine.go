// Package engine executes route source code in isolated interpreter
// subprocesses.
//
// For each request the engine writes three throwaway files: the request
// context as JSON, the user source, and a language harness that wires them
// together. The harness reads both paths from the environment, so no request
// data is ever substituted into generated source text. The subprocess is
// raced against a single parent deadline; on expiry it receives SIGTERM and,
// after a short grace period, SIGKILL.
//
// The process timeout is the only isolation boundary here. Deployments that
// execute untrusted code should add OS-level sandboxing around the
// interpreter binaries.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/runlet-dev/runlet/internal/app/domain/execution"
	"github.com/runlet-dev/runlet/internal/app/domain/route"
	"github.com/runlet-dev/runlet/pkg/logger"
)

var (
	// ErrUnsupportedLanguage rejects languages no adapter exists for (400).
	ErrUnsupportedLanguage = errors.New("unsupported language")
	// ErrLanguageDisabled rejects languages toggled off in config (503).
	ErrLanguageDisabled = errors.New("language disabled")
)

// DefaultTimeout bounds executions when neither route nor config sets one.
const DefaultTimeout = 30 * time.Second

// termGrace is how long a timed-out process gets between SIGTERM and SIGKILL.
const termGrace = 2 * time.Second

// Config controls which languages run and with which interpreters.
type Config struct {
	// Disabled languages are rejected with ErrLanguageDisabled.
	Disabled map[route.Language]bool
	// Interpreters overrides the interpreter binary per language.
	Interpreters map[route.Language]string
	// DefaultTimeout applies when a route declares none.
	DefaultTimeout time.Duration
	// WorkDir receives the throwaway harness files. Defaults to os.TempDir.
	WorkDir string
}

// Engine dispatches executions to per-language adapters.
type Engine struct {
	cfg      Config
	adapters map[route.Language]adapter
	log      *logger.Logger
}

// New constructs an engine with all built-in language adapters.
func New(cfg Config, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewDefault("engine")
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}

	adapters := make(map[route.Language]adapter)
	for _, a := range builtinAdapters() {
		adapters[a.language] = a
	}
	return &Engine{cfg: cfg, adapters: adapters, log: log}
}

// Languages returns the supported language names.
func (e *Engine) Languages() []route.Language {
	out := make([]route.Language, 0, len(e.adapters))
	for lang := range e.adapters {
		out = append(out, lang)
	}
	return out
}

// Execute runs source under the language's harness with the given context
// snapshot. Admission failures (unknown or disabled language) come back as
// errors; every runtime failure is folded into the returned Result so the
// caller always has a structured response to emit.
func (e *Engine) Execute(ctx context.Context, lang route.Language, source string, ectx execution.Context, timeout time.Duration) (execution.Result, error) {
	a, ok := e.adapters[lang]
	if !ok {
		return execution.Result{}, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, lang)
	}
	if e.cfg.Disabled[lang] {
		return execution.Result{}, fmt.Errorf("%w: %q", ErrLanguageDisabled, lang)
	}
	if timeout <= 0 {
		timeout = e.cfg.DefaultTimeout
	}

	interpreter := a.interpreter
	if override := e.cfg.Interpreters[lang]; override != "" {
		interpreter = override
	}

	start := time.Now()

	binary, err := exec.LookPath(interpreter)
	if err != nil {
		return failure(start, 500, fmt.Sprintf("interpreter %q not available for language %q", interpreter, lang)), nil
	}

	files, err := e.writeFiles(a, source, ectx)
	if err != nil {
		return failure(start, 500, fmt.Sprintf("prepare harness: %v", err)), nil
	}
	defer files.remove()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, binary, append(a.args, files.harness)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = e.buildEnv(files, ectx.Env)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = termGrace

	runErr := cmd.Run()
	elapsed := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		e.log.WithFields(map[string]any{"language": lang, "timeout": timeout.String()}).Warn("execution timed out")
		return failure(start, 500, fmt.Sprintf("execution timed out after %s", timeout)), nil
	}
	if runErr != nil && stdout.Len() == 0 && stderr.Len() == 0 {
		return failure(start, 500, fmt.Sprintf("process failed: %v", runErr)), nil
	}

	result := parseOutput(stdout.String(), stderr.String())
	result.Duration = elapsed
	return result, nil
}

type harnessFiles struct {
	dir     string
	harness string
	source  string
	context string
}

// remove deletes the throwaway files. Called on every exit path.
func (f harnessFiles) remove() {
	_ = os.RemoveAll(f.dir)
}

func (e *Engine) writeFiles(a adapter, source string, ectx execution.Context) (harnessFiles, error) {
	dir, err := os.MkdirTemp(e.cfg.WorkDir, "runlet-")
	if err != nil {
		return harnessFiles{}, err
	}
	files := harnessFiles{
		dir:     dir,
		harness: filepath.Join(dir, "harness"+a.extension),
		source:  filepath.Join(dir, "route"+a.extension),
		context: filepath.Join(dir, "context.json"),
	}

	ctxJSON, err := marshalContext(ectx)
	if err != nil {
		files.remove()
		return harnessFiles{}, err
	}
	for path, data := range map[string][]byte{
		files.harness: []byte(a.harness),
		files.source:  []byte(source),
		files.context: ctxJSON,
	} {
		if err := os.WriteFile(path, data, 0o600); err != nil {
			files.remove()
			return harnessFiles{}, err
		}
	}
	return files, nil
}

// buildEnv hands the subprocess a minimal environment: interpreter lookup
// path, the harness file locations, and the route's own variables.
func (e *Engine) buildEnv(files harnessFiles, routeEnv map[string]string) []string {
	env := []string{
		"PATH=" + os.Getenv("PATH"),
		"RUNLET_CONTEXT=" + files.context,
		"RUNLET_SOURCE=" + files.source,
	}
	if home := os.Getenv("HOME"); home != "" {
		env = append(env, "HOME="+home)
	}
	for k, v := range routeEnv {
		env = append(env, k+"="+v)
	}
	return env
}

func failure(start time.Time, status int, msg string) execution.Result {
	return execution.Result{
		Status:   status,
		Body:     map[string]any{"error": msg},
		Duration: time.Since(start),
		Success:  false,
		Error:    msg,
	}
}
