package engine

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/runlet-dev/runlet/internal/app/domain/execution"
	"github.com/runlet-dev/runlet/internal/app/domain/route"
)

// The tests in this file spawn real interpreters. Each skips when the
// interpreter binary is not installed.

func needsInterpreter(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not installed", name)
	}
}

func runSource(t *testing.T, lang route.Language, source string, ectx execution.Context, timeout time.Duration) execution.Result {
	t.Helper()
	e := New(Config{WorkDir: t.TempDir()}, nil)
	result, err := e.Execute(context.Background(), lang, source, ectx, timeout)
	if err != nil {
		t.Fatalf("execute %s: %v", lang, err)
	}
	return result
}

func TestHarnessRoundTrip(t *testing.T) {
	cases := []struct {
		lang        route.Language
		interpreter string
		source      string
	}{
		{route.LanguageJavaScript, "node", `json({n: 1});`},
		{route.LanguagePython, "python3", `json({"n": 1})`},
		{route.LanguageRuby, "ruby", `json({"n" => 1})`},
		{route.LanguagePHP, "php", `<?php json(["n" => 1]);`},
	}

	for _, tc := range cases {
		t.Run(string(tc.lang), func(t *testing.T) {
			needsInterpreter(t, tc.interpreter)

			result := runSource(t, tc.lang, tc.source, execution.Context{}, 10*time.Second)
			if result.Status != 200 || !result.Success {
				t.Fatalf("status=%d success=%v error=%q", result.Status, result.Success, result.Error)
			}
			body, ok := result.Body.(map[string]any)
			if !ok {
				t.Fatalf("body = %#v, want JSON object", result.Body)
			}
			if n, _ := body["n"].(float64); n != 1 {
				t.Fatalf("body.n = %v, want 1", body["n"])
			}
			if ct := result.Headers["Content-Type"]; ct != "application/json" {
				t.Fatalf("Content-Type = %q", ct)
			}
		})
	}
}

func TestHarnessBindingsAndLog(t *testing.T) {
	needsInterpreter(t, "node")

	ectx := execution.Context{
		Params: map[string]string{"id": "42"},
		Query:  map[string]string{"q": "7"},
	}
	result := runSource(t, route.LanguageJavaScript,
		"console.log(\"diag\");\njson({ id: params.id, q: query.q });",
		ectx, 10*time.Second)

	if result.Status != 200 {
		t.Fatalf("status = %d, error = %q", result.Status, result.Error)
	}
	body, _ := result.Body.(map[string]any)
	if body["id"] != "42" || body["q"] != "7" {
		t.Fatalf("body = %#v, want id=42 q=7", result.Body)
	}
	if result.Log != "diag" {
		t.Fatalf("log = %q, want output preceding the result line", result.Log)
	}
}

func TestHarnessExceptionReturns500(t *testing.T) {
	needsInterpreter(t, "python3")

	result := runSource(t, route.LanguagePython, `raise Exception("boom")`, execution.Context{}, 10*time.Second)
	if result.Status != 500 || result.Success {
		t.Fatalf("status=%d success=%v", result.Status, result.Success)
	}
	if !strings.Contains(result.Error, "boom") {
		t.Fatalf("error = %q, want the exception message", result.Error)
	}
}

func TestHarnessRespondSurvivesLaterError(t *testing.T) {
	needsInterpreter(t, "python3")

	// The first respond call wins even when the code throws afterwards.
	result := runSource(t, route.LanguagePython,
		"respond({\"ok\": True})\nraise Exception(\"later\")",
		execution.Context{}, 10*time.Second)

	if result.Status != 200 || !result.Success {
		t.Fatalf("status=%d success=%v error=%q", result.Status, result.Success, result.Error)
	}
	body, _ := result.Body.(map[string]any)
	if body["ok"] != true {
		t.Fatalf("body = %#v, want the recorded response", result.Body)
	}
}

func TestHarnessTimeoutIsDistinctFailure(t *testing.T) {
	needsInterpreter(t, "python3")

	start := time.Now()
	result := runSource(t, route.LanguagePython, "import time\ntime.sleep(30)", execution.Context{}, time.Second)
	elapsed := time.Since(start)

	if elapsed > 10*time.Second {
		t.Fatalf("execution hung for %s instead of being killed", elapsed)
	}
	if result.Status != 500 || result.Success {
		t.Fatalf("status=%d success=%v", result.Status, result.Success)
	}
	if !strings.Contains(result.Error, "timed out") {
		t.Fatalf("error = %q, want a timeout failure distinct from other errors", result.Error)
	}
}
