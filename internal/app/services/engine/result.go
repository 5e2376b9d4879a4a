package engine

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/runlet-dev/runlet/internal/app/domain/execution"
)

// Sentinel prefixes the single structured result line a harness writes to
// standard output.
const Sentinel = "__RUNLET_RESULT__"

func marshalContext(ectx execution.Context) ([]byte, error) {
	return json.Marshal(ectx)
}

// parseOutput converts raw process output into a structured result.
//
// Precedence: a sentinel line is authoritative (malformed payload is a parse
// failure, not a silent success); otherwise a non-empty stderr is a user
// error; otherwise the trimmed stdout, if any, becomes a plain 200.
func parseOutput(stdout, stderr string) execution.Result {
	if line, preceding, found := findSentinel(stdout); found {
		return parseEnvelope(line, preceding, stderr)
	}

	if strings.TrimSpace(stderr) != "" {
		msg := strings.TrimSpace(stderr)
		return execution.Result{
			Status:  500,
			Body:    map[string]any{"error": msg},
			Success: false,
			Error:   msg,
			Log:     strings.TrimSpace(stdout),
		}
	}

	trimmed := strings.TrimSpace(stdout)
	result := execution.Result{Status: 200, Success: true}
	if trimmed != "" {
		result.Body = trimmed
	}
	return result
}

// findSentinel locates the last sentinel-prefixed line, returning its payload
// and everything written before it.
func findSentinel(stdout string) (payload, preceding string, found bool) {
	idx := strings.LastIndex(stdout, Sentinel)
	if idx < 0 {
		return "", "", false
	}
	if idx > 0 && stdout[idx-1] != '\n' {
		// Sentinel must start a line; mid-line occurrences are user output.
		return "", "", false
	}
	rest := stdout[idx+len(Sentinel):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	return strings.TrimSpace(rest), strings.TrimSpace(stdout[:idx]), true
}

func parseEnvelope(payload, preceding, stderr string) execution.Result {
	if !gjson.Valid(payload) {
		msg := "malformed result envelope"
		return execution.Result{
			Status:  500,
			Body:    map[string]any{"error": msg},
			Success: false,
			Error:   msg,
			Log:     preceding,
		}
	}

	parsed := gjson.Parse(payload)

	status := 200
	if s := parsed.Get("status"); s.Exists() {
		status = int(s.Int())
	}

	var body any
	if b := parsed.Get("body"); b.Exists() {
		if err := json.Unmarshal([]byte(b.Raw), &body); err != nil {
			body = b.String()
		}
	}

	headers := make(map[string]string)
	parsed.Get("headers").ForEach(func(k, v gjson.Result) bool {
		headers[k.String()] = v.String()
		return true
	})

	result := execution.Result{
		Status:  status,
		Body:    body,
		Headers: headers,
		Success: status < 500,
		Log:     preceding,
	}
	if !result.Success {
		result.Error = errorText(body)
	}
	if strings.TrimSpace(stderr) != "" && result.Log == "" {
		result.Log = strings.TrimSpace(stderr)
	}
	return result
}

func errorText(body any) string {
	if m, ok := body.(map[string]any); ok {
		if msg, ok := m["error"].(string); ok {
			return msg
		}
	}
	return "execution failed"
}
