package engine

import "github.com/runlet-dev/runlet/internal/app/domain/route"

// adapter binds a language to its interpreter invocation and harness program.
// Harness programs are static; per-request data reaches them only through
// the RUNLET_CONTEXT and RUNLET_SOURCE environment variables.
type adapter struct {
	language    route.Language
	interpreter string
	args        []string
	extension   string
	harness     string
}

func builtinAdapters() []adapter {
	return []adapter{
		{
			language:    route.LanguageJavaScript,
			interpreter: "node",
			extension:   ".js",
			harness:     jsHarness,
		},
		{
			language:    route.LanguagePython,
			interpreter: "python3",
			extension:   ".py",
			harness:     pythonHarness,
		},
		{
			language:    route.LanguageRuby,
			interpreter: "ruby",
			extension:   ".rb",
			harness:     rubyHarness,
		},
		{
			language:    route.LanguagePHP,
			interpreter: "php",
			extension:   ".php",
			harness:     phpHarness,
		},
	}
}

const jsHarness = `"use strict";
const fs = require("fs");

const ctx = JSON.parse(fs.readFileSync(process.env.RUNLET_CONTEXT, "utf8"));
const request = { method: ctx.method, path: ctx.path, url: ctx.url };
const params = ctx.params || {};
const query = ctx.query || {};
let body = ctx.body;
if (typeof body === "string" && body.length > 0) {
  try { body = JSON.parse(body); } catch (_) {}
}
const headers = ctx.headers || {};
let response = null;

function respond(data, status, extra) {
  if (response !== null) return;
  response = {
    status: status === undefined ? 200 : status,
    body: data === undefined ? null : data,
    headers: extra || {},
  };
}

function json(data, status) {
  respond(data, status, { "Content-Type": "application/json" });
}

const AsyncFunction = Object.getPrototypeOf(async function () {}).constructor;

(async () => {
  try {
    const source = fs.readFileSync(process.env.RUNLET_SOURCE, "utf8");
    const fn = new AsyncFunction(
      "request", "params", "query", "body", "headers", "respond", "json",
      source
    );
    await fn(request, params, query, body, headers, respond, json);
  } catch (err) {
    if (response === null) {
      response = {
        status: 500,
        body: { error: err && err.message ? err.message : String(err) },
        headers: {},
      };
    }
  }
  if (response !== null) {
    process.stdout.write("\n` + Sentinel + `" + JSON.stringify(response) + "\n");
  }
})();
`

const pythonHarness = `import json as _jsonlib
import os
import sys

with open(os.environ["RUNLET_CONTEXT"], "r") as _f:
    _ctx = _jsonlib.load(_f)

request = {"method": _ctx.get("method"), "path": _ctx.get("path"), "url": _ctx.get("url")}
params = _ctx.get("params") or {}
query = _ctx.get("query") or {}
body = _ctx.get("body")
if isinstance(body, str) and body:
    try:
        body = _jsonlib.loads(body)
    except ValueError:
        pass
headers = _ctx.get("headers") or {}
_response = None


def respond(data=None, status=200, headers=None):
    global _response
    if _response is None:
        _response = {"status": status, "body": data, "headers": headers or {}}


def json(data=None, status=200):
    respond(data, status, {"Content-Type": "application/json"})


try:
    with open(os.environ["RUNLET_SOURCE"], "r") as _f:
        _source = _f.read()
    exec(compile(_source, "route.py", "exec"), globals())
except Exception as _err:
    if _response is None:
        _response = {"status": 500, "body": {"error": str(_err)}, "headers": {}}

if _response is not None:
    sys.stdout.write("\n` + Sentinel + `" + _jsonlib.dumps(_response) + "\n")
`

const rubyHarness = `require "json"

_ctx = JSON.parse(File.read(ENV["RUNLET_CONTEXT"]))
request = { "method" => _ctx["method"], "path" => _ctx["path"], "url" => _ctx["url"] }
params = _ctx["params"] || {}
query = _ctx["query"] || {}
body = _ctx["body"]
if body.is_a?(String) && !body.empty?
  begin
    body = JSON.parse(body)
  rescue JSON::ParserError
  end
end
headers = _ctx["headers"] || {}
$__response = nil

def respond(data = nil, status = 200, headers = {})
  return unless $__response.nil?
  $__response = { "status" => status, "body" => data, "headers" => headers }
end

def json(data = nil, status = 200)
  respond(data, status, { "Content-Type" => "application/json" })
end

begin
  eval(File.read(ENV["RUNLET_SOURCE"]), binding, "route.rb")
rescue Exception => e
  if $__response.nil?
    $__response = { "status" => 500, "body" => { "error" => e.message }, "headers" => {} }
  end
end

unless $__response.nil?
  STDOUT.write("\n` + Sentinel + `" + JSON.generate($__response) + "\n")
end
`

const phpHarness = `<?php
$__ctx = json_decode(file_get_contents(getenv("RUNLET_CONTEXT")), true);
$request = [
    "method" => $__ctx["method"] ?? null,
    "path" => $__ctx["path"] ?? null,
    "url" => $__ctx["url"] ?? null,
];
$params = $__ctx["params"] ?? [];
$query = $__ctx["query"] ?? [];
$body = $__ctx["body"] ?? null;
if (is_string($body) && $body !== "") {
    $decoded = json_decode($body, true);
    if (json_last_error() === JSON_ERROR_NONE) {
        $body = $decoded;
    }
}
$headers = $__ctx["headers"] ?? [];
$__response = null;

function respond($data = null, $status = 200, $headers = [])
{
    global $__response;
    if ($__response === null) {
        $__response = ["status" => $status, "body" => $data, "headers" => (object) $headers];
    }
}

function json($data = null, $status = 200)
{
    respond($data, $status, ["Content-Type" => "application/json"]);
}

try {
    require getenv("RUNLET_SOURCE");
} catch (Throwable $e) {
    if ($__response === null) {
        $__response = ["status" => 500, "body" => ["error" => $e->getMessage()], "headers" => (object) []];
    }
}

if ($__response !== null) {
    echo "\n` + Sentinel + `" . json_encode($__response) . "\n";
}
`
