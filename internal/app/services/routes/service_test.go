package routes

import (
	"context"
	"strings"
	"testing"

	"github.com/runlet-dev/runlet/internal/app/domain/route"
)

func TestCreateValidation(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		route   route.Route
		wantErr string
	}{
		{
			name:    "missing method",
			route:   route.Route{Path: "/x", Language: route.LanguagePython, Source: "respond()"},
			wantErr: "method is required",
		},
		{
			name:    "missing path",
			route:   route.Route{Method: "GET", Language: route.LanguagePython, Source: "respond()"},
			wantErr: "path is required",
		},
		{
			name:    "missing source",
			route:   route.Route{Method: "GET", Path: "/x", Language: route.LanguagePython},
			wantErr: "source is required",
		},
		{
			name:    "unsupported language",
			route:   route.Route{Method: "GET", Path: "/x", Language: "perl", Source: "respond()"},
			wantErr: "unsupported language",
		},
		{
			name:    "invalid auth mode",
			route:   route.Route{Method: "GET", Path: "/x", Language: route.LanguagePython, Source: "respond()", AuthMode: "oauth"},
			wantErr: "invalid auth mode",
		},
		{
			name: "rate limit without requests",
			route: route.Route{
				Method: "GET", Path: "/x", Language: route.LanguagePython, Source: "respond()",
				RateLimit: route.RateLimit{Enabled: true, WindowSeconds: 60, KeyBy: route.KeyByIP},
			},
			wantErr: "requests must be positive",
		},
		{
			name: "rate limit bad key",
			route: route.Route{
				Method: "GET", Path: "/x", Language: route.LanguagePython, Source: "respond()",
				RateLimit: route.RateLimit{Enabled: true, Requests: 10, WindowSeconds: 60, KeyBy: "user"},
			},
			wantErr: "key_by",
		},
		{
			name:    "duplicate path parameter",
			route:   route.Route{Method: "GET", Path: "/a/:id/b/:id", Language: route.LanguagePython, Source: "respond()"},
			wantErr: "duplicate path parameter",
		},
		{
			name:    "unnamed path parameter",
			route:   route.Route{Method: "GET", Path: "/a/:", Language: route.LanguagePython, Source: "respond()"},
			wantErr: "must be named",
		},
		{
			name:    "javascript syntax error",
			route:   route.Route{Method: "GET", Path: "/x", Language: route.LanguageJavaScript, Source: "function ("},
			wantErr: "does not compile",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Create(ctx, tc.route)
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not contain %q", err.Error(), tc.wantErr)
			}
		})
	}
}

func TestCreateNormalizes(t *testing.T) {
	s := newService(t)

	created, err := s.Create(context.Background(), route.Route{
		Method:   "post",
		Path:     "hello/world/",
		Language: route.LanguagePython,
		Source:   "respond()",
		Enabled:  true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Method != "POST" {
		t.Fatalf("method not uppercased: %s", created.Method)
	}
	if created.Path != "/hello/world" {
		t.Fatalf("path not normalized: %s", created.Path)
	}
}

func TestCreateAcceptsJavaScriptWithReturn(t *testing.T) {
	s := newService(t)

	// The harness runs source as an async function body, so a bare return
	// must validate.
	_, err := s.Create(context.Background(), route.Route{
		Method:   "GET",
		Path:     "/js",
		Language: route.LanguageJavaScript,
		Source:   "return json({ok: true});",
		Enabled:  true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
}

func TestUpdateIsFullReplace(t *testing.T) {
	s := newService(t)
	created := mustCreate(t, s, route.Route{
		Method: "GET", Path: "/orig", TimeoutSeconds: 10,
		RateLimit: route.RateLimit{Enabled: true, Requests: 5, WindowSeconds: 60, KeyBy: route.KeyByIP},
	})

	updated, err := s.Update(context.Background(), route.Route{
		ID:       created.ID,
		Method:   "GET",
		Path:     "/orig",
		Language: route.LanguagePython,
		Source:   "respond(2)",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Source != "respond(2)" {
		t.Fatalf("update did not apply source: %s", updated.Source)
	}
	if updated.RateLimit.Enabled {
		t.Fatal("omitted rate_limit must clear rate limiting, not carry the stored config")
	}
	if updated.Enabled {
		t.Fatal("omitted enabled must be applied literally, not backfilled")
	}
	if updated.TimeoutSeconds != 0 {
		t.Fatalf("omitted timeout must be applied literally, got %d", updated.TimeoutSeconds)
	}
}

func TestUpdateRejectsPartialPayload(t *testing.T) {
	s := newService(t)
	created := mustCreate(t, s, route.Route{Method: "GET", Path: "/orig"})

	_, err := s.Update(context.Background(), route.Route{ID: created.ID, Source: "respond(2)", Enabled: true})
	if err == nil || !strings.Contains(err.Error(), "method is required") {
		t.Fatalf("partial payload err = %v, want method required", err)
	}
}
