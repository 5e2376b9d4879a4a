package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	app "github.com/runlet-dev/runlet/internal/app"
	"github.com/runlet-dev/runlet/internal/app/domain/credential"
	"github.com/runlet-dev/runlet/internal/app/domain/execution"
	"github.com/runlet-dev/runlet/internal/app/domain/route"
)

func exampleRecord(routeID string) execution.Record {
	return execution.Record{RouteID: routeID, Method: "GET", Path: "/x", Status: 200, Success: true}
}

func newTestHandler(t *testing.T) (http.Handler, *app.Application) {
	t.Helper()
	application, err := app.New(app.Options{}, nil)
	if err != nil {
		t.Fatalf("build application: %v", err)
	}
	return NewHandler(application), application
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouteCRUD(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, "POST", "/routes", `{
		"method": "GET",
		"path": "/hello/:name",
		"language": "python",
		"source": "respond({'hi': params['name']})",
		"enabled": true
	}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var created route.Route
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created route: %v", err)
	}
	if created.ID == "" {
		t.Fatal("created route has no id")
	}

	rec = doJSON(t, h, "GET", "/routes", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var listed []route.Route
	json.Unmarshal(rec.Body.Bytes(), &listed)
	if len(listed) != 1 {
		t.Fatalf("listed %d routes, want 1", len(listed))
	}

	rec = doJSON(t, h, "GET", "/routes/"+created.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = doJSON(t, h, "POST", "/routes/"+created.ID+"/disable", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("disable status = %d: %s", rec.Code, rec.Body.String())
	}
	var disabled route.Route
	json.Unmarshal(rec.Body.Bytes(), &disabled)
	if disabled.Enabled {
		t.Fatal("route still enabled after disable")
	}

	rec = doJSON(t, h, "POST", "/routes/"+created.ID+"/enable", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("enable status = %d", rec.Code)
	}

	rec = doJSON(t, h, "DELETE", "/routes/"+created.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = doJSON(t, h, "GET", "/routes/"+created.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestRouteCreateRejectsInvalid(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, "POST", "/routes", `{"method": "GET", "path": "/x", "language": "cobol", "source": "x"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, h, "POST", "/routes", `{"unknown_field": true}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field status = %d, want 400", rec.Code)
	}
}

func TestCredentialCRUD(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, "POST", "/credentials", `{
		"name": "ci",
		"method": "header",
		"enabled": true
	}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var created credential.Credential
	json.Unmarshal(rec.Body.Bytes(), &created)
	if created.Token == "" {
		t.Fatal("credential token was not generated")
	}
	if len(created.Permissions) != 1 || created.Permissions[0] != credential.Wildcard {
		t.Fatalf("default permissions = %v, want wildcard", created.Permissions)
	}

	rec = doJSON(t, h, "PUT", "/credentials/"+created.ID, `{
		"name": "ci-renamed",
		"method": "header",
		"enabled": true
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rec.Code, rec.Body.String())
	}
	var updated credential.Credential
	json.Unmarshal(rec.Body.Bytes(), &updated)
	if updated.Name != "ci-renamed" {
		t.Fatalf("name = %s", updated.Name)
	}
	if updated.Token != created.Token {
		t.Fatal("update with empty token must keep the stored token")
	}

	rec = doJSON(t, h, "POST", "/credentials/"+created.ID+"/disable", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("disable status = %d", rec.Code)
	}

	rec = doJSON(t, h, "DELETE", "/credentials/"+created.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
}

func TestLogsEndpoint(t *testing.T) {
	h, application := newTestHandler(t)

	// Push a record straight through the recorder path.
	if err := application.Recorder.Start(context.Background()); err != nil {
		t.Fatalf("start recorder: %v", err)
	}
	application.Recorder.Record(exampleRecord("r-9"))
	if err := application.Recorder.Stop(context.Background()); err != nil {
		t.Fatalf("stop recorder: %v", err)
	}

	rec := doJSON(t, h, "GET", "/logs?route_id=r-9", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("logs status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"r-9"`) {
		t.Fatalf("logs body = %s", rec.Body.String())
	}

	rec = doJSON(t, h, "GET", "/logs?route_id=absent", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("empty logs status = %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, "PATCH", "/routes", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}
