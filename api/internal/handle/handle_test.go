package handle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"step-tutor/api/internal/identity"
	"step-tutor/api/internal/llm"
	"step-tutor/api/internal/prompt"
	"step-tutor/api/internal/tutor"
)

type fakeEngine struct {
	calls int
	last  llm.CompletionRequest
	out   llm.CompletionResult
	err   error
}

func (f *fakeEngine) Name() string     { return "gpt" }
func (f *fakeEngine) GetModel() string { return "gpt-4o-mini" }
func (f *fakeEngine) Complete(_ context.Context, in llm.CompletionRequest) (llm.CompletionResult, error) {
	f.calls++
	f.last = in
	return f.out, f.err
}

type resolverFunc func(*http.Request) (*identity.UserIdentity, error)

func (f resolverFunc) Resolve(r *http.Request) (*identity.UserIdentity, error) { return f(r) }

func newRouter(eng llm.Engine, res identity.Resolver) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := New(tutor.NewService(eng, nil), res)
	r := gin.New()
	r.Any("/api/me", h.Me)
	r.Any("/api/run-step", h.RunStep)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func errorOf(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body["error"]
}

const validBody = `{"subject":"physics","topic":"newton-first-law","stepNumber":1}`

func TestMe_AnyMethod(t *testing.T) {
	r := newRouter(&fakeEngine{}, identity.NewMockResolver("", ""))

	for _, m := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete} {
		rr := do(r, m, "/api/me", `{"ignored":true}`)
		require.Equal(t, http.StatusOK, rr.Code, m)
		assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
		assert.JSONEq(t, `{"loggedIn":true,"plan":"mastery","email":"student@example.com"}`, rr.Body.String(), m)
	}
}

func TestMe_ResolverError(t *testing.T) {
	r := newRouter(&fakeEngine{}, resolverFunc(func(*http.Request) (*identity.UserIdentity, error) {
		return nil, errors.New("session store down")
	}))
	rr := do(r, http.MethodGet, "/api/me", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, MsgInternal, errorOf(t, rr))
}

func TestRunStep_Success(t *testing.T) {
	eng := &fakeEngine{out: llm.CompletionResult{Content: "An object at rest stays at rest."}}
	r := newRouter(eng, identity.NewMockResolver("mastery", ""))

	rr := do(r, http.MethodPost, "/api/run-step", validBody)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"content":"An object at rest stays at rest."}`, rr.Body.String())

	require.Equal(t, 1, eng.calls)
	assert.Equal(t, prompt.NewtonFirstLaw, eng.last.Messages[1].Content)
}

func TestRunStep_EmptyContent(t *testing.T) {
	r := newRouter(&fakeEngine{}, identity.NewMockResolver("mastery", ""))

	rr := do(r, http.MethodPost, "/api/run-step", `{"subject":"math","topic":"limits","stepNumber":2}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"content":""}`, rr.Body.String())
}

func TestRunStep_MethodNotAllowed(t *testing.T) {
	eng := &fakeEngine{}
	r := newRouter(eng, identity.NewMockResolver("mastery", ""))

	for _, m := range []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodPatch} {
		rr := do(r, m, "/api/run-step", validBody)
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code, m)
		assert.Equal(t, MsgMethodNotAllowed, errorOf(t, rr), m)
	}
	assert.Zero(t, eng.calls)
}

func TestRunStep_PlanRequired(t *testing.T) {
	cases := map[string]identity.Resolver{
		"free plan": identity.NewMockResolver("free", ""),
		"no user": resolverFunc(func(*http.Request) (*identity.UserIdentity, error) {
			return nil, nil
		}),
	}
	for name, res := range cases {
		t.Run(name, func(t *testing.T) {
			eng := &fakeEngine{}
			r := newRouter(eng, res)

			rr := do(r, http.MethodPost, "/api/run-step", validBody)
			assert.Equal(t, http.StatusForbidden, rr.Code)
			assert.Equal(t, MsgPlanRequired, errorOf(t, rr))
			assert.Zero(t, eng.calls)
		})
	}
}

func TestRunStep_PlanCheckedBeforeBody(t *testing.T) {
	r := newRouter(&fakeEngine{}, identity.NewMockResolver("free", ""))

	rr := do(r, http.MethodPost, "/api/run-step", `not json`)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRunStep_MissingFields(t *testing.T) {
	bodies := map[string]string{
		"empty object":     `{}`,
		"no subject":       `{"topic":"newton-first-law","stepNumber":1}`,
		"empty topic":      `{"subject":"physics","topic":"","stepNumber":1}`,
		"zero step":        `{"subject":"physics","topic":"newton-first-law","stepNumber":0}`,
		"null":             `null`,
		"empty body":       ``,
		"malformed json":   `{"subject":`,
		"json array":       `["physics","newton-first-law",1]`,
		"falsy values":     `{"subject":false,"topic":null,"stepNumber":""}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			eng := &fakeEngine{}
			r := newRouter(eng, identity.NewMockResolver("mastery", ""))

			rr := do(r, http.MethodPost, "/api/run-step", body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, MsgMissingFields, errorOf(t, rr))
			assert.Zero(t, eng.calls)
		})
	}
}

func TestRunStep_MistypedFieldsFallBack(t *testing.T) {
	bodies := map[string]string{
		"step as string":   `{"subject":"physics","topic":"newton-first-law","stepNumber":"1"}`,
		"subject as array": `{"subject":["physics"],"topic":"newton-first-law","stepNumber":1}`,
		"subject as int":   `{"subject":5,"topic":"newton-first-law","stepNumber":1}`,
		"step as true":     `{"subject":"physics","topic":"newton-first-law","stepNumber":true}`,
		"step as object":   `{"subject":"physics","topic":"newton-first-law","stepNumber":{}}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			eng := &fakeEngine{out: llm.CompletionResult{Content: "generic"}}
			r := newRouter(eng, identity.NewMockResolver("mastery", ""))

			rr := do(r, http.MethodPost, "/api/run-step", body)
			require.Equal(t, http.StatusOK, rr.Code)
			assert.JSONEq(t, `{"content":"generic"}`, rr.Body.String())
			require.Equal(t, 1, eng.calls)
			assert.Equal(t, prompt.Fallback, eng.last.Messages[1].Content)
		})
	}
}

func TestRunStep_UpstreamFailure(t *testing.T) {
	eng := &fakeEngine{err: &llm.UpstreamError{
		Provider:   "gpt",
		StatusCode: http.StatusUnauthorized,
		Body:       `{"error":{"message":"Incorrect API key provided: sk-secret"}}`,
	}}
	r := newRouter(eng, identity.NewMockResolver("mastery", ""))

	rr := do(r, http.MethodPost, "/api/run-step", validBody)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, MsgUpstreamFailed, errorOf(t, rr))
	assert.NotContains(t, rr.Body.String(), "sk-secret")
	assert.Equal(t, 1, eng.calls)
}

func TestRunStep_InternalFailure(t *testing.T) {
	cases := map[string]error{
		"transport":   errors.New("dial tcp: connection refused"),
		"missing key": llm.ErrMissingAPIKey,
	}
	for name, engErr := range cases {
		t.Run(name, func(t *testing.T) {
			r := newRouter(&fakeEngine{err: engErr}, identity.NewMockResolver("mastery", ""))

			rr := do(r, http.MethodPost, "/api/run-step", validBody)
			assert.Equal(t, http.StatusInternalServerError, rr.Code)
			assert.Equal(t, MsgInternal, errorOf(t, rr))
		})
	}
}

func TestRunStep_ResolverError(t *testing.T) {
	eng := &fakeEngine{}
	r := newRouter(eng, resolverFunc(func(*http.Request) (*identity.UserIdentity, error) {
		return nil, errors.New("boom")
	}))

	rr := do(r, http.MethodPost, "/api/run-step", validBody)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, MsgInternal, errorOf(t, rr))
	assert.Zero(t, eng.calls)
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

func TestHealthCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name string
		db   Pinger
		want string
	}{
		{"no journal", nil, ""},
		{"db up", fakePinger{}, "up"},
		{"db down", fakePinger{err: errors.New("refused")}, "down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			NewHealthHandler("step-tutor", "1.0.0", "gpt", "gpt-4o-mini", tt.db).RegisterRoutes(r)

			for _, path := range []string{"/health", "/healthz"} {
				rr := do(r, http.MethodGet, path, "")
				require.Equal(t, http.StatusOK, rr.Code)

				var resp HealthResponse
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
				assert.Equal(t, "healthy", resp.Status)
				assert.Equal(t, "step-tutor", resp.Service)
				assert.Equal(t, "1.0.0", resp.Version)
				assert.Equal(t, "gpt", resp.Engine)
				assert.Equal(t, "gpt-4o-mini", resp.Model)
				assert.Equal(t, tt.want, resp.DB)
			}
		})
	}
}
