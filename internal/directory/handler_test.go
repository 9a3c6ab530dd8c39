package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openGate passes every request through while recording which capability
// sets the routes demand.
type openGate struct {
	requiredAll [][]string
	requiredAny [][]string
}

func (g *openGate) RequireAll(caps ...string) func(http.Handler) http.Handler {
	g.requiredAll = append(g.requiredAll, caps)
	return func(next http.Handler) http.Handler { return next }
}

func (g *openGate) RequireAny(caps ...string) func(http.Handler) http.Handler {
	g.requiredAny = append(g.requiredAny, caps)
	return func(next http.Handler) http.Handler { return next }
}

func newTestHandler(t *testing.T) (http.Handler, *mockRepository, *openGate) {
	t.Helper()
	repo := newMockRepository()
	svc := NewService(repo, &mockInvalidator{}, &mockAuditRecorder{}, nil)
	gate := &openGate{}
	handler := NewHandler(nil, svc, gate)

	r := chi.NewRouter()
	handler.MountRoutes(r)
	return r, repo, gate
}

func doJSON(t *testing.T, server http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func TestRoleCRUDOverHTTP(t *testing.T) {
	server, _, _ := newTestHandler(t)

	rec := doJSON(t, server, http.MethodPost, "/roles/", `{"slug":"customer","name":"Customer","description":"Invests in properties"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created roleView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "customer", created.Slug)
	assert.False(t, created.IsSystem)

	rec = doJSON(t, server, http.MethodGet, "/roles/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var roles []roleView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &roles))
	require.Len(t, roles, 1)

	rec = doJSON(t, server, http.MethodPut, "/roles/1", `{"name":"Retail Customer"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, server, http.MethodDelete, "/roles/1", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, server, http.MethodGet, "/roles/1", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRoleBySlugOverHTTP(t *testing.T) {
	server, _, _ := newTestHandler(t)

	rec := doJSON(t, server, http.MethodPost, "/roles/", `{"slug":"channel_partner","name":"Channel Partner"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, server, http.MethodGet, "/roles/channel_partner", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var role roleView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &role))
	assert.Equal(t, "channel_partner", role.Slug)

	rec = doJSON(t, server, http.MethodGet, "/roles/no_such_role", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetCapabilityByCodeOverHTTP(t *testing.T) {
	server, _, _ := newTestHandler(t)

	rec := doJSON(t, server, http.MethodPost, "/capabilities/", `{"code":"wallet.withdraw","name":"Withdraw Funds"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, server, http.MethodGet, "/capabilities/wallet.withdraw", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cap capabilityView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cap))
	assert.Equal(t, "wallet.withdraw", cap.Code)

	rec = doJSON(t, server, http.MethodGet, "/capabilities/wallet.transfer", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, server, http.MethodGet, "/capabilities/NotACode", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRoleDuplicateReturnsConflict(t *testing.T) {
	server, _, _ := newTestHandler(t)

	rec := doJSON(t, server, http.MethodPost, "/roles/", `{"slug":"customer","name":"Customer"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, server, http.MethodPost, "/roles/", `{"slug":"customer","name":"Customer"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeleteSystemRoleReturnsConflict(t *testing.T) {
	server, repo, _ := newTestHandler(t)
	_, err := repo.CreateRole(context.Background(), "admin", "Administrator", "", true)
	require.NoError(t, err)

	rec := doJSON(t, server, http.MethodDelete, "/roles/1", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateCapabilityValidatesCode(t *testing.T) {
	server, _, _ := newTestHandler(t)

	for _, bad := range []string{"Investments.Create", "investments", "investments.", ".create", "investments create", "investments.create.all"} {
		rec := doJSON(t, server, http.MethodPost, "/capabilities/", `{"code":"`+bad+`"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "code %q must be rejected", bad)
	}

	rec := doJSON(t, server, http.MethodPost, "/capabilities/", `{"code":"investments.view_all","name":"View All Investments"}`)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestGrantAndRevokeCapabilityOverHTTP(t *testing.T) {
	server, repo, _ := newTestHandler(t)

	rec := doJSON(t, server, http.MethodPost, "/roles/", `{"slug":"customer","name":"Customer"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, server, http.MethodPost, "/capabilities/", `{"code":"wallet.view"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, server, http.MethodPost, "/roles/1/capabilities/1", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	caps, err := repo.CapabilitiesOf(context.Background(), 1)
	require.NoError(t, err)
	assert.Contains(t, caps, "wallet.view")

	rec = doJSON(t, server, http.MethodGet, "/roles/1/capabilities", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var views []capabilityView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)

	rec = doJSON(t, server, http.MethodDelete, "/roles/1/capabilities/1", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	caps, err = repo.CapabilitiesOf(context.Background(), 1)
	require.NoError(t, err)
	assert.NotContains(t, caps, "wallet.view")
}

func TestGrantToUnknownRoleReturnsNotFound(t *testing.T) {
	server, _, _ := newTestHandler(t)

	rec := doJSON(t, server, http.MethodPost, "/roles/42/capabilities/1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPrincipalLifecycleOverHTTP(t *testing.T) {
	server, _, _ := newTestHandler(t)

	rec := doJSON(t, server, http.MethodPost, "/principals/", `{"subject":"customer@assetkart.local","email":"customer@assetkart.local","name":"Demo Customer"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var p principalView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "active", p.Status)
	assert.Nil(t, p.RoleID)

	rec = doJSON(t, server, http.MethodPost, "/roles/", `{"slug":"customer","name":"Customer"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, server, http.MethodPut, "/principals/1/role", `{"role_id":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	require.NotNil(t, p.RoleID)
	assert.Equal(t, int64(1), *p.RoleID)

	rec = doJSON(t, server, http.MethodPut, "/principals/1/status", `{"status":"suspended"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "suspended", p.Status)

	rec = doJSON(t, server, http.MethodPut, "/principals/1/status", `{"status":"invalid"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterPrincipalRejectsBadEmail(t *testing.T) {
	server, _, _ := newTestHandler(t)

	rec := doJSON(t, server, http.MethodPost, "/principals/", `{"subject":"x","email":"not-an-email"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoutesDeclareCapabilities(t *testing.T) {
	_, _, gate := newTestHandler(t)

	require.NotEmpty(t, gate.requiredAll)
	require.NotEmpty(t, gate.requiredAny)
	var all []string
	for _, caps := range gate.requiredAll {
		all = append(all, caps...)
	}
	assert.Contains(t, all, "roles.create")
	assert.Contains(t, all, "users.manage_roles")
	assert.Contains(t, all, "permissions.manage")
}
