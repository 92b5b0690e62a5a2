package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wooconduit/conduit/internal/handlers"
	"github.com/wooconduit/conduit/pkg/models"
	"github.com/wooconduit/conduit/pkg/woocommerce"
)

func testLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

// fakeServerRepo keeps server rows in memory and counts writes
type fakeServerRepo struct {
	servers map[uuid.UUID]*models.WooCommerceServer
	creates int
	updates int
}

func newFakeServerRepo(servers ...*models.WooCommerceServer) *fakeServerRepo {
	repo := &fakeServerRepo{servers: map[uuid.UUID]*models.WooCommerceServer{}}
	for _, s := range servers {
		repo.servers[s.ID] = s
	}
	return repo
}

func (r *fakeServerRepo) Create(ctx context.Context, server *models.WooCommerceServer) error {
	r.creates++
	r.servers[server.ID] = server
	return nil
}

func (r *fakeServerRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.WooCommerceServer, error) {
	server, ok := r.servers[id]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "server not found")
	}
	return server, nil
}

func (r *fakeServerRepo) GetByDomain(ctx context.Context, domain string) (*models.WooCommerceServer, error) {
	for _, s := range r.servers {
		if s.Domain == domain {
			return s, nil
		}
	}
	return nil, httperror.NewHTTPError(http.StatusNotFound, "server not found")
}

func (r *fakeServerRepo) List(ctx context.Context) ([]models.WooCommerceServer, error) {
	out := make([]models.WooCommerceServer, 0, len(r.servers))
	for _, s := range r.servers {
		out = append(out, *s)
	}
	return out, nil
}

func (r *fakeServerRepo) ListEnabled(ctx context.Context) ([]models.WooCommerceServer, error) {
	out := make([]models.WooCommerceServer, 0, len(r.servers))
	for _, s := range r.servers {
		if s.Enabled {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeServerRepo) Update(ctx context.Context, server *models.WooCommerceServer) error {
	r.updates++
	r.servers[server.ID] = server
	return nil
}

func (r *fakeServerRepo) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	if s, ok := r.servers[id]; ok {
		s.Enabled = enabled
	}
	return nil
}

func (r *fakeServerRepo) Delete(ctx context.Context, id uuid.UUID) error {
	delete(r.servers, id)
	return nil
}

func (r *fakeServerRepo) GetServer(ctx context.Context, id uuid.UUID) (*models.WooCommerceServer, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeServerRepo) ListEnabledServers(ctx context.Context) ([]*models.WooCommerceServer, error) {
	out := make([]*models.WooCommerceServer, 0, len(r.servers))
	for _, s := range r.servers {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out, nil
}

func serverContext(t *testing.T, method, body string, paramID uuid.UUID) echo.Context {
	t.Helper()

	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := echo.New().NewContext(req, httptest.NewRecorder())
	if paramID != uuid.Nil {
		c.SetParamNames("id")
		c.SetParamValues(paramID.String())
	}
	return c
}

func assertBadRequest(t *testing.T, err error, fragment string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, httperror.IsHTTPError(err), "expected HTTP error, got: %v", err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
	assert.Contains(t, err.Error(), fragment)
}

func TestServersCreate_RejectsBadMappingRule(t *testing.T) {
	repo := newFakeServerRepo()
	registry := woocommerce.NewRegistry(repo, nil, nil, nil, 100, testLogger())
	h := handlers.NewServersHandler(repo, registry, nil, testLogger())

	body := `{
		"name": "Shop",
		"url": "https://shop.example.com",
		"consumer_key": "ck",
		"consumer_secret": "cs",
		"settings": {
			"item_field_map": [
				{"local_field": "name", "remote_path": "meta_data[?key=="}
			]
		}
	}`

	err := h.Create(serverContext(t, http.MethodPost, body, uuid.Nil))
	assertBadRequest(t, err, "invalid expression")
	assert.Zero(t, repo.creates)
}

func TestServersCreate_RejectsEngineOwnedPath(t *testing.T) {
	repo := newFakeServerRepo()
	registry := woocommerce.NewRegistry(repo, nil, nil, nil, 100, testLogger())
	h := handlers.NewServersHandler(repo, registry, nil, testLogger())

	body := `{
		"name": "Shop",
		"url": "https://shop.example.com",
		"consumer_key": "ck",
		"consumer_secret": "cs",
		"settings": {
			"item_field_map": [
				{"local_field": "image", "remote_path": "images[0].src"}
			]
		}
	}`

	err := h.Create(serverContext(t, http.MethodPost, body, uuid.Nil))
	assertBadRequest(t, err, "manages itself")
	assert.Zero(t, repo.creates)
}

func TestServersUpdate_RejectsBadMappingRule(t *testing.T) {
	server := &models.WooCommerceServer{
		ID:      uuid.New(),
		Name:    "Shop",
		URL:     "https://shop.example.com",
		Domain:  "shop.example.com",
		Enabled: true,
	}
	repo := newFakeServerRepo(server)
	registry := woocommerce.NewRegistry(repo, nil, nil, nil, 100, testLogger())
	h := handlers.NewServersHandler(repo, registry, nil, testLogger())

	body := `{
		"settings": {
			"item_field_map": [
				{"local_field": "weight", "remote_path": "weight", "cast": "decimal"}
			]
		}
	}`

	err := h.Update(serverContext(t, http.MethodPut, body, server.ID))
	assertBadRequest(t, err, "unknown cast")
	assert.Zero(t, repo.updates)
}

func TestServersUpdate_AcceptsValidMappingRules(t *testing.T) {
	server := &models.WooCommerceServer{
		ID:      uuid.New(),
		Name:    "Shop",
		URL:     "https://shop.example.com",
		Domain:  "shop.example.com",
		Enabled: true,
	}
	repo := newFakeServerRepo(server)
	registry := woocommerce.NewRegistry(repo, nil, nil, nil, 100, testLogger())
	h := handlers.NewServersHandler(repo, registry, nil, testLogger())

	body := `{
		"settings": {
			"enable_image_sync": true,
			"item_field_map": [
				{"local_field": "description", "remote_path": "short_description", "direction": "pull"}
			]
		}
	}`

	err := h.Update(serverContext(t, http.MethodPut, body, server.ID))
	require.NoError(t, err)
	require.Equal(t, 1, repo.updates)

	saved := repo.servers[server.ID].Settings.GetValue()
	assert.True(t, saved.EnableImageSync)
	require.Len(t, saved.ItemFieldMap, 1)
	assert.Equal(t, "short_description", saved.ItemFieldMap[0].RemotePath)
}
