package repositories_test

import (
	"context"
	"net/http"
	"os"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wooconduit/conduit/pkg/database"
	"github.com/wooconduit/conduit/pkg/models"
	"github.com/wooconduit/conduit/pkg/repositories"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func getTestDB(t *testing.T) database.DB {
	// Use environment variables or defaults for test DB
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "coordinator"
	}
	dbUser := os.Getenv("DB_USER_NAME")
	if dbUser == "" {
		dbUser = "user"
	}
	dbPass := os.Getenv("DB_PASSWORD")
	if dbPass == "" {
		dbPass = "password"
	}
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "conduit"
	}

	dsn := "host=" + dbHost + " user=" + dbUser + " password=" + dbPass + " dbname=" + dbName + " sslmode=disable"
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err, "Failed to connect to test database")

	return database.NewDatabaseInstance(db, getTestLogger())
}

// assertNotFound asserts that err is an HTTP 404 error
func assertNotFound(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, httperror.IsHTTPError(err), "expected HTTP error, got: %v", err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err), "expected 404, got: %d", httperror.GetStatusCode(err))
}

func newTestServer(name, url string) *models.WooCommerceServer {
	server := &models.WooCommerceServer{
		Name:           name,
		URL:            url,
		ConsumerKey:    "ck_test",
		ConsumerSecret: "cs_test",
		Enabled:        true,
		SyncItems:      true,
		SyncOrders:     true,
	}
	server.Settings.Data = models.ServerSettings{
		Warehouse: "Stores - C",
		Company:   "Conduit Test Co",
	}
	return server
}

func TestServerRepository_CRUD(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	logger := getTestLogger()
	repo := repositories.NewServerRepository(db, logger)

	ctx := context.Background()

	server := newTestServer("Test Store", "https://shop.example.com/")
	require.NoError(t, server.NormalizeURL())

	err := repo.Create(ctx, server)
	require.NoError(t, err)
	assert.NotEqual(t, "", server.ID.String())
	assert.Equal(t, "shop.example.com", server.Domain)
	assert.False(t, server.CreatedAt.IsZero())

	// Test GetByID
	fetched, err := repo.GetByID(ctx, server.ID)
	require.NoError(t, err)
	assert.Equal(t, server.ID, fetched.ID)
	assert.Equal(t, "Test Store", fetched.Name)
	assert.Equal(t, "Stores - C", fetched.Settings.GetValue().Warehouse)

	// Test GetByDomain
	byDomain, err := repo.GetByDomain(ctx, "shop.example.com")
	require.NoError(t, err)
	assert.Equal(t, server.ID, byDomain.ID)

	// Test List
	servers, err := repo.List(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(servers), 1)

	// Test Update
	server.Name = "Renamed Store"
	err = repo.Update(ctx, server)
	require.NoError(t, err)

	updated, err := repo.GetByID(ctx, server.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed Store", updated.Name)

	// Test SetEnabled removes the server from the enabled list
	err = repo.SetEnabled(ctx, server.ID, false)
	require.NoError(t, err)

	enabled, err := repo.ListEnabled(ctx)
	require.NoError(t, err)
	for _, s := range enabled {
		assert.NotEqual(t, server.ID, s.ID)
	}

	// Test Delete
	err = repo.Delete(ctx, server.ID)
	require.NoError(t, err)

	_, err = repo.GetByID(ctx, server.ID)
	assertNotFound(t, err)
}
