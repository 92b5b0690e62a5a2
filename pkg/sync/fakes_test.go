package sync_test

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wooconduit/conduit/pkg/models"
	"github.com/wooconduit/conduit/pkg/redis"
	syncpkg "github.com/wooconduit/conduit/pkg/sync"
	"github.com/wooconduit/conduit/pkg/woocommerce"
)

func testLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func testLocker(t *testing.T) *redis.Locker {
	t.Helper()

	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	client, err := redis.NewClient(redis.Config{Host: mr.Host(), Port: port}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return redis.NewLocker(client, "test:sync:")
}

// fakeServerRepo serves a fixed set of servers
type fakeServerRepo struct {
	servers map[uuid.UUID]*models.WooCommerceServer
}

func newFakeServerRepo(servers ...*models.WooCommerceServer) *fakeServerRepo {
	r := &fakeServerRepo{servers: map[uuid.UUID]*models.WooCommerceServer{}}
	for _, s := range servers {
		r.servers[s.ID] = s
	}
	return r
}

func (r *fakeServerRepo) Create(ctx context.Context, server *models.WooCommerceServer) error {
	r.servers[server.ID] = server
	return nil
}

func (r *fakeServerRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.WooCommerceServer, error) {
	return r.servers[id], nil
}

func (r *fakeServerRepo) GetByDomain(ctx context.Context, domain string) (*models.WooCommerceServer, error) {
	for _, s := range r.servers {
		if s.Domain == domain {
			return s, nil
		}
	}
	return nil, nil
}

func (r *fakeServerRepo) List(ctx context.Context) ([]models.WooCommerceServer, error) {
	out := make([]models.WooCommerceServer, 0, len(r.servers))
	for _, s := range r.servers {
		out = append(out, *s)
	}
	return out, nil
}

func (r *fakeServerRepo) ListEnabled(ctx context.Context) ([]models.WooCommerceServer, error) {
	out := []models.WooCommerceServer{}
	for _, s := range r.servers {
		if s.Enabled {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeServerRepo) Update(ctx context.Context, server *models.WooCommerceServer) error {
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

// fakeItemRepo keeps items and links in memory
type fakeItemRepo struct {
	mu      sync.Mutex
	items   map[uuid.UUID]*models.Item
	links   map[string]*models.ItemLink
	updates int
}

func newFakeItemRepo() *fakeItemRepo {
	return &fakeItemRepo{
		items: map[uuid.UUID]*models.Item{},
		links: map[string]*models.ItemLink{},
	}
}

func (r *fakeItemRepo) Create(ctx context.Context, item *models.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item.ID = uuid.New()
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	clone := *item
	r.items[item.ID] = &clone
	return nil
}

func (r *fakeItemRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("item %s not found", id)
	}
	clone := *item
	return &clone, nil
}

func (r *fakeItemRepo) GetByCode(ctx context.Context, code string) (*models.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.items {
		if item.Code == code {
			clone := *item
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *fakeItemRepo) Update(ctx context.Context, item *models.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item.UpdatedAt = time.Now().UTC()
	clone := *item
	r.items[item.ID] = &clone
	r.updates++
	return nil
}

func (r *fakeItemRepo) ListChildren(ctx context.Context, parentCode string) ([]models.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Item{}
	for _, item := range r.items {
		if item.ParentCode != nil && *item.ParentCode == parentCode {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (r *fakeItemRepo) CreateLink(ctx context.Context, link *models.ItemLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	link.ID = uuid.New()
	now := time.Now().UTC()
	link.CreatedAt = now
	link.UpdatedAt = now
	clone := *link
	r.links[link.Identity] = &clone
	return nil
}

func (r *fakeItemRepo) GetLinkByIdentity(ctx context.Context, identity string) (*models.ItemLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	link, ok := r.links[identity]
	if !ok {
		return nil, nil
	}
	clone := *link
	return &clone, nil
}

func (r *fakeItemRepo) ListLinksByItem(ctx context.Context, itemID uuid.UUID) ([]models.ItemLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.ItemLink{}
	for _, link := range r.links {
		if link.ItemID == itemID {
			out = append(out, *link)
		}
	}
	return out, nil
}

func (r *fakeItemRepo) ListEnabledLinksByServer(ctx context.Context, serverID uuid.UUID) ([]models.ItemLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.ItemLink{}
	for _, link := range r.links {
		if link.ServerID == serverID && link.Enabled {
			out = append(out, *link)
		}
	}
	return out, nil
}

func (r *fakeItemRepo) SetSyncHash(ctx context.Context, linkID uuid.UUID, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, link := range r.links {
		if link.ID == linkID {
			// Deliberately does not bump UpdatedAt, matching the real store
			link.SyncHash = hash
			return nil
		}
	}
	return fmt.Errorf("link %s not found", linkID)
}

func (r *fakeItemRepo) ClearSyncHashes(ctx context.Context, itemID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, link := range r.links {
		if link.ItemID == itemID {
			link.SyncHash = ""
		}
	}
	return nil
}

func (r *fakeItemRepo) SetLinkEnabled(ctx context.Context, linkID uuid.UUID, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, link := range r.links {
		if link.ID == linkID {
			link.Enabled = enabled
		}
	}
	return nil
}

// fakeOrderRepo keeps orders in memory
type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*models.SalesOrder
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: map[string]*models.SalesOrder{}}
}

func (r *fakeOrderRepo) Create(ctx context.Context, order *models.SalesOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order.ID = uuid.New()
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now
	for i := range order.Lines {
		order.Lines[i].ID = uuid.New()
		order.Lines[i].OrderID = order.ID
	}
	clone := *order
	r.orders[order.Identity] = &clone
	return nil
}

func (r *fakeOrderRepo) GetByIdentity(ctx context.Context, identity string) (*models.SalesOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[identity]
	if !ok {
		return nil, nil
	}
	clone := *order
	return &clone, nil
}

func (r *fakeOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.SalesOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, order := range r.orders {
		if order.ID == id {
			clone := *order
			return &clone, nil
		}
	}
	return nil, fmt.Errorf("order %s not found", id)
}

func (r *fakeOrderRepo) ListModifiedSince(ctx context.Context, serverID uuid.UUID, since sql.NullTime) ([]models.SalesOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.SalesOrder{}
	for _, order := range r.orders {
		if order.ServerID != serverID {
			continue
		}
		if since.Valid && !order.UpdatedAt.After(since.Time) {
			continue
		}
		out = append(out, *order)
	}
	return out, nil
}

func (r *fakeOrderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, order := range r.orders {
		if order.ID == id {
			order.Status = status
			order.UpdatedAt = time.Now().UTC()
		}
	}
	return nil
}

func (r *fakeOrderRepo) Submit(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, order := range r.orders {
		if order.ID == id {
			order.DocStatus = models.DocStatusSubmitted
		}
	}
	return nil
}

func (r *fakeOrderRepo) SetSyncHash(ctx context.Context, id uuid.UUID, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, order := range r.orders {
		if order.ID == id {
			order.SyncHash = hash
		}
	}
	return nil
}

// fakeCustomerRepo keeps customers and addresses in memory
type fakeCustomerRepo struct {
	mu        sync.Mutex
	customers map[string]*models.Customer
	addresses []*models.Address
}

func newFakeCustomerRepo() *fakeCustomerRepo {
	return &fakeCustomerRepo{customers: map[string]*models.Customer{}}
}

func (r *fakeCustomerRepo) Create(ctx context.Context, customer *models.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	customer.ID = uuid.New()
	clone := *customer
	r.customers[customer.Name] = &clone
	return nil
}

func (r *fakeCustomerRepo) GetByName(ctx context.Context, name string) (*models.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	customer, ok := r.customers[name]
	if !ok {
		return nil, nil
	}
	clone := *customer
	return &clone, nil
}

func (r *fakeCustomerRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.customers {
		if c.ID == id {
			clone := *c
			return &clone, nil
		}
	}
	return nil, fmt.Errorf("customer %s not found", id)
}

func (r *fakeCustomerRepo) Update(ctx context.Context, customer *models.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *customer
	r.customers[customer.Name] = &clone
	return nil
}

func (r *fakeCustomerRepo) FindAddress(ctx context.Context, customerID uuid.UUID, address *models.Address) (*models.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.addresses {
		if a.CustomerID == customerID && a.Fingerprint() == address.Fingerprint() {
			clone := *a
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *fakeCustomerRepo) CreateAddress(ctx context.Context, address *models.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	address.ID = uuid.New()
	clone := *address
	r.addresses = append(r.addresses, &clone)
	return nil
}

func (r *fakeCustomerRepo) GetOrCreateAddress(ctx context.Context, address *models.Address) (*models.Address, error) {
	existing, err := r.FindAddress(ctx, address.CustomerID, address)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	if err := r.CreateAddress(ctx, address); err != nil {
		return nil, err
	}
	return address, nil
}

// fakePaymentRepo keeps payments in memory
type fakePaymentRepo struct {
	mu       sync.Mutex
	payments []*models.PaymentEntry
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{}
}

func (r *fakePaymentRepo) Create(ctx context.Context, payment *models.PaymentEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	payment.ID = uuid.New()
	clone := *payment
	r.payments = append(r.payments, &clone)
	return nil
}

func (r *fakePaymentRepo) ExistsForOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.OrderID == orderID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakePaymentRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.PaymentEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.PaymentEntry{}
	for _, p := range r.payments {
		if p.OrderID == orderID {
			out = append(out, *p)
		}
	}
	return out, nil
}

// fakeSyncStateRepo keeps watermarks in memory
type fakeSyncStateRepo struct {
	mu     sync.Mutex
	states map[string]*models.SyncState
}

func newFakeSyncStateRepo() *fakeSyncStateRepo {
	return &fakeSyncStateRepo{states: map[string]*models.SyncState{}}
}

func stateKey(serverID uuid.UUID, resource models.SyncResource) string {
	return serverID.String() + ":" + string(resource)
}

func (r *fakeSyncStateRepo) Get(ctx context.Context, serverID uuid.UUID, resource models.SyncResource) (*models.SyncState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[stateKey(serverID, resource)]
	if !ok {
		return nil, nil
	}
	clone := *state
	return &clone, nil
}

func (r *fakeSyncStateRepo) Advance(ctx context.Context, serverID uuid.UUID, resource models.SyncResource, syncedAt time.Time, runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[stateKey(serverID, resource)] = &models.SyncState{
		ServerID:     serverID,
		Resource:     resource,
		LastSyncedAt: &syncedAt,
		LastRunID:    runID,
	}
	return nil
}

func (r *fakeSyncStateRepo) RecordError(ctx context.Context, serverID uuid.UUID, resource models.SyncResource, runID string, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := stateKey(serverID, resource)
	state, ok := r.states[key]
	if !ok {
		state = &models.SyncState{ServerID: serverID, Resource: resource}
		r.states[key] = state
	}
	state.LastRunID = runID
	state.LastError = errMsg
	return nil
}

// fakeClient simulates one WooCommerce store
type fakeClient struct {
	server     *models.WooCommerceServer
	products   map[int64]*woocommerce.Record
	orders     map[int64]*woocommerce.Record
	variations map[int64]map[int64]*woocommerce.Record

	updates []map[string]interface{}
}

func newFakeClient(server *models.WooCommerceServer) *fakeClient {
	return &fakeClient{
		server:     server,
		products:   map[int64]*woocommerce.Record{},
		orders:     map[int64]*woocommerce.Record{},
		variations: map[int64]map[int64]*woocommerce.Record{},
	}
}

func (c *fakeClient) Domain() string                    { return c.server.Domain }
func (c *fakeClient) Server() *models.WooCommerceServer { return c.server }
func (c *fakeClient) PageLength() int                   { return 100 }

func (c *fakeClient) Get(ctx context.Context, resource string, id int64) (*woocommerce.Record, error) {
	var store map[int64]*woocommerce.Record
	switch resource {
	case "products":
		store = c.products
	case "orders":
		store = c.orders
	default:
		return nil, fmt.Errorf("unknown resource %s", resource)
	}

	record, ok := store[id]
	if !ok {
		return nil, &woocommerce.NotFoundError{Resource: resource, ID: strconv.FormatInt(id, 10)}
	}
	return record, nil
}

func (c *fakeClient) List(ctx context.Context, resource string, opts woocommerce.ListOptions) ([]*woocommerce.Record, int, error) {
	var store map[int64]*woocommerce.Record
	switch resource {
	case "products":
		store = c.products
	case "orders":
		store = c.orders
	default:
		return nil, 0, fmt.Errorf("unknown resource %s", resource)
	}

	all := make([]*woocommerce.Record, 0, len(store))
	for _, record := range store {
		if opts.ModifiedAfter != nil && !record.DateModified.After(*opts.ModifiedAfter) {
			continue
		}
		all = append(all, record)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	if opts.Offset >= len(all) {
		return nil, len(all), nil
	}
	end := len(all)
	if opts.PerPage > 0 && opts.Offset+opts.PerPage < end {
		end = opts.Offset + opts.PerPage
	}
	return all[opts.Offset:end], len(all), nil
}

func (c *fakeClient) Update(ctx context.Context, resource string, id int64, payload map[string]interface{}) (*woocommerce.Record, error) {
	c.updates = append(c.updates, payload)

	record, err := c.Get(ctx, resource, id)
	if err != nil {
		return nil, err
	}

	data := map[string]interface{}{}
	for k, v := range record.Data {
		data[k] = v
	}
	for k, v := range payload {
		data[k] = v
	}
	data["date_modified_gmt"] = time.Now().UTC().Format(woocommerce.DateFormat)

	updated, err := woocommerce.ParseRecord(resource, woocommerce.RecordFull, data)
	if err != nil {
		return nil, err
	}

	switch resource {
	case "products":
		c.products[id] = updated
	case "orders":
		c.orders[id] = updated
	}
	return updated, nil
}

func (c *fakeClient) ListVariations(ctx context.Context, parentID int64, opts woocommerce.ListOptions) ([]*woocommerce.Record, int, error) {
	vars := c.variations[parentID]
	all := make([]*woocommerce.Record, 0, len(vars))
	for _, record := range vars {
		all = append(all, record)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	if opts.Offset >= len(all) {
		return nil, len(all), nil
	}
	end := len(all)
	if opts.PerPage > 0 && opts.Offset+opts.PerPage < end {
		end = opts.Offset + opts.PerPage
	}
	return all[opts.Offset:end], len(all), nil
}

func (c *fakeClient) GetVariation(ctx context.Context, parentID, variationID int64) (*woocommerce.Record, error) {
	record, ok := c.variations[parentID][variationID]
	if !ok {
		return nil, &woocommerce.NotFoundError{Resource: "variations", ID: strconv.FormatInt(variationID, 10)}
	}
	return record, nil
}

func (c *fakeClient) UpdateVariation(ctx context.Context, parentID, variationID int64, payload map[string]interface{}) (*woocommerce.Record, error) {
	c.updates = append(c.updates, payload)

	record, err := c.GetVariation(ctx, parentID, variationID)
	if err != nil {
		return nil, err
	}

	data := map[string]interface{}{}
	for k, v := range record.Data {
		data[k] = v
	}
	for k, v := range payload {
		data[k] = v
	}
	data["date_modified_gmt"] = time.Now().UTC().Format(woocommerce.DateFormat)

	updated, err := woocommerce.ParseRecord("variations", woocommerce.RecordFull, data)
	if err != nil {
		return nil, err
	}
	c.variations[parentID][variationID] = updated
	return updated, nil
}

// fakeSource hands out one fake client per server
type fakeSource struct {
	clients map[uuid.UUID]*fakeClient
}

func newFakeSource(clients ...*fakeClient) *fakeSource {
	s := &fakeSource{clients: map[uuid.UUID]*fakeClient{}}
	for _, c := range clients {
		s.clients[c.server.ID] = c
	}
	return s
}

func (s *fakeSource) Get(ctx context.Context, serverID uuid.UUID) (syncpkg.RemoteClient, error) {
	client, ok := s.clients[serverID]
	if !ok {
		return nil, fmt.Errorf("no client for server %s", serverID)
	}
	return client, nil
}
