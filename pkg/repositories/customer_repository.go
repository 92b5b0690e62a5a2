package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/wooconduit/conduit/pkg/database"
	"github.com/wooconduit/conduit/pkg/models"
	"github.com/wooconduit/conduit/pkg/tracing"
)

const (
	customersTable = "customers"
	addressesTable = "addresses"
)

var (
	customerStruct = database.NewStruct(new(models.Customer))
	addressStruct  = database.NewStruct(new(models.Address))
)

// CustomerRepository handles database operations for customers and addresses
type CustomerRepository struct {
	*Repository
}

// NewCustomerRepository creates a new customer repository
func NewCustomerRepository(db database.DB, logger ectologger.Logger) *CustomerRepository {
	return &CustomerRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create creates a new customer
func (r *CustomerRepository) Create(ctx context.Context, customer *models.Customer) error {
	ctx, span := tracing.StartSpan(ctx, "CustomerRepository.Create")
	defer span.End()

	if customer.ID == uuid.Nil {
		customer.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(customersTable).
		Cols("id", "name", "email", "first_name", "last_name", "company",
			"customer_group", "territory", "server_id", "remote_id", "created_at", "updated_at").
		Values(customer.ID, customer.Name, customer.Email, customer.FirstName, customer.LastName, customer.Company,
			customer.CustomerGroup, customer.Territory, customer.ServerID, customer.RemoteID,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&customer.CreatedAt, &customer.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"customer_name": customer.Name,
		}).Error("failed to create customer")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create customer")
	}

	return nil
}

// GetByName retrieves a customer by resolution key. Returns nil when absent.
func (r *CustomerRepository) GetByName(ctx context.Context, name string) (*models.Customer, error) {
	ctx, span := tracing.StartSpan(ctx, "CustomerRepository.GetByName")
	defer span.End()

	sb := customerStruct.SelectFrom(customersTable)
	sb.Where(sb.Equal("name", name))

	query, args := sb.Build()
	var customer models.Customer
	err := r.DB().GetContext(ctx, &customer, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"customer_name": name,
		}).Error("failed to get customer by name")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get customer")
	}

	return &customer, nil
}

// GetByID retrieves a customer by ID
func (r *CustomerRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	ctx, span := tracing.StartSpan(ctx, "CustomerRepository.GetByID")
	defer span.End()

	sb := customerStruct.SelectFrom(customersTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var customer models.Customer
	err := r.DB().GetContext(ctx, &customer, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "customer %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"customer_id": id,
		}).Error("failed to get customer by ID")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get customer")
	}

	return &customer, nil
}

// Update updates a customer
func (r *CustomerRepository) Update(ctx context.Context, customer *models.Customer) error {
	ctx, span := tracing.StartSpan(ctx, "CustomerRepository.Update")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(customersTable)
	ub.Set(
		ub.Assign("email", customer.Email),
		ub.Assign("first_name", customer.FirstName),
		ub.Assign("last_name", customer.LastName),
		ub.Assign("company", customer.Company),
		ub.Assign("customer_group", customer.CustomerGroup),
		ub.Assign("territory", customer.Territory),
		ub.Assign("server_id", customer.ServerID),
		ub.Assign("remote_id", customer.RemoteID),
		ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
	)
	ub.Where(ub.Equal("id", customer.ID))

	query, args := ub.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"customer_id": customer.ID,
		}).Error("failed to update customer")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update customer")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "customer %s does not exist", customer.ID)
	}

	return nil
}

// FindAddress looks for an existing address matching the fingerprint fields.
// Returns nil when no duplicate exists.
func (r *CustomerRepository) FindAddress(ctx context.Context, customerID uuid.UUID, address *models.Address) (*models.Address, error) {
	ctx, span := tracing.StartSpan(ctx, "CustomerRepository.FindAddress")
	defer span.End()

	sb := addressStruct.SelectFrom(addressesTable)
	sb.Where(sb.Equal("customer_id", customerID))

	query, args := sb.Build()
	candidates := []models.Address{}
	if err := r.DB().SelectContext(ctx, &candidates, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"customer_id": customerID,
		}).Error("failed to search addresses")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to search addresses")
	}

	want := address.Fingerprint()
	for i := range candidates {
		if candidates[i].Fingerprint() == want {
			return &candidates[i], nil
		}
	}

	return nil, nil
}

// CreateAddress creates a new address row
func (r *CustomerRepository) CreateAddress(ctx context.Context, address *models.Address) error {
	ctx, span := tracing.StartSpan(ctx, "CustomerRepository.CreateAddress")
	defer span.End()

	if address.ID == uuid.Nil {
		address.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(addressesTable).
		Cols("id", "customer_id", "kind", "first_name", "last_name", "company",
			"address_1", "address_2", "city", "postcode", "country", "state", "phone", "email",
			"created_at", "updated_at").
		Values(address.ID, address.CustomerID, address.Kind, address.FirstName, address.LastName, address.Company,
			address.Address1, address.Address2, address.City, address.Postcode, address.Country, address.State,
			address.Phone, address.Email, sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&address.CreatedAt, &address.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"customer_id": address.CustomerID,
		}).Error("failed to create address")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create address")
	}

	return nil
}

// GetOrCreateAddress dedups against the fingerprint before inserting
func (r *CustomerRepository) GetOrCreateAddress(ctx context.Context, address *models.Address) (*models.Address, error) {
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
