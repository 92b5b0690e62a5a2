package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Customer is the local buyer entity. Name doubles as the resolution key:
// email for registered buyers, "email-company" when the order carries a
// company, "Guest-{order id}" for guest checkouts.
type Customer struct {
	ID    uuid.UUID `db:"id" json:"id"`
	Name  string    `db:"name" json:"name" validate:"required"`
	Email string    `db:"email" json:"email,omitempty"`

	FirstName string `db:"first_name" json:"first_name,omitempty"`
	LastName  string `db:"last_name" json:"last_name,omitempty"`
	Company   string `db:"company" json:"company,omitempty"`

	CustomerGroup string `db:"customer_group" json:"customer_group,omitempty"`
	Territory     string `db:"territory" json:"territory,omitempty"`

	ServerID *uuid.UUID `db:"server_id" json:"server_id,omitempty"`
	RemoteID int64      `db:"remote_id" json:"remote_id,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (Customer) TableName() string {
	return "customers"
}

// GuestCustomerName builds the identity used for guest checkouts
func GuestCustomerName(orderID int64) string {
	return fmt.Sprintf("Guest-%d", orderID)
}

// CustomerName resolves the identity for a registered buyer
func CustomerName(email, company string) string {
	email = strings.TrimSpace(email)
	company = strings.TrimSpace(company)
	if company == "" {
		return email
	}
	return email + "-" + company
}

// Address belongs to a customer. Dedup happens over the fingerprint fields,
// so the same postal address pasted into two orders maps to one row.
type Address struct {
	ID         uuid.UUID `db:"id" json:"id"`
	CustomerID uuid.UUID `db:"customer_id" json:"customer_id"`

	Kind string `db:"kind" json:"kind"` // billing or shipping

	FirstName string `db:"first_name" json:"first_name,omitempty"`
	LastName  string `db:"last_name" json:"last_name,omitempty"`
	Company   string `db:"company" json:"company,omitempty"`
	Address1  string `db:"address_1" json:"address_1,omitempty"`
	Address2  string `db:"address_2" json:"address_2,omitempty"`
	City      string `db:"city" json:"city,omitempty"`
	Postcode  string `db:"postcode" json:"postcode,omitempty"`
	Country   string `db:"country" json:"country,omitempty"`
	State     string `db:"state" json:"state,omitempty"`
	Phone     string `db:"phone" json:"phone,omitempty"`
	Email     string `db:"email" json:"email,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (Address) TableName() string {
	return "addresses"
}

// Fingerprint returns the dedup key for an address. Field order matters and
// must not change once rows exist.
func (a *Address) Fingerprint() string {
	parts := []string{
		a.FirstName,
		a.LastName,
		a.Company,
		a.Address1,
		a.Address2,
		a.City,
		a.Postcode,
		a.Country,
		a.State,
		a.Phone,
	}
	for i, p := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return strings.Join(parts, "|")
}
