package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wooconduit/conduit/pkg/models"
	"github.com/wooconduit/conduit/pkg/tracing"
	"github.com/wooconduit/conduit/pkg/woocommerce"
)

// SyncOrderByIdentity reconciles one order given its composite identity
func (e *Engine) SyncOrderByIdentity(ctx context.Context, identity string, force bool) (*Outcome, error) {
	server, remoteID, err := e.serverForIdentity(ctx, identity)
	if err != nil {
		return nil, err
	}
	return e.SyncOrder(ctx, server, remoteID, force)
}

// SyncOrder reconciles one order against one remote WooCommerce order
func (e *Engine) SyncOrder(ctx context.Context, server *models.WooCommerceServer, remoteID int64, force bool) (*Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "SyncEngine.SyncOrder")
	defer span.End()

	identity := woocommerce.Identity(server.Domain, remoteID)

	return e.run(ctx, server, models.SyncResourceOrders, identity, func(ctx context.Context) (Action, error) {
		if !server.SyncOrders {
			return ActionSkipped, &woocommerce.SyncDisabledError{ServerID: server.ID.String(), Reason: "order sync disabled"}
		}

		client, err := e.clients.Get(ctx, server.ID)
		if err != nil {
			return ActionFailed, err
		}

		record, err := client.Get(ctx, "orders", remoteID)
		if err != nil {
			return ActionFailed, err
		}

		return e.syncOrderLocked(ctx, client, identity, record, force)
	})
}

func (e *Engine) syncOrderLocked(ctx context.Context, client RemoteClient, identity string, record *woocommerce.Record, force bool) (Action, error) {
	existing, err := e.orderRepo.GetByIdentity(ctx, identity)
	if err != nil {
		return ActionFailed, err
	}

	if existing == nil {
		if created := recordTime(record, "date_created"); created != nil &&
			!e.config.MinOrderDate.IsZero() && created.Before(e.config.MinOrderDate) {
			return ActionSkipped, nil
		}

		order, err := e.createOrderFromRemote(ctx, client, identity, record)
		if err != nil {
			e.logDiagnostics(ctx, identity, nil, record, err)
			return ActionFailed, err
		}

		if err := e.maybeCapturePayment(ctx, client.Server(), order, record); err != nil {
			e.logDiagnostics(ctx, identity, order, record, err)
			return ActionFailed, err
		}

		if err := e.orderRepo.SetSyncHash(ctx, order.ID, record.RawDateModified); err != nil {
			return ActionFailed, err
		}
		return ActionCreated, nil
	}

	action, err := e.reconcileOrder(ctx, client, existing, record, force)
	if err != nil {
		e.logDiagnostics(ctx, identity, existing, record, err)
		return ActionFailed, err
	}
	return action, nil
}

func (e *Engine) reconcileOrder(ctx context.Context, client RemoteClient, order *models.SalesOrder, record *woocommerce.Record, force bool) (Action, error) {
	action := ActionSkipped
	finalHash := record.RawDateModified

	if force || order.SyncHash == "" || order.SyncHash != record.RawDateModified {
		switch {
		case record.DateModified.After(order.UpdatedAt):
			modified, err := e.pullOrderStatus(ctx, order, record)
			if err != nil {
				return ActionFailed, err
			}
			if modified {
				action = ActionPulled
			}

		case record.DateModified.Before(order.UpdatedAt):
			updated, modified, err := e.pushOrderStatus(ctx, client, order, record)
			if err != nil {
				return ActionFailed, err
			}
			if modified {
				action = ActionPushed
				finalHash = updated.RawDateModified
			}

		default:
		}
	}

	if order.SyncHash != finalHash {
		if err := e.orderRepo.SetSyncHash(ctx, order.ID, finalHash); err != nil {
			return ActionFailed, err
		}
	}

	// Secondary transition, independent of the hash comparison: a submitted
	// order without a payment yet gets one when the store reports it paid.
	if err := e.maybeCapturePayment(ctx, client.Server(), order, record); err != nil {
		return ActionFailed, err
	}

	return action, nil
}

// pullOrderStatus applies the remote order status onto the local order
func (e *Engine) pullOrderStatus(ctx context.Context, order *models.SalesOrder, record *woocommerce.Record) (bool, error) {
	status, err := woocommerce.OrderStatusToLocal(record.GetString("status"))
	if err != nil {
		return false, err
	}
	if status == order.Status {
		return false, nil
	}

	if err := e.orderRepo.UpdateStatus(ctx, order.ID, status); err != nil {
		return false, err
	}
	order.Status = status

	e.logger.WithContext(ctx).Infof("Pulled order status %s for %s", status, order.Identity)
	return true, nil
}

// pushOrderStatus propagates a local status change back to the store
func (e *Engine) pushOrderStatus(ctx context.Context, client RemoteClient, order *models.SalesOrder, record *woocommerce.Record) (*woocommerce.Record, bool, error) {
	remoteStatus, err := woocommerce.OrderStatusToRemote(order.Status)
	if err != nil {
		return record, false, err
	}
	if remoteStatus == record.GetString("status") {
		return record, false, nil
	}

	updated, err := client.Update(ctx, "orders", order.RemoteID, map[string]interface{}{
		"status": remoteStatus,
	})
	if err != nil {
		return record, false, err
	}

	e.logger.WithContext(ctx).Infof("Pushed order status %s for %s", remoteStatus, order.Identity)
	return updated, true, nil
}

// createOrderFromRemote builds the local order graph for a remote order:
// customer, addresses, lines, shipping and totals.
func (e *Engine) createOrderFromRemote(ctx context.Context, client RemoteClient, identity string, record *woocommerce.Record) (*models.SalesOrder, error) {
	server := client.Server()
	settings := server.Settings.GetValue()

	customer, err := e.resolveOrderCustomer(ctx, client, identity, record)
	if err != nil {
		return nil, err
	}

	billingAddr, shippingAddr, err := e.resolveOrderAddresses(ctx, customer, record)
	if err != nil {
		return nil, err
	}

	lines, err := e.buildOrderLines(ctx, client, record, settings)
	if err != nil {
		return nil, err
	}

	status, err := woocommerce.OrderStatusToLocal(record.GetString("status"))
	if err != nil {
		return nil, err
	}

	total := decimalField(record, "total")
	totalTax := decimalField(record, "total_tax")
	shippingTotal := decimalField(record, "shipping_total")

	// A store can report an empty grand total on orders placed through
	// custom plugins; fall back to the line amounts.
	if total.IsZero() && record.GetString("total") == "" {
		for _, line := range lines {
			total = total.Add(line.Amount)
		}
		total = total.Add(shippingTotal)
	}

	currency := record.GetString("currency")
	if currency == "" {
		currency = settings.Currency
	}

	orderDate := time.Now().UTC()
	if created := recordTime(record, "date_created"); created != nil {
		orderDate = *created
	}

	order := &models.SalesOrder{
		Name:       identity,
		CustomerID: customer.ID,

		ServerID: server.ID,
		RemoteID: record.ID,
		Identity: identity,

		Status:    status,
		DocStatus: models.DocStatusDraft,

		Company:   settings.Company,
		PriceList: settings.PriceList,

		Currency:      currency,
		Total:         total,
		TotalTax:      totalTax,
		ShippingTotal: shippingTotal,
		ShippingRule:  resolveShippingRule(record, settings),

		PaymentMethod:      record.GetString("payment_method"),
		PaymentMethodTitle: record.GetString("payment_method_title"),
		DatePaid:           recordTime(record, "date_paid"),

		OrderDate:    orderDate,
		DeliveryDate: orderDate,

		Lines: lines,
	}
	// Taxes either follow the store's actual lines or a local template, not
	// both
	if !settings.UseActualTaxes {
		order.TaxTemplate = settings.TaxTemplate
	}

	if billingAddr != nil {
		order.BillingAddressID = &billingAddr.ID
	}
	if shippingAddr != nil {
		order.ShippingAddressID = &shippingAddr.ID
	}

	if err := e.orderRepo.Create(ctx, order); err != nil {
		return nil, err
	}

	if settings.SubmitOrders && status != models.OrderStatusCancelled && status != models.OrderStatusFailed {
		if err := e.orderRepo.Submit(ctx, order.ID); err != nil {
			return nil, err
		}
		order.DocStatus = models.DocStatusSubmitted
	}

	e.logger.WithContext(ctx).Infof("Created sales order %s with %d lines", identity, len(lines))
	return order, nil
}

// resolveOrderCustomer finds or creates the buyer behind an order. Guests
// key on the remote order id, account holders on billing email plus company.
func (e *Engine) resolveOrderCustomer(ctx context.Context, client RemoteClient, identity string, record *woocommerce.Record) (*models.Customer, error) {
	server := client.Server()
	billing := record.GetMap("billing")

	email, _ := billing["email"].(string)
	company, _ := billing["company"].(string)

	var name string
	remoteCustomerID := record.GetInt("customer_id")
	if remoteCustomerID == 0 {
		name = models.GuestCustomerName(record.ID)
	} else {
		name = models.CustomerName(email, company)
	}
	if name == "" {
		name = models.GuestCustomerName(record.ID)
	}

	customer, err := e.customerRepo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if customer != nil {
		return customer, nil
	}

	mctx := e.mappingContext(identity, models.SyncResourceCustomers, "pull", record, nil, server)
	values, _ := e.fields.Pull(ctx, mctx, e.customerRules)

	customer = &models.Customer{
		Name:          name,
		Email:         stringValue(values["email"]),
		FirstName:     stringValue(values["first_name"]),
		LastName:      stringValue(values["last_name"]),
		Company:       stringValue(values["company"]),
		CustomerGroup: stringValue(values["customer_group"]),
		Territory:     stringValue(values["territory"]),
		ServerID:      &server.ID,
		RemoteID:      remoteCustomerID,
	}

	if err := e.customerRepo.Create(ctx, customer); err != nil {
		return nil, err
	}

	e.logger.WithContext(ctx).Infof("Created customer %s for order %s", name, identity)
	return customer, nil
}

// resolveOrderAddresses creates or reuses the billing and shipping
// addresses. Identical fingerprints collapse into one row serving both
// roles.
func (e *Engine) resolveOrderAddresses(ctx context.Context, customer *models.Customer, record *woocommerce.Record) (*models.Address, *models.Address, error) {
	billing := addressFromMap(customer.ID, "billing", record.GetMap("billing"))
	shipping := addressFromMap(customer.ID, "shipping", record.GetMap("shipping"))

	if billing == nil {
		return nil, shipping, nil
	}

	if shipping != nil && billing.Fingerprint() == shipping.Fingerprint() {
		billing.Kind = "both"
		addr, err := e.customerRepo.GetOrCreateAddress(ctx, billing)
		if err != nil {
			return nil, nil, err
		}
		return addr, addr, nil
	}

	billingAddr, err := e.customerRepo.GetOrCreateAddress(ctx, billing)
	if err != nil {
		return nil, nil, err
	}

	var shippingAddr *models.Address
	if shipping != nil {
		shippingAddr, err = e.customerRepo.GetOrCreateAddress(ctx, shipping)
		if err != nil {
			return nil, nil, err
		}
	}

	return billingAddr, shippingAddr, nil
}

func addressFromMap(customerID uuid.UUID, kind string, m map[string]interface{}) *models.Address {
	if len(m) == 0 {
		return nil
	}

	str := func(key string) string {
		s, _ := m[key].(string)
		return s
	}

	addr := &models.Address{
		CustomerID: customerID,
		Kind:       kind,
		FirstName:  str("first_name"),
		LastName:   str("last_name"),
		Company:    str("company"),
		Address1:   str("address_1"),
		Address2:   str("address_2"),
		City:       str("city"),
		Postcode:   str("postcode"),
		Country:    str("country"),
		State:      str("state"),
		Phone:      str("phone"),
		Email:      str("email"),
	}

	if addr.Address1 == "" && addr.City == "" && addr.Postcode == "" {
		return nil
	}
	return addr
}

// buildOrderLines maps remote line items onto sales order lines, resolving
// each product through the link table and falling back to the deleted
// product placeholder for lines whose product is gone.
func (e *Engine) buildOrderLines(ctx context.Context, client RemoteClient, record *woocommerce.Record, settings models.ServerSettings) ([]models.SalesOrderItem, error) {
	raw := record.GetSlice("line_items")
	lines := make([]models.SalesOrderItem, 0, len(raw))

	for i, entry := range raw {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}

		item, err := e.resolveLineItem(ctx, client, m)
		if err != nil {
			return nil, err
		}

		qty := decimal.NewFromFloat(floatValue(m["quantity"]))
		if qty.IsZero() {
			qty = decimal.NewFromInt(1)
		}

		subtotal := decimalValue(m["subtotal"])
		subtotalTax := decimalValue(m["subtotal_tax"])

		// Tax-inclusive unit rate when posting actual taxes, pre-tax rate
		// when a tax template recomputes them locally
		unitBase := subtotal
		if settings.UseActualTaxes {
			unitBase = subtotal.Add(subtotalTax)
		}
		rate := unitBase.DivRound(qty, 6)

		name, _ := m["name"].(string)
		if name == "" {
			name = item.Name
		}

		line := models.SalesOrderItem{
			Idx:          i + 1,
			ItemCode:     item.Code,
			ItemName:     name,
			Qty:          qty,
			Rate:         rate,
			Amount:       rate.Mul(qty),
			Warehouse:    settings.Warehouse,
			RemoteLineID: int64(floatValue(m["id"])),
		}
		line.Raw.Data = m

		lines = append(lines, line)
	}

	return lines, nil
}

// resolveLineItem maps one remote line to a local item, creating the item
// from the remote product when no link exists yet
func (e *Engine) resolveLineItem(ctx context.Context, client RemoteClient, line map[string]interface{}) (*models.Item, error) {
	productID := int64(floatValue(line["product_id"]))
	variationID := int64(floatValue(line["variation_id"]))

	remoteID := productID
	if variationID != 0 {
		remoteID = variationID
	}

	// A zero product id marks a product deleted from the store
	if remoteID == 0 {
		return e.ensurePlaceholderItem(ctx)
	}

	identity := woocommerce.Identity(client.Domain(), remoteID)
	link, err := e.itemRepo.GetLinkByIdentity(ctx, identity)
	if err != nil {
		return nil, err
	}
	if link != nil {
		return e.itemRepo.GetByID(ctx, link.ItemID)
	}

	var record *woocommerce.Record
	if variationID != 0 {
		record, err = client.GetVariation(ctx, productID, variationID)
	} else {
		record, err = client.Get(ctx, "products", productID)
	}
	if err != nil {
		if woocommerce.IsNotFound(err) {
			return e.ensurePlaceholderItem(ctx)
		}
		return nil, err
	}

	return e.createItemFromRemote(ctx, client, record, 0)
}

// ensurePlaceholderItem returns the shared placeholder for deleted remote
// products, creating it on first use
func (e *Engine) ensurePlaceholderItem(ctx context.Context) (*models.Item, error) {
	item, err := e.itemRepo.GetByCode(ctx, models.DeletedProductCode)
	if err != nil {
		return nil, err
	}
	if item != nil {
		return item, nil
	}

	item = &models.Item{
		Code: models.DeletedProductCode,
		Name: "Deleted WooCommerce Product",
		Type: models.ItemTypeSimple,
	}
	if err := e.itemRepo.Create(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// resolveShippingRule maps the order's first shipping method to a local
// shipping rule; unmapped methods stay as plain shipping totals
func resolveShippingRule(record *woocommerce.Record, settings models.ServerSettings) string {
	for _, entry := range record.GetSlice("shipping_lines") {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		methodID, _ := m["method_id"].(string)
		if methodID == "" {
			continue
		}
		if rule, ok := settings.ShippingRuleMap[methodID]; ok {
			return rule
		}
	}
	return ""
}

// maybeCapturePayment creates the payment entry when every precondition
// holds: payment sync on, method and paid date present, order submitted,
// non-zero total, no payment yet. An unmapped payment method is a hard
// configuration error.
func (e *Engine) maybeCapturePayment(ctx context.Context, server *models.WooCommerceServer, order *models.SalesOrder, record *woocommerce.Record) error {
	if !server.SyncPayments {
		return nil
	}

	method := record.GetString("payment_method")
	if method == "" {
		return nil
	}

	paidAt := recordTime(record, "date_paid")
	if paidAt == nil {
		return nil
	}

	if order.DocStatus != models.DocStatusSubmitted {
		return nil
	}
	if order.Total.IsZero() {
		return nil
	}

	exists, err := e.paymentRepo.ExistsForOrder(ctx, order.ID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	settings := server.Settings.GetValue()
	bankAccount, ok := settings.PaymentMethodMap[method]
	if !ok {
		return &woocommerce.ValidationError{
			Resource: "orders",
			Message:  fmt.Sprintf("no bank account mapped for payment method %q", method),
		}
	}

	reference := record.GetString("transaction_id")
	if reference == "" {
		reference = record.GetString("payment_method_title")
	}

	payment := &models.PaymentEntry{
		OrderID:     order.ID,
		BankAccount: bankAccount,
		Method:      method,
		Amount:      order.Total,
		Currency:    order.Currency,
		PaidAt:      *paidAt,
		Reference:   reference,
	}
	if err := e.paymentRepo.Create(ctx, payment); err != nil {
		return err
	}

	e.logger.WithContext(ctx).Infof("Captured payment of %s %s for order %s", order.Total, order.Currency, order.Identity)
	return nil
}

// decimalField reads a money field from the record
func decimalField(record *woocommerce.Record, key string) decimal.Decimal {
	return decimalValue(record.Data[key])
}

func decimalValue(v interface{}) decimal.Decimal {
	switch n := v.(type) {
	case string:
		d, err := decimal.NewFromString(n)
		if err != nil {
			return decimal.Zero
		}
		return d
	case float64:
		return decimal.NewFromFloat(n)
	case int64:
		return decimal.NewFromInt(n)
	default:
		return decimal.Zero
	}
}

// recordTime reads a timestamp field, preferring the GMT variant
func recordTime(record *woocommerce.Record, key string) *time.Time {
	for _, k := range []string{key + "_gmt", key} {
		s, _ := record.Data[k].(string)
		if s == "" {
			continue
		}
		if t, err := time.Parse(woocommerce.DateFormat, s); err == nil {
			return &t
		}
	}
	return nil
}
