package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/wooconduit/conduit/pkg/models"
	"github.com/wooconduit/conduit/pkg/tracing"
	"github.com/wooconduit/conduit/pkg/woocommerce"
)

// SyncItemByIdentity reconciles one item link given its composite identity
func (e *Engine) SyncItemByIdentity(ctx context.Context, identity string, force bool) (*Outcome, error) {
	server, remoteID, err := e.serverForIdentity(ctx, identity)
	if err != nil {
		return nil, err
	}
	return e.SyncItem(ctx, server, remoteID, force)
}

// SyncItem reconciles one item against one remote product
func (e *Engine) SyncItem(ctx context.Context, server *models.WooCommerceServer, remoteID int64, force bool) (*Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "SyncEngine.SyncItem")
	defer span.End()

	identity := woocommerce.Identity(server.Domain, remoteID)

	return e.run(ctx, server, models.SyncResourceProducts, identity, func(ctx context.Context) (Action, error) {
		if !server.SyncItems {
			return ActionSkipped, &woocommerce.SyncDisabledError{ServerID: server.ID.String(), Reason: "item sync disabled"}
		}

		client, err := e.clients.Get(ctx, server.ID)
		if err != nil {
			return ActionFailed, err
		}

		return e.syncItemLocked(ctx, client, identity, remoteID, force)
	})
}

func (e *Engine) syncItemLocked(ctx context.Context, client RemoteClient, identity string, remoteID int64, force bool) (Action, error) {
	link, err := e.itemRepo.GetLinkByIdentity(ctx, identity)
	if err != nil {
		return ActionFailed, err
	}

	if link == nil {
		record, err := client.Get(ctx, "products", remoteID)
		if err != nil {
			return ActionFailed, err
		}

		if _, err := e.createItemFromRemote(ctx, client, record, 0); err != nil {
			e.logDiagnostics(ctx, identity, nil, record, err)
			return ActionFailed, err
		}
		return ActionCreated, nil
	}

	if !link.Enabled {
		return ActionSkipped, &woocommerce.SyncDisabledError{ServerID: link.ServerID.String(), Reason: "link sync disabled"}
	}

	item, err := e.itemRepo.GetByID(ctx, link.ItemID)
	if err != nil {
		return ActionFailed, err
	}

	record, err := e.fetchItemRecord(ctx, client, item, remoteID)
	if err != nil {
		if woocommerce.IsNotFound(err) {
			// Remote product gone: local wins by default, remote creation
			// is out of scope
			e.logger.WithContext(ctx).Warnf("Remote product missing for %s, leaving local item untouched", identity)
			return ActionSkipped, nil
		}
		return ActionFailed, err
	}

	action, err := e.reconcileItem(ctx, client, item, link, record, force)
	if err != nil {
		e.logDiagnostics(ctx, identity, item, record, err)
		return ActionFailed, err
	}
	return action, nil
}

// reconcileItem runs the hash comparison and last-write-wins resolution for
// a linked pair
func (e *Engine) reconcileItem(ctx context.Context, client RemoteClient, item *models.Item, link *models.ItemLink, record *woocommerce.Record, force bool) (Action, error) {
	// Hash equal means the last observed remote state was already applied.
	// A blank hash forces resolution so local edits propagate.
	if !force && link.SyncHash != "" && link.SyncHash == record.RawDateModified {
		return ActionSkipped, nil
	}

	action := ActionSkipped
	finalHash := record.RawDateModified

	switch {
	case record.DateModified.After(item.UpdatedAt):
		modified, err := e.pullItem(ctx, client, item, record)
		if err != nil {
			return ActionFailed, err
		}
		if modified {
			action = ActionPulled
		}

	case record.DateModified.Before(item.UpdatedAt):
		updated, modified, err := e.pushItem(ctx, client, item, link, record)
		if err != nil {
			return ActionFailed, err
		}
		if modified {
			action = ActionPushed
			finalHash = updated.RawDateModified
		}

	default:
		// Equal wall clocks resolve to no update in either direction
	}

	if link.SyncHash != finalHash {
		if err := e.itemRepo.SetSyncHash(ctx, link.ID, finalHash); err != nil {
			return ActionFailed, err
		}
	}

	return action, nil
}

// pullItem applies the remote record onto the local item
func (e *Engine) pullItem(ctx context.Context, client RemoteClient, item *models.Item, record *woocommerce.Record) (bool, error) {
	localDoc, err := toDocument(item)
	if err != nil {
		return false, err
	}

	identity := woocommerce.Identity(client.Domain(), record.ID)
	mctx := e.mappingContext(identity, models.SyncResourceProducts, "pull", record, localDoc, client.Server())

	values, modified := e.fields.Pull(ctx, mctx, e.productRulesFor(client.Server()))

	attrs := recordAttributes(record)
	attrsChanged := !attributesEqual(item.Attributes.GetValue(), attrs)

	image := ""
	imageChanged := false
	if client.Server().Settings.GetValue().EnableImageSync {
		image = recordImage(record)
		imageChanged = image != item.Image
	}

	if !modified && !attrsChanged && !imageChanged {
		return false, nil
	}

	applyItemValues(item, values)
	if attrsChanged {
		item.Attributes.Data = attrs
	}
	if imageChanged {
		item.Image = image
	}

	if err := e.itemRepo.Update(ctx, item); err != nil {
		return false, err
	}

	e.logger.WithContext(ctx).Infof("Pulled item %s from %s", item.Code, identity)
	return true, nil
}

// pushItem applies the local item onto the remote record
func (e *Engine) pushItem(ctx context.Context, client RemoteClient, item *models.Item, link *models.ItemLink, record *woocommerce.Record) (*woocommerce.Record, bool, error) {
	localDoc, err := toDocument(item)
	if err != nil {
		return record, false, err
	}

	identity := link.Identity
	mctx := e.mappingContext(identity, models.SyncResourceProducts, "push", record, localDoc, client.Server())

	remoteDoc := cloneDocument(record.Data)
	if !e.fields.Push(ctx, mctx, remoteDoc, false, e.productRulesFor(client.Server())) {
		return record, false, nil
	}

	var updated *woocommerce.Record
	if item.Type == models.ItemTypeVariation {
		parentID, err := e.parentRemoteID(ctx, item, link.ServerID)
		if err != nil {
			return record, false, err
		}
		updated, err = client.UpdateVariation(ctx, parentID, link.RemoteID, remoteDoc)
		if err != nil {
			return record, false, err
		}
	} else {
		updated, err = client.Update(ctx, "products", link.RemoteID, remoteDoc)
		if err != nil {
			return record, false, err
		}
	}

	e.logger.WithContext(ctx).Infof("Pushed item %s to %s", item.Code, identity)
	return updated, true, nil
}

// fetchItemRecord fetches the full remote record, routing variations through
// their parent's endpoint
func (e *Engine) fetchItemRecord(ctx context.Context, client RemoteClient, item *models.Item, remoteID int64) (*woocommerce.Record, error) {
	if item.Type != models.ItemTypeVariation {
		return client.Get(ctx, "products", remoteID)
	}

	parentID, err := e.parentRemoteID(ctx, item, client.Server().ID)
	if err != nil {
		return nil, err
	}
	return client.GetVariation(ctx, parentID, remoteID)
}

// parentRemoteID resolves a variation's parent product id on one server
func (e *Engine) parentRemoteID(ctx context.Context, item *models.Item, serverID uuid.UUID) (int64, error) {
	if item.ParentCode == nil {
		return 0, fmt.Errorf("variation %s has no parent code", item.Code)
	}

	parent, err := e.itemRepo.GetByCode(ctx, *item.ParentCode)
	if err != nil {
		return 0, err
	}
	if parent == nil {
		return 0, fmt.Errorf("parent item %s not found for variation %s", *item.ParentCode, item.Code)
	}

	links, err := e.itemRepo.ListLinksByItem(ctx, parent.ID)
	if err != nil {
		return 0, err
	}
	for _, l := range links {
		if l.ServerID == serverID {
			return l.RemoteID, nil
		}
	}
	return 0, fmt.Errorf("parent item %s has no link on server %s", parent.Code, serverID)
}

// createItemFromRemote creates the local item and link for a remote product.
// Variations resolve their parent first, recursively, bounded by the depth
// guard so a malformed parent chain cannot loop.
func (e *Engine) createItemFromRemote(ctx context.Context, client RemoteClient, record *woocommerce.Record, depth int) (*models.Item, error) {
	if depth > e.config.MaxParentDepth {
		return nil, fmt.Errorf("%w: %s depth %d", ErrParentDepthExceeded, woocommerce.Identity(client.Domain(), record.ID), depth)
	}

	identity := woocommerce.Identity(client.Domain(), record.ID)
	itemType := models.ItemType(record.GetString("type"))
	if itemType == "" {
		itemType = models.ItemTypeSimple
	}
	if record.GetInt("parent_id") != 0 {
		itemType = models.ItemTypeVariation
	}

	var parent *models.Item
	if itemType == models.ItemTypeVariation {
		var err error
		parent, err = e.resolveParent(ctx, client, record.GetInt("parent_id"), depth)
		if err != nil {
			return nil, err
		}
	}

	code := record.GetString("sku")
	if code == "" {
		code = fmt.Sprintf("%s-%d", client.Domain(), record.ID)
	}

	// The same product can already exist locally through another store;
	// reuse it and just add the link.
	item, err := e.itemRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if item == nil {
		item = &models.Item{
			Code: code,
			Type: itemType,
		}

		mctx := e.mappingContext(identity, models.SyncResourceProducts, "pull", record, nil, client.Server())
		values, _ := e.fields.Pull(ctx, mctx, e.productRulesFor(client.Server()))
		applyItemValues(item, values)

		if itemType == models.ItemTypeVariation && parent != nil {
			item.ParentCode = &parent.Code
			item.Name = variationName(parent.Name, record)
		}
		if item.Name == "" {
			item.Name = code
		}
		item.Attributes.Data = recordAttributes(record)
		if client.Server().Settings.GetValue().EnableImageSync {
			item.Image = recordImage(record)
		}

		if err := e.itemRepo.Create(ctx, item); err != nil {
			return nil, err
		}
		e.logger.WithContext(ctx).Infof("Created item %s from %s", item.Code, identity)
	}

	// Resolving a variation creates its parent, and parent creation fans
	// out the variations, so the link may already exist by the time we get
	// back here
	link, err := e.itemRepo.GetLinkByIdentity(ctx, identity)
	if err != nil {
		return nil, err
	}
	if link == nil {
		link = &models.ItemLink{
			ItemID:   item.ID,
			ServerID: client.Server().ID,
			Identity: identity,
			RemoteID: record.ID,
			Enabled:  true,
		}
		if err := e.itemRepo.CreateLink(ctx, link); err != nil {
			return nil, err
		}
		if err := e.itemRepo.SetSyncHash(ctx, link.ID, record.RawDateModified); err != nil {
			return nil, err
		}
	}

	if itemType == models.ItemTypeTemplate && e.config.FetchVariations {
		if err := e.fanOutVariations(ctx, client, record.ID, item); err != nil {
			return nil, err
		}
	}

	return item, nil
}

// resolveParent finds or creates the local parent of a variation
func (e *Engine) resolveParent(ctx context.Context, client RemoteClient, parentRemoteID int64, depth int) (*models.Item, error) {
	parentIdentity := woocommerce.Identity(client.Domain(), parentRemoteID)

	parentLink, err := e.itemRepo.GetLinkByIdentity(ctx, parentIdentity)
	if err != nil {
		return nil, err
	}
	if parentLink != nil {
		return e.itemRepo.GetByID(ctx, parentLink.ItemID)
	}

	parentRecord, err := client.Get(ctx, "products", parentRemoteID)
	if err != nil {
		return nil, err
	}
	return e.createItemFromRemote(ctx, client, parentRecord, depth+1)
}

// fanOutVariations creates local items for a variable product's variations
func (e *Engine) fanOutVariations(ctx context.Context, client RemoteClient, parentRemoteID int64, parent *models.Item) error {
	batchSize := e.config.VariationBatchSize
	if batchSize <= 0 {
		batchSize = client.PageLength()
	}

	fetched := 0
	offset := 0
	for {
		if e.config.MaxVariations > 0 && fetched >= e.config.MaxVariations {
			e.logger.WithContext(ctx).Warnf("Variation cap reached for product %d, stopping fan-out at %d", parentRemoteID, fetched)
			return nil
		}

		records, total, err := client.ListVariations(ctx, parentRemoteID, woocommerce.ListOptions{
			PerPage: batchSize,
			Offset:  offset,
		})
		if err != nil {
			return err
		}

		for _, record := range records {
			identity := woocommerce.Identity(client.Domain(), record.ID)
			link, err := e.itemRepo.GetLinkByIdentity(ctx, identity)
			if err != nil {
				return err
			}
			if link != nil {
				continue
			}
			if _, err := e.createItemFromRemote(ctx, client, record, 0); err != nil {
				return err
			}
		}

		fetched += len(records)
		offset += len(records)
		if len(records) == 0 || fetched >= total {
			return nil
		}
	}
}

// applyItemValues copies mapped field values onto the item
func applyItemValues(item *models.Item, values map[string]interface{}) {
	for field, value := range values {
		switch field {
		case "name":
			item.Name = stringValue(value)
		case "description":
			item.Description = stringValue(value)
		case "sku":
			item.SKU = stringValue(value)
		case "price":
			item.Price = stringValue(value)
		case "weight":
			item.Weight = floatValue(value)
		case "stock_qty":
			item.StockQty = floatValue(value)
		case "item_group":
			item.ItemGroup = stringValue(value)
		}
	}
}

// recordAttributes flattens the remote attributes list into name -> option
func recordAttributes(record *woocommerce.Record) map[string]string {
	raw := record.GetSlice("attributes")
	if len(raw) == 0 {
		return nil
	}

	attrs := make(map[string]string, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		if name == "" {
			continue
		}

		// Variations carry a single option, variable parents a list
		if option, ok := m["option"].(string); ok {
			attrs[name] = option
			continue
		}
		if options, ok := m["options"].([]interface{}); ok {
			parts := make([]string, 0, len(options))
			for _, o := range options {
				if s, ok := o.(string); ok {
					parts = append(parts, s)
				}
			}
			attrs[name] = strings.Join(parts, ", ")
		}
	}

	if len(attrs) == 0 {
		return nil
	}
	return attrs
}

// recordImage extracts the product image URL. Variations carry a single
// image object, products a list with the primary entry first.
func recordImage(record *woocommerce.Record) string {
	if m := record.GetMap("image"); m != nil {
		if src, ok := m["src"].(string); ok {
			return src
		}
	}
	for _, entry := range record.GetSlice("images") {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		if src, ok := m["src"].(string); ok && src != "" {
			return src
		}
	}
	return ""
}

// attributesEqual compares attribute sets ignoring option order
func attributesEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for name, av := range a {
		bv, ok := b[name]
		if !ok {
			return false
		}
		if !optionSetEqual(av, bv) {
			return false
		}
	}
	return true
}

func optionSetEqual(a, b string) bool {
	as := splitOptions(a)
	bs := splitOptions(b)
	if len(as) != len(bs) {
		return false
	}
	seen := make(map[string]int, len(as))
	for _, o := range as {
		seen[o]++
	}
	for _, o := range bs {
		seen[o]--
		if seen[o] < 0 {
			return false
		}
	}
	return true
}

func splitOptions(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// variationName builds "{parent} - {opt1}, {opt2}" keeping the store's
// attribute order
func variationName(parentName string, record *woocommerce.Record) string {
	raw := record.GetSlice("attributes")
	options := make([]string, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		if option, ok := m["option"].(string); ok && option != "" {
			options = append(options, option)
		}
	}

	if len(options) == 0 {
		return parentName
	}
	return parentName + " - " + strings.Join(options, ", ")
}

// toDocument converts an entity to the generic map view mapping rules read
func toDocument(v interface{}) (map[string]interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func cloneDocument(doc map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

func stringValue(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func floatValue(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}
