package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/forkline/api/internal/domain"
	"github.com/forkline/api/internal/repositories"
)

const cartItemIDPrefix = "itm_"

var (
	// ErrCartInvalidInput signals bad request data such as unknown SKUs or
	// invalid quantities.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartNotFound indicates no cart exists for the user.
	ErrCartNotFound = errors.New("cart: not found")
	// ErrCartItemNotFound indicates the referenced line is absent.
	ErrCartItemNotFound = errors.New("cart: item not found")
	// ErrCartConflict indicates a concurrent modification was detected.
	ErrCartConflict = errors.New("cart: conflict")
	// ErrCartMenuItemUnavailable indicates the menu item cannot be ordered.
	ErrCartMenuItemUnavailable = errors.New("cart: menu item unavailable")
)

// CartServiceDeps bundles collaborators required to construct the cart service.
type CartServiceDeps struct {
	Carts       repositories.CartRepository
	Menu        repositories.MenuRepository
	Tenants     repositories.TenantRepository
	Pricer      Pricer
	Promotions  PromotionService
	Delivery    DeliveryService
	Sanitize    func(string) string
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	carts      repositories.CartRepository
	menu       repositories.MenuRepository
	tenants    repositories.TenantRepository
	pricer     Pricer
	promotions PromotionService
	delivery   DeliveryService
	sanitize   func(string) string
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewCartService wires dependencies into a concrete CartService implementation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Menu == nil {
		return nil, errors.New("cart service: menu repository is required")
	}
	if deps.Tenants == nil {
		return nil, errors.New("cart service: tenant repository is required")
	}
	if deps.Pricer == nil {
		return nil, errors.New("cart service: pricer is required")
	}

	sanitize := deps.Sanitize
	if sanitize == nil {
		sanitize = strings.TrimSpace
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &cartService{
		carts:      deps.Carts,
		menu:       deps.Menu,
		tenants:    deps.Tenants,
		pricer:     deps.Pricer,
		promotions: deps.Promotions,
		delivery:   deps.Delivery,
		sanitize:   sanitize,
		clock:      func() time.Time { return clock().UTC() },
		newID:      idGen,
		logger:     logger,
	}, nil
}

func (s *cartService) GetCart(ctx context.Context, tenantID, userID string) (Cart, error) {
	cart, _, err := s.loadOrCreate(ctx, tenantID, userID)
	return cart, err
}

func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error) {
	sku := strings.TrimSpace(cmd.SKU)
	if sku == "" {
		return Cart{}, fmt.Errorf("%w: sku is required", ErrCartInvalidInput)
	}

	menuItem, err := s.menu.GetItem(ctx, strings.TrimSpace(cmd.TenantID), sku)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{}, fmt.Errorf("%w: unknown sku %s", ErrCartInvalidInput, sku)
		}
		return Cart{}, err
	}
	if !menuItem.Available {
		return Cart{}, fmt.Errorf("%w: %s", ErrCartMenuItemUnavailable, sku)
	}
	if !menuItem.Unit.ValidQuantity(cmd.Quantity) {
		return Cart{}, fmt.Errorf("%w: quantity %v not valid for unit %s", ErrCartInvalidInput, cmd.Quantity, menuItem.Unit)
	}

	modifiers, err := resolveModifiers(menuItem, cmd.Modifiers)
	if err != nil {
		return Cart{}, err
	}

	cart, existing, err := s.loadOrCreate(ctx, cmd.TenantID, cmd.UserID)
	if err != nil {
		return Cart{}, err
	}

	now := s.clock()
	line := CartItem{
		ID:        cartItemIDPrefix + s.newID(),
		SKU:       menuItem.SKU,
		Name:      menuItem.Name,
		UnitPrice: menuItem.PriceCents,
		Unit:      menuItem.Unit,
		Quantity:  cmd.Quantity,
		Modifiers: modifiers,
		Note:      s.sanitize(cmd.Note),
		AddedAt:   now,
		UpdatedAt: now,
	}

	// Lines with an equal deduplication key merge quantities instead of
	// appending a duplicate.
	merged := false
	key := line.LineKey()
	for i := range cart.Items {
		if cart.Items[i].LineKey() == key {
			cart.Items[i].Quantity += cmd.Quantity
			cart.Items[i].UpdatedAt = now
			merged = true
			break
		}
	}
	if !merged {
		cart.Items = append(cart.Items, line)
	}

	return s.repriceAndSave(ctx, cart, existing)
}

func (s *cartService) UpdateItemQuantity(ctx context.Context, tenantID, userID, itemID string, quantity float64) (Cart, error) {
	cart, existing, err := s.loadOrCreate(ctx, tenantID, userID)
	if err != nil {
		return Cart{}, err
	}

	idx := indexOfItem(cart.Items, itemID)
	if idx < 0 {
		return Cart{}, ErrCartItemNotFound
	}
	if !cart.Items[idx].Unit.ValidQuantity(quantity) {
		return Cart{}, fmt.Errorf("%w: quantity %v not valid for unit %s", ErrCartInvalidInput, quantity, cart.Items[idx].Unit)
	}

	cart.Items[idx].Quantity = quantity
	cart.Items[idx].UpdatedAt = s.clock()
	return s.repriceAndSave(ctx, cart, existing)
}

func (s *cartService) RemoveItem(ctx context.Context, tenantID, userID, itemID string) (Cart, error) {
	cart, existing, err := s.loadOrCreate(ctx, tenantID, userID)
	if err != nil {
		return Cart{}, err
	}

	idx := indexOfItem(cart.Items, itemID)
	if idx < 0 {
		return Cart{}, ErrCartItemNotFound
	}
	cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
	return s.repriceAndSave(ctx, cart, existing)
}

func (s *cartService) ClearCart(ctx context.Context, tenantID, userID string) error {
	if err := s.carts.DeleteCart(ctx, strings.TrimSpace(tenantID), strings.TrimSpace(userID)); err != nil {
		if isRepoNotFound(err) {
			return nil
		}
		return err
	}
	return nil
}

func (s *cartService) SetFulfillment(ctx context.Context, tenantID, userID string, fulfillment FulfillmentType) (Cart, error) {
	cart, existing, err := s.loadOrCreate(ctx, tenantID, userID)
	if err != nil {
		return Cart{}, err
	}

	cart.Fulfillment = domain.NormalizeFulfillmentType(string(fulfillment))
	if cart.Fulfillment == domain.FulfillmentPickup {
		cart.DeliveryQuote = nil
	}
	return s.repriceAndSave(ctx, cart, existing)
}

func (s *cartService) SetTip(ctx context.Context, tenantID, userID string, tip TipSelection) (Cart, error) {
	cart, existing, err := s.loadOrCreate(ctx, tenantID, userID)
	if err != nil {
		return Cart{}, err
	}

	if tip.CustomCents < 0 || tip.Percent < 0 {
		return Cart{}, fmt.Errorf("%w: tip must not be negative", ErrCartInvalidInput)
	}
	// A fixed custom amount and a percentage are mutually exclusive; the
	// custom amount wins when both arrive.
	if tip.CustomCents > 0 {
		tip.Percent = 0
	}
	cart.Tip = tip
	return s.repriceAndSave(ctx, cart, existing)
}

func (s *cartService) ApplyPromotion(ctx context.Context, tenantID, userID, code string) (Cart, error) {
	if s.promotions == nil {
		return Cart{}, errors.New("cart service: promotion service not configured")
	}
	cart, existing, err := s.loadOrCreate(ctx, tenantID, userID)
	if err != nil {
		return Cart{}, err
	}

	promotion, discount, err := s.promotions.Resolve(ctx, cart.TenantID, code, rawSubtotal(cart.Items))
	if err != nil {
		return Cart{}, err
	}
	cart.Promotion = &CartPromotion{
		PromotionID:   promotion.ID,
		Code:          promotion.Code,
		DiscountCents: discount,
	}
	return s.repriceAndSave(ctx, cart, existing)
}

func (s *cartService) RemovePromotion(ctx context.Context, tenantID, userID string) (Cart, error) {
	cart, existing, err := s.loadOrCreate(ctx, tenantID, userID)
	if err != nil {
		return Cart{}, err
	}
	cart.Promotion = nil
	return s.repriceAndSave(ctx, cart, existing)
}

func (s *cartService) SetDeliveryAddress(ctx context.Context, tenantID, userID string, address Address) (Cart, error) {
	if s.delivery == nil {
		return Cart{}, errors.New("cart service: delivery service not configured")
	}
	cart, existing, err := s.loadOrCreate(ctx, tenantID, userID)
	if err != nil {
		return Cart{}, err
	}

	// A new address always invalidates the held quote before re-quoting.
	cart.DeliveryAddress = &address
	cart.DeliveryQuote = nil
	cart.Fulfillment = domain.FulfillmentDelivery

	quote, err := s.delivery.QuoteDelivery(ctx, cart.TenantID, address)
	if err != nil {
		return Cart{}, err
	}
	cart.DeliveryQuote = &quote

	return s.repriceAndSave(ctx, cart, existing)
}

// loadOrCreate returns the user's cart and whether it already exists in
// storage.
func (s *cartService) loadOrCreate(ctx context.Context, tenantID, userID string) (Cart, bool, error) {
	tid := strings.TrimSpace(tenantID)
	uid := strings.TrimSpace(userID)
	if tid == "" || uid == "" {
		return Cart{}, false, fmt.Errorf("%w: tenant and user ids are required", ErrCartInvalidInput)
	}

	cart, err := s.carts.GetCart(ctx, tid, uid)
	if err == nil {
		return cart, true, nil
	}
	if !isRepoNotFound(err) {
		return Cart{}, false, err
	}

	tenant, err := s.tenants.GetTenant(ctx, tid)
	if err != nil {
		return Cart{}, false, err
	}
	now := s.clock()
	return Cart{
		ID:          uid,
		TenantID:    tid,
		UserID:      uid,
		Currency:    tenant.Currency,
		Fulfillment: domain.FulfillmentPickup,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, false, nil
}

// repriceAndSave runs the cart through the pricing engine and persists it
// with the refreshed estimate. The engine output is the single source of
// truth for totals shown to the customer.
func (s *cartService) repriceAndSave(ctx context.Context, cart Cart, existing bool) (Cart, error) {
	tenant, err := s.tenants.GetTenant(ctx, cart.TenantID)
	if err != nil {
		return Cart{}, err
	}

	discount := s.refreshPromotion(ctx, &cart)

	var deliveryFee int64
	if cart.Fulfillment == domain.FulfillmentDelivery && cart.DeliveryQuote != nil {
		deliveryFee = cart.DeliveryQuote.FeeCents
	}

	estimate := s.pricer.Quote(PriceOrderCommand{
		Items:            cart.Items,
		Fulfillment:      cart.Fulfillment,
		Tip:              cart.Tip,
		PromoDiscount:    discount,
		Fees:             tenant.Fees,
		DeliveryFeeCents: deliveryFee,
	})
	cart.Estimate = &estimate

	var expected *time.Time
	if existing && !cart.UpdatedAt.IsZero() {
		ts := cart.UpdatedAt
		expected = &ts
	}
	cart.UpdatedAt = s.clock()

	saved, err := s.carts.UpsertCart(ctx, cart, expected)
	if err != nil {
		return Cart{}, translateCartRepoError(err)
	}
	return saved, nil
}

// refreshPromotion re-resolves the applied promotion against the current
// subtotal so percentage discounts track cart changes. Promotions that no
// longer resolve are dropped from the cart.
func (s *cartService) refreshPromotion(ctx context.Context, cart *Cart) int64 {
	if cart.Promotion == nil {
		return 0
	}
	if s.promotions == nil {
		return cart.Promotion.DiscountCents
	}

	promotion, discount, err := s.promotions.Resolve(ctx, cart.TenantID, cart.Promotion.Code, rawSubtotal(cart.Items))
	if err != nil {
		s.logger(ctx, "cart.promotion.dropped", map[string]any{
			"code":  cart.Promotion.Code,
			"error": err.Error(),
		})
		cart.Promotion = nil
		return 0
	}
	cart.Promotion.PromotionID = promotion.ID
	cart.Promotion.DiscountCents = discount
	return discount
}

// rawSubtotal sums line subtotals before any discount, the base promotion
// discounts resolve against.
func rawSubtotal(items []CartItem) int64 {
	var total int64
	for _, item := range items {
		total += LineSubtotal(item)
	}
	return total
}

func resolveModifiers(menuItem MenuItem, modifierIDs []string) ([]Modifier, error) {
	if len(modifierIDs) == 0 {
		return nil, nil
	}
	options := make(map[string]Modifier)
	for _, group := range menuItem.ModifierGroups {
		for _, opt := range group.Options {
			options[opt.ID] = opt
		}
	}

	resolved := make([]Modifier, 0, len(modifierIDs))
	for _, id := range modifierIDs {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" {
			continue
		}
		opt, ok := options[trimmed]
		if !ok {
			return nil, fmt.Errorf("%w: unknown modifier %s for %s", ErrCartInvalidInput, trimmed, menuItem.SKU)
		}
		resolved = append(resolved, opt)
	}
	return resolved, nil
}

func indexOfItem(items []CartItem, itemID string) int {
	id := strings.TrimSpace(itemID)
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func translateCartRepoError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCartNotFound
		case repoErr.IsConflict():
			return ErrCartConflict
		}
	}
	return err
}
