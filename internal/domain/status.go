package domain

import (
	"fmt"
	"strings"
)

// FulfillmentType selects between customer pickup and courier delivery.
type FulfillmentType string

const (
	// FulfillmentPickup indicates the customer collects the order in person.
	FulfillmentPickup FulfillmentType = "pickup"
	// FulfillmentDelivery indicates a courier delivers the order.
	FulfillmentDelivery FulfillmentType = "delivery"
)

// NormalizeFulfillmentType maps free-form input to a canonical fulfillment
// type, defaulting to pickup.
func NormalizeFulfillmentType(raw string) FulfillmentType {
	if strings.EqualFold(strings.TrimSpace(raw), string(FulfillmentDelivery)) {
		return FulfillmentDelivery
	}
	return FulfillmentPickup
}

// OrderStatus enumerates the lifecycle states of a placed order.
type OrderStatus string

const (
	// OrderStatusCreated is the initial state at order placement.
	OrderStatusCreated OrderStatus = "created"
	// OrderStatusAccepted indicates the restaurant confirmed the order.
	OrderStatusAccepted OrderStatus = "accepted"
	// OrderStatusInKitchen indicates food preparation has started.
	OrderStatusInKitchen OrderStatus = "in_kitchen"
	// OrderStatusReady indicates the order is prepared and awaiting handoff.
	OrderStatusReady OrderStatus = "ready"
	// OrderStatusCourierRequested indicates a courier dispatch was requested.
	OrderStatusCourierRequested OrderStatus = "courier_requested"
	// OrderStatusDriverEnRoute indicates the courier is heading to the restaurant.
	OrderStatusDriverEnRoute OrderStatus = "driver_en_route"
	// OrderStatusPickedUp indicates the order left the restaurant.
	OrderStatusPickedUp OrderStatus = "picked_up"
	// OrderStatusDelivered indicates the order reached the customer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusRejected indicates the restaurant declined the order.
	OrderStatusRejected OrderStatus = "rejected"
	// OrderStatusCanceled indicates the order was canceled before completion.
	OrderStatusCanceled OrderStatus = "canceled"
	// OrderStatusFailed indicates fulfillment failed after dispatch.
	OrderStatusFailed OrderStatus = "failed"
)

// orderStatusTransitions lists the allowed next states per current state.
// Terminal states carry no entry.
var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusCreated:          {OrderStatusAccepted, OrderStatusRejected, OrderStatusCanceled},
	OrderStatusAccepted:         {OrderStatusInKitchen, OrderStatusCanceled},
	OrderStatusInKitchen:        {OrderStatusReady, OrderStatusCanceled},
	OrderStatusReady:            {OrderStatusCourierRequested, OrderStatusPickedUp, OrderStatusDelivered, OrderStatusCanceled},
	OrderStatusCourierRequested: {OrderStatusDriverEnRoute, OrderStatusCanceled, OrderStatusFailed},
	OrderStatusDriverEnRoute:    {OrderStatusPickedUp, OrderStatusCanceled, OrderStatusFailed},
	OrderStatusPickedUp:         {OrderStatusDelivered, OrderStatusFailed},
}

var orderStatusAliases = map[string]OrderStatus{
	"confirmed":        OrderStatusAccepted,
	"preparing":        OrderStatusInKitchen,
	"out_for_delivery": OrderStatusPickedUp,
}

// IsTerminal reports whether the status accepts no further transitions.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusDelivered, OrderStatusRejected, OrderStatusCanceled, OrderStatusFailed:
		return true
	default:
		return false
	}
}

// NormalizeOrderStatus maps raw status strings from upstream systems onto the
// canonical enumeration. Matching is case- and whitespace-insensitive and
// resolves known synonyms. Unrecognised values fall back to
// OrderStatusCreated so that upstream schema drift degrades gracefully; the
// second return value reports that fallback so callers can log and count it.
func NormalizeOrderStatus(raw string) (OrderStatus, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, " ", "_")
	if alias, ok := orderStatusAliases[key]; ok {
		return alias, false
	}
	candidate := OrderStatus(key)
	if _, ok := orderStatusTransitions[candidate]; ok || candidate.IsTerminal() {
		return candidate, false
	}
	return OrderStatusCreated, true
}

// ValidateTransition checks whether an order may move from one status to
// another given its fulfillment type. A nil return means the transition is
// legal; otherwise the error carries a human-readable reason and is never
// applied.
func ValidateTransition(from, to OrderStatus, fulfillment FulfillmentType) error {
	if from == to {
		return fmt.Errorf("order is already %s", from)
	}
	if from.IsTerminal() {
		return fmt.Errorf("order is %s and can no longer change", from)
	}
	if fulfillment == FulfillmentPickup && to == OrderStatusCourierRequested {
		return fmt.Errorf("pickup orders do not use courier")
	}
	if fulfillment == FulfillmentDelivery && from == OrderStatusReady &&
		to != OrderStatusCourierRequested && to != OrderStatusCanceled {
		return fmt.Errorf("delivery orders must request a courier before %s", to)
	}
	for _, allowed := range orderStatusTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("cannot move order from %s to %s", from, to)
}

// NextExpectedStatus returns the status an on-track order should reach next,
// used for progress displays. Terminal states and unknown inputs return an
// empty status.
func NextExpectedStatus(current OrderStatus, fulfillment FulfillmentType) OrderStatus {
	switch current {
	case OrderStatusCreated:
		return OrderStatusAccepted
	case OrderStatusAccepted:
		return OrderStatusInKitchen
	case OrderStatusInKitchen:
		return OrderStatusReady
	case OrderStatusReady:
		if fulfillment == FulfillmentDelivery {
			return OrderStatusCourierRequested
		}
		return OrderStatusDelivered
	case OrderStatusCourierRequested:
		return OrderStatusDriverEnRoute
	case OrderStatusDriverEnRoute:
		return OrderStatusPickedUp
	case OrderStatusPickedUp:
		return OrderStatusDelivered
	default:
		return ""
	}
}
