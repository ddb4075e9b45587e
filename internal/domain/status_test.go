package domain

import "testing"

func TestNormalizeOrderStatus(t *testing.T) {
	cases := []struct {
		in       string
		want     OrderStatus
		fellBack bool
	}{
		{"confirmed", OrderStatusAccepted, false},
		{"preparing", OrderStatusInKitchen, false},
		{"out_for_delivery", OrderStatusPickedUp, false},
		{"OUT FOR DELIVERY", OrderStatusPickedUp, false},
		{" Accepted ", OrderStatusAccepted, false},
		{"delivered", OrderStatusDelivered, false},
		{"canceled", OrderStatusCanceled, false},
		{"ready", OrderStatusReady, false},
		{"totally_unknown", OrderStatusCreated, true},
		{"", OrderStatusCreated, true},
	}
	for _, tc := range cases {
		got, fellBack := NormalizeOrderStatus(tc.in)
		if got != tc.want || fellBack != tc.fellBack {
			t.Errorf("NormalizeOrderStatus(%q) = (%q, %v), want (%q, %v)", tc.in, got, fellBack, tc.want, tc.fellBack)
		}
	}
}

func TestValidateTransition(t *testing.T) {
	cases := []struct {
		name        string
		from, to    OrderStatus
		fulfillment FulfillmentType
		wantErr     bool
	}{
		{"created to accepted", OrderStatusCreated, OrderStatusAccepted, FulfillmentPickup, false},
		{"created to rejected", OrderStatusCreated, OrderStatusRejected, FulfillmentDelivery, false},
		{"skip ahead", OrderStatusCreated, OrderStatusInKitchen, FulfillmentPickup, true},
		{"same state", OrderStatusAccepted, OrderStatusAccepted, FulfillmentPickup, true},
		{"ready to delivered pickup", OrderStatusReady, OrderStatusDelivered, FulfillmentPickup, false},
		{"ready to picked_up pickup", OrderStatusReady, OrderStatusPickedUp, FulfillmentPickup, false},
		{"ready to delivered delivery", OrderStatusReady, OrderStatusDelivered, FulfillmentDelivery, true},
		{"ready to courier delivery", OrderStatusReady, OrderStatusCourierRequested, FulfillmentDelivery, false},
		{"ready to canceled delivery", OrderStatusReady, OrderStatusCanceled, FulfillmentDelivery, false},
		{"pickup never courier", OrderStatusReady, OrderStatusCourierRequested, FulfillmentPickup, true},
		{"courier to en route", OrderStatusCourierRequested, OrderStatusDriverEnRoute, FulfillmentDelivery, false},
		{"en route to picked_up", OrderStatusDriverEnRoute, OrderStatusPickedUp, FulfillmentDelivery, false},
		{"picked_up to delivered", OrderStatusPickedUp, OrderStatusDelivered, FulfillmentDelivery, false},
		{"picked_up to canceled", OrderStatusPickedUp, OrderStatusCanceled, FulfillmentDelivery, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateTransition(tc.from, tc.to, tc.fulfillment)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ValidateTransition(%s, %s, %s) error = %v, wantErr %v", tc.from, tc.to, tc.fulfillment, err, tc.wantErr)
			}
		})
	}
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	terminals := []OrderStatus{OrderStatusDelivered, OrderStatusRejected, OrderStatusCanceled, OrderStatusFailed}
	all := []OrderStatus{
		OrderStatusCreated, OrderStatusAccepted, OrderStatusInKitchen, OrderStatusReady,
		OrderStatusCourierRequested, OrderStatusDriverEnRoute, OrderStatusPickedUp,
		OrderStatusDelivered, OrderStatusRejected, OrderStatusCanceled, OrderStatusFailed,
	}
	for _, from := range terminals {
		if !from.IsTerminal() {
			t.Fatalf("%s should be terminal", from)
		}
		for _, to := range all {
			if err := ValidateTransition(from, to, FulfillmentDelivery); err == nil {
				t.Errorf("expected %s -> %s to be rejected", from, to)
			}
		}
	}
}

func TestNextExpectedStatus(t *testing.T) {
	cases := []struct {
		current     OrderStatus
		fulfillment FulfillmentType
		want        OrderStatus
	}{
		{OrderStatusCreated, FulfillmentPickup, OrderStatusAccepted},
		{OrderStatusInKitchen, FulfillmentDelivery, OrderStatusReady},
		{OrderStatusReady, FulfillmentDelivery, OrderStatusCourierRequested},
		{OrderStatusReady, FulfillmentPickup, OrderStatusDelivered},
		{OrderStatusCourierRequested, FulfillmentDelivery, OrderStatusDriverEnRoute},
		{OrderStatusPickedUp, FulfillmentDelivery, OrderStatusDelivered},
		{OrderStatusDelivered, FulfillmentDelivery, ""},
		{OrderStatusCanceled, FulfillmentPickup, ""},
	}
	for _, tc := range cases {
		if got := NextExpectedStatus(tc.current, tc.fulfillment); got != tc.want {
			t.Errorf("NextExpectedStatus(%s, %s) = %q, want %q", tc.current, tc.fulfillment, got, tc.want)
		}
	}
}
