package router_test

import (
	"errors"
	"testing"

	"github.com/roobiinpandey/al-marya-rostary-sub003/internal/router"
)

func TestLocationUpdateValidate(t *testing.T) {
	cases := []struct {
		name    string
		payload router.LocationUpdate
		wantErr bool
	}{
		{"valid minimal", router.LocationUpdate{OrderID: "o", Lat: 25.2, Lng: 55.3}, false},
		{"valid full", router.LocationUpdate{OrderID: "o", Lat: -90, Lng: 180, Speed: floatPtr(12.5), Heading: floatPtr(359.9), Accuracy: floatPtr(4)}, false},
		{"missing order", router.LocationUpdate{Lat: 1, Lng: 1}, true},
		{"lat too high", router.LocationUpdate{OrderID: "o", Lat: 200, Lng: 0}, true},
		{"lat too low", router.LocationUpdate{OrderID: "o", Lat: -90.1, Lng: 0}, true},
		{"lng too high", router.LocationUpdate{OrderID: "o", Lat: 0, Lng: 180.1}, true},
		{"negative speed", router.LocationUpdate{OrderID: "o", Lat: 0, Lng: 0, Speed: floatPtr(-1)}, true},
		{"heading 360", router.LocationUpdate{OrderID: "o", Lat: 0, Lng: 0, Heading: floatPtr(360)}, true},
		{"negative accuracy", router.LocationUpdate{OrderID: "o", Lat: 0, Lng: 0, Accuracy: floatPtr(-0.1)}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.payload.Validate()
			if tc.wantErr && err == nil {
				t.Error("Expected a validation error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}
			if err != nil && !errors.Is(err, router.ErrInvalidPayload) {
				t.Errorf("Validation error is not tagged ErrInvalidPayload: %v", err)
			}
		})
	}
}

func TestPaymentConfirmValidate(t *testing.T) {
	cases := []struct {
		name    string
		payload router.PaymentConfirm
		wantErr bool
	}{
		{"valid card", router.PaymentConfirm{OrderID: "o", Method: "card", Confirmed: boolPtr(true), Amount: 10}, false},
		{"valid cash declined", router.PaymentConfirm{OrderID: "o", Method: "cash", Confirmed: boolPtr(false)}, false},
		{"missing order", router.PaymentConfirm{Method: "card", Confirmed: boolPtr(true)}, true},
		{"unknown method", router.PaymentConfirm{OrderID: "o", Method: "barter", Confirmed: boolPtr(true)}, true},
		{"missing confirmed flag", router.PaymentConfirm{OrderID: "o", Method: "card"}, true},
		{"negative amount", router.PaymentConfirm{OrderID: "o", Method: "card", Confirmed: boolPtr(true), Amount: -1}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.payload.Validate()
			if tc.wantErr && err == nil {
				t.Error("Expected a validation error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}
		})
	}
}

func TestInternalPayloadValidate(t *testing.T) {
	if err := (&router.OrderStatusUpdate{OrderID: "o", Status: "ready"}).Validate(); err != nil {
		t.Errorf("Valid status update rejected: %v", err)
	}
	if err := (&router.OrderStatusUpdate{OrderID: "o"}).Validate(); err == nil {
		t.Error("Status update without status accepted")
	}
	if err := (&router.DriverAssigned{OrderID: "o", Driver: map[string]any{"id": "d"}}).Validate(); err != nil {
		t.Errorf("Valid driver assignment rejected: %v", err)
	}
	if err := (&router.DriverAssigned{OrderID: "o"}).Validate(); err == nil {
		t.Error("Driver assignment without driver info accepted")
	}
	if err := (&router.PaymentNotice{OrderID: "o"}).Validate(); err != nil {
		t.Errorf("Valid payment notice rejected: %v", err)
	}
	if err := (&router.PaymentNotice{}).Validate(); err == nil {
		t.Error("Payment notice without order accepted")
	}
}
