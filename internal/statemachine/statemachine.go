// Package statemachine holds the legal status transitions for orders and
// payments. Every status write in the service goes through CheckOrder or
// CheckPayment first; nothing else decides legality.
package statemachine

import "github.com/SigNoz/checkout-service/internal/models"

var orderTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderPending:         {models.OrderAwaitingPayment, models.OrderCancelled},
	models.OrderAwaitingPayment: {models.OrderPaid, models.OrderPending, models.OrderCancelled},
	models.OrderPaid:            {models.OrderShipped, models.OrderCancelled},
	models.OrderShipped:         {models.OrderDelivered, models.OrderCancelled},
	models.OrderDelivered:       {},
	models.OrderCancelled:       {},
}

var paymentTransitions = map[models.PaymentStatus][]models.PaymentStatus{
	models.PaymentCreated:  {models.PaymentCaptured, models.PaymentFailed},
	models.PaymentCaptured: {models.PaymentRefunded},
	models.PaymentFailed:   {},
	models.PaymentRefunded: {},
}

// adminTargets are the statuses an admin may set directly. PAID is only
// reachable through payment capture.
var adminTargets = map[models.OrderStatus]bool{
	models.OrderShipped:   true,
	models.OrderDelivered: true,
	models.OrderCancelled: true,
}

// customerCancellable are the statuses a customer may still cancel from.
var customerCancellable = map[models.OrderStatus]bool{
	models.OrderPending:         true,
	models.OrderAwaitingPayment: true,
}

// OrderStatuses lists every order state.
func OrderStatuses() []models.OrderStatus {
	return []models.OrderStatus{
		models.OrderPending, models.OrderAwaitingPayment, models.OrderPaid,
		models.OrderShipped, models.OrderDelivered, models.OrderCancelled,
	}
}

// PaymentStatuses lists every payment state.
func PaymentStatuses() []models.PaymentStatus {
	return []models.PaymentStatus{
		models.PaymentCreated, models.PaymentCaptured, models.PaymentFailed, models.PaymentRefunded,
	}
}

// IsLegalOrder reports whether an order may move from -> to.
func IsLegalOrder(from, to models.OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsLegalPayment reports whether a payment may move from -> to.
func IsLegalPayment(from, to models.PaymentStatus) bool {
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckOrder returns an IllegalTransitionError unless from -> to is legal.
func CheckOrder(from, to models.OrderStatus) error {
	if !IsLegalOrder(from, to) {
		return &models.IllegalTransitionError{Entity: "order", From: string(from), To: string(to)}
	}
	return nil
}

// CheckPayment returns an IllegalTransitionError unless from -> to is legal.
func CheckPayment(from, to models.PaymentStatus) error {
	if !IsLegalPayment(from, to) {
		return &models.IllegalTransitionError{Entity: "payment", From: string(from), To: string(to)}
	}
	return nil
}

// CheckAdminOrder is CheckOrder restricted to the admin fulfilment targets.
func CheckAdminOrder(from, to models.OrderStatus) error {
	if !adminTargets[to] {
		return &models.IllegalTransitionError{Entity: "order", From: string(from), To: string(to)}
	}
	return CheckOrder(from, to)
}

// CheckCustomerCancel is CheckOrder to CANCELLED for orders not yet paid.
func CheckCustomerCancel(from models.OrderStatus) error {
	if !customerCancellable[from] {
		return &models.IllegalTransitionError{Entity: "order", From: string(from), To: string(models.OrderCancelled)}
	}
	return CheckOrder(from, models.OrderCancelled)
}

// CheckPaymentRetry returns an IllegalTransitionError unless a new CREATED
// attempt may replace a payment in state from. Only a FAILED payment can be
// replaced.
func CheckPaymentRetry(from models.PaymentStatus) error {
	if from != models.PaymentFailed {
		return &models.IllegalTransitionError{Entity: "payment", From: string(from), To: string(models.PaymentCreated)}
	}
	return nil
}

// ReleasesStock reports whether entering the payment state means the goods
// will not be delivered, so reserved stock goes back to the ledger.
func ReleasesStock(s models.PaymentStatus) bool {
	return s == models.PaymentFailed || s == models.PaymentRefunded
}
