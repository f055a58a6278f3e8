package models

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartOwner_Validate(t *testing.T) {
	id := uuid.New()

	assert.NoError(t, UserOwner(id).Validate())
	assert.NoError(t, SessionOwner("sess-1").Validate())
	assert.ErrorIs(t, CartOwner{}.Validate(), ErrInvalidOwner)
	assert.ErrorIs(t, CartOwner{UserID: &id, SessionKey: "sess-1"}.Validate(), ErrInvalidOwner)
}

func TestOrder_Subtotal(t *testing.T) {
	order := &Order{Items: []OrderItem{
		{UnitPrice: decimal.NewFromInt(100), Quantity: 2},
		{UnitPrice: decimal.RequireFromString("49.99"), Quantity: 1},
	}}

	assert.True(t, order.Subtotal().Equal(decimal.RequireFromString("249.99")))
}

func TestPrincipal_CanAccessOrder(t *testing.T) {
	owner := uuid.New()
	other := uuid.New()
	order := &Order{UserID: &owner}

	assert.True(t, Principal{UserID: &owner}.CanAccessOrder(order))
	assert.False(t, Principal{UserID: &other}.CanAccessOrder(order))
	assert.True(t, Principal{UserID: &other, Role: RoleAdmin}.CanAccessOrder(order))
	assert.False(t, Principal{SessionKey: "guest"}.CanAccessOrder(order))
	assert.False(t, Principal{Role: RoleAdmin}.IsAdmin(), "admin role without identity")

	guestOrder := &Order{SessionKey: "sess-1", Guest: &GuestContact{Email: "g@example.com"}}
	assert.True(t, Principal{SessionKey: "sess-1"}.CanAccessOrder(guestOrder))
	assert.False(t, Principal{SessionKey: "sess-2"}.CanAccessOrder(guestOrder))
	assert.False(t, Principal{UserID: &owner}.CanAccessOrder(guestOrder))
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("admin")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, r)

	r, err = ParseRole("")
	require.NoError(t, err)
	assert.Equal(t, RoleCustomer, r)

	_, err = ParseRole("root")
	assert.Error(t, err)
}

func TestGatewayError_Retryable(t *testing.T) {
	cause := errors.New("boom")
	err := error(&GatewayError{Kind: GatewayTimeout, Op: "create_order", Err: cause})

	var gwErr *GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.True(t, gwErr.Retryable())
	assert.ErrorIs(t, err, cause)
	assert.False(t, (&GatewayError{Kind: GatewayRejected}).Retryable())
	assert.True(t, (&GatewayError{Kind: GatewayUnknown}).Retryable())
}

func TestParsePaymentMethod(t *testing.T) {
	m, err := ParsePaymentMethod("")
	require.NoError(t, err)
	assert.Equal(t, PaymentMethodOnline, m)

	m, err = ParsePaymentMethod("cod")
	require.NoError(t, err)
	assert.Equal(t, PaymentMethodCOD, m)

	_, err = ParsePaymentMethod("barter")
	assert.ErrorIs(t, err, ErrInvalidPaymentMethod)
}
