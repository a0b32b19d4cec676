// Package mocks holds testify mocks shared by service tests.
package mocks

import (
	"context"

	"github.com/amirasaad/microgive/pkg/gateway"
	"github.com/stretchr/testify/mock"
)

// Gateway is a testify mock of gateway.Gateway.
type Gateway struct {
	mock.Mock
}

// NewGateway creates a mock that asserts its expectations at cleanup.
func NewGateway(t interface {
	mock.TestingT
	Cleanup(func())
}) *Gateway {
	m := &Gateway{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *Gateway) Name() string { return "mock" }

func (m *Gateway) CreateIntent(ctx context.Context, params *gateway.IntentParams) (*gateway.Intent, error) {
	args := m.Called(ctx, params)
	var intent *gateway.Intent
	if v := args.Get(0); v != nil {
		intent = v.(*gateway.Intent)
	}
	return intent, args.Error(1)
}

func (m *Gateway) RetrieveIntent(ctx context.Context, intentID string) (*gateway.Intent, error) {
	args := m.Called(ctx, intentID)
	var intent *gateway.Intent
	if v := args.Get(0); v != nil {
		intent = v.(*gateway.Intent)
	}
	return intent, args.Error(1)
}

var _ gateway.Gateway = (*Gateway)(nil)
