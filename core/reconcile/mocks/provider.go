package mocks

import (
	"context"

	"identity-sync/core/reconcile"

	"github.com/stretchr/testify/mock"
)

// Provider is a mock implementation of reconcile.Provider
type Provider struct {
	mock.Mock
}

func (m *Provider) ListUsers(ctx context.Context) ([]reconcile.ProviderUser, error) {
	args := m.Called(ctx)
	if users, ok := args.Get(0).([]reconcile.ProviderUser); ok {
		return users, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Provider) CreateUser(ctx context.Context, user reconcile.CanonicalUser, opts reconcile.UserOptions) (string, error) {
	args := m.Called(ctx, user, opts)
	return args.String(0), args.Error(1)
}

func (m *Provider) UpdateUser(ctx context.Context, providerID string, user reconcile.CanonicalUser, fields []reconcile.Field, opts reconcile.UserOptions) error {
	args := m.Called(ctx, providerID, user, fields, opts)
	return args.Error(0)
}

func (m *Provider) DisableUser(ctx context.Context, providerID string) error {
	args := m.Called(ctx, providerID)
	return args.Error(0)
}

func (m *Provider) EnableUser(ctx context.Context, providerID string) error {
	args := m.Called(ctx, providerID)
	return args.Error(0)
}

func (m *Provider) SetMetadata(ctx context.Context, providerID, key, value string) error {
	args := m.Called(ctx, providerID, key, value)
	return args.Error(0)
}

func (m *Provider) AddGrant(ctx context.Context, providerID string) error {
	args := m.Called(ctx, providerID)
	return args.Error(0)
}

func (m *Provider) LinkSSO(ctx context.Context, providerID string, user reconcile.CanonicalUser) error {
	args := m.Called(ctx, providerID, user)
	return args.Error(0)
}

// Source is a mock implementation of reconcile.Source
type Source struct {
	mock.Mock
}

func (m *Source) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *Source) FetchAll(ctx context.Context) ([]reconcile.RawRecord, error) {
	args := m.Called(ctx)
	if records, ok := args.Get(0).([]reconcile.RawRecord); ok {
		return records, args.Error(1)
	}
	return nil, args.Error(1)
}
