package repository

import (
	"context"
	"fmt"
	"reflect"

	"github.com/amirasaad/microgive/pkg/repository"
	"gorm.io/gorm"
)

// UoW provides transaction boundary and repository access in one
// abstraction. Repositories handed out inside Do share its transaction.
type UoW struct {
	db           *gorm.DB
	tx           *gorm.DB
	repoRegistry map[reflect.Type]func(*gorm.DB) any
}

// Option customises a UoW.
type Option func(*options)

type options struct {
	applyAttempts int
}

// WithApplyAttempts bounds optimistic retries on need credits.
func WithApplyAttempts(n int) Option {
	return func(o *options) { o.applyAttempts = n }
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// NewUoW creates a new UoW for the given *gorm.DB.
func NewUoW(db *gorm.DB, opts ...Option) *UoW {
	o := options{applyAttempts: DefaultApplyAttempts}
	for _, opt := range opts {
		opt(&o)
	}
	return &UoW{
		db: db,
		repoRegistry: map[reflect.Type]func(*gorm.DB) any{
			typeOf[repository.NeedRepository](): func(db *gorm.DB) any {
				return NewNeedRepository(db, o.applyAttempts)
			},
			typeOf[repository.ContributionRepository](): func(db *gorm.DB) any { return NewContributionRepository(db) },
			typeOf[repository.PaymentRepository]():      func(db *gorm.DB) any { return NewPaymentRepository(db) },
			typeOf[repository.RetryRepository]():        func(db *gorm.DB) any { return NewRetryRepository(db) },
			typeOf[repository.ReceiptRepository]():      func(db *gorm.DB) any { return NewReceiptRepository(db) },
			typeOf[repository.ConnectedAccountRepository](): func(db *gorm.DB) any {
				return NewConnectedAccountRepository(db)
			},
			typeOf[repository.WebhookEventRepository](): func(db *gorm.DB) any { return NewWebhookEventRepository(db) },
			typeOf[repository.ContributorStatsRepository](): func(db *gorm.DB) any {
				return NewContributorStatsRepository(db)
			},
		},
	}
}

// Do runs fn in a transaction boundary, providing a UoW with repository access.
func (u *UoW) Do(ctx context.Context, fn func(uow repository.UnitOfWork) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&UoW{db: u.db, tx: tx, repoRegistry: u.repoRegistry})
	})
}

// GetRepository returns a repository bound to the transaction when inside
// Do, or to the base connection otherwise.
func (u *UoW) GetRepository(repoType reflect.Type) (any, error) {
	constructor, ok := u.repoRegistry[repoType]
	if !ok {
		return nil, fmt.Errorf("unsupported repository type: %v", repoType)
	}
	session := u.tx
	if session == nil {
		session = u.db
	}
	return constructor(session), nil
}

func get[T any](u *UoW) (T, error) {
	var zero T
	repoAny, err := u.GetRepository(typeOf[T]())
	if err != nil {
		return zero, err
	}
	repo, ok := repoAny.(T)
	if !ok {
		return zero, fmt.Errorf("repository %v has unexpected type %T", typeOf[T](), repoAny)
	}
	return repo, nil
}

func (u *UoW) NeedRepository() (repository.NeedRepository, error) {
	return get[repository.NeedRepository](u)
}

func (u *UoW) ContributionRepository() (repository.ContributionRepository, error) {
	return get[repository.ContributionRepository](u)
}

func (u *UoW) PaymentRepository() (repository.PaymentRepository, error) {
	return get[repository.PaymentRepository](u)
}

func (u *UoW) RetryRepository() (repository.RetryRepository, error) {
	return get[repository.RetryRepository](u)
}

func (u *UoW) ReceiptRepository() (repository.ReceiptRepository, error) {
	return get[repository.ReceiptRepository](u)
}

func (u *UoW) ConnectedAccountRepository() (repository.ConnectedAccountRepository, error) {
	return get[repository.ConnectedAccountRepository](u)
}

func (u *UoW) WebhookEventRepository() (repository.WebhookEventRepository, error) {
	return get[repository.WebhookEventRepository](u)
}

func (u *UoW) ContributorStatsRepository() (repository.ContributorStatsRepository, error) {
	return get[repository.ContributorStatsRepository](u)
}

var _ repository.UnitOfWork = (*UoW)(nil)
