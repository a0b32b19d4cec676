package repository

import (
	"context"
	"reflect"
)

// UnitOfWork defines the contract for transactional work and type-safe
// repository access. Every repository obtained inside Do shares the same
// transaction, so a settlement either lands completely or not at all.
type UnitOfWork interface {
	// Do executes fn within a transaction boundary. If fn returns an error,
	// the transaction is rolled back.
	Do(ctx context.Context, fn func(uow UnitOfWork) error) error

	// GetRepository returns a repository of the requested type bound to the
	// current transaction or, outside Do, to the base session.
	//   repoAny, err := uow.GetRepository(reflect.TypeOf((*NeedRepository)(nil)).Elem())
	GetRepository(repoType reflect.Type) (any, error)

	NeedRepository() (NeedRepository, error)
	ContributionRepository() (ContributionRepository, error)
	PaymentRepository() (PaymentRepository, error)
	RetryRepository() (RetryRepository, error)
	ReceiptRepository() (ReceiptRepository, error)
	ConnectedAccountRepository() (ConnectedAccountRepository, error)
	WebhookEventRepository() (WebhookEventRepository, error)
	ContributorStatsRepository() (ContributorStatsRepository, error)
}
