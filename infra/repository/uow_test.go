package repository_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	infrarepo "github.com/amirasaad/microgive/infra/repository"
	"github.com/amirasaad/microgive/internal/fixtures/testdb"
	"github.com/amirasaad/microgive/pkg/domain/need"
	"github.com/amirasaad/microgive/pkg/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockUoW(t *testing.T) (*infrarepo.UoW, sqlmock.Sqlmock) {
	t.Helper()
	mockDb, mock, err := sqlmock.New()
	require.NoError(t, err)
	dialector := postgres.New(postgres.Config{
		Conn:       mockDb,
		DriverName: "postgres",
	})
	db, err := gorm.Open(dialector, &gorm.Config{})
	require.NoError(t, err)
	return infrarepo.NewUoW(db), mock
}

func TestUoW_GetRepository(t *testing.T) {
	uow, _ := newMockUoW(t)

	repoAny, err := uow.GetRepository(reflect.TypeOf((*repository.NeedRepository)(nil)).Elem())
	require.NoError(t, err)
	assert.Implements(t, (*repository.NeedRepository)(nil), repoAny)

	_, err = uow.GetRepository(reflect.TypeOf(""))
	assert.Error(t, err)

	for name, get := range map[string]func() (any, error){
		"needs":         func() (any, error) { return uow.NeedRepository() },
		"contributions": func() (any, error) { return uow.ContributionRepository() },
		"payments":      func() (any, error) { return uow.PaymentRepository() },
		"retries":       func() (any, error) { return uow.RetryRepository() },
		"receipts":      func() (any, error) { return uow.ReceiptRepository() },
		"accounts":      func() (any, error) { return uow.ConnectedAccountRepository() },
		"webhooks":      func() (any, error) { return uow.WebhookEventRepository() },
		"stats":         func() (any, error) { return uow.ContributorStatsRepository() },
	} {
		repo, err := get()
		assert.NoError(t, err, name)
		assert.NotNil(t, repo, name)
	}
}

func TestUoW_Do_CommitAndRollback(t *testing.T) {
	uow, mock := newMockUoW(t)

	mock.ExpectBegin()
	mock.ExpectCommit()
	err := uow.Do(context.Background(), func(repository.UnitOfWork) error { return nil })
	assert.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()
	boom := errors.New("boom")
	err = uow.Do(context.Background(), func(repository.UnitOfWork) error { return boom })
	assert.ErrorIs(t, err, boom)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUoW_Do_RollsBackWrites(t *testing.T) {
	uow, _ := testdb.UoW(t)
	ctx := context.Background()
	n, err := need.New(uuid.New(), "groceries", 1000, 0)
	require.NoError(t, err)

	boom := errors.New("abort")
	err = uow.Do(ctx, func(tx repository.UnitOfWork) error {
		needs, err := tx.NeedRepository()
		if err != nil {
			return err
		}
		if err := needs.Create(ctx, n); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	needs, err := uow.NeedRepository()
	require.NoError(t, err)
	_, err = needs.Get(ctx, n.ID)
	assert.Error(t, err)
}
