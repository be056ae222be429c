package repository_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/goliatone/go-authsession/repository"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupManager(t *testing.T) *repository.Manager {
	t.Helper()

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())
	t.Cleanup(func() {
		_ = bunDB.Close()
	})

	mngr := repository.NewRepositoryManager(bunDB)
	mngr.MustValidate()
	require.NoError(t, mngr.CreateSchema(context.Background()))

	return mngr
}
