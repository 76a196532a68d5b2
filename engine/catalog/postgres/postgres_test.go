package postgres_test

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayforge/relayforge/engine/catalog/postgres"
	"github.com/relayforge/relayforge/engine/core"
	"github.com/relayforge/relayforge/engine/intent"
)

func Test_Store_Intents(t *testing.T) {
	ctx := context.Background()

	t.Run("Should upsert an intent via an INSERT ... ON CONFLICT", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		store := postgres.New(mock)

		mock.ExpectExec("INSERT INTO intents").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err = store.PutIntent(ctx, &intent.Metamodel{Name: "BOOK_FLIGHT"})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should reject a non-UPPER_SNAKE_CASE name before touching the database", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		store := postgres.New(mock)

		err = store.PutIntent(ctx, &intent.Metamodel{Name: "book_flight"})
		require.Error(t, err)
		var coreErr *core.Error
		require.ErrorAs(t, err, &coreErr)
		assert.Equal(t, core.CodeValidation, coreErr.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should return not-found as (nil, false, nil) rather than an error", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		store := postgres.New(mock)

		mock.ExpectQuery("SELECT (.+) FROM intents").
			WillReturnRows(mock.NewRows([]string{"id", "data"}))

		got, ok, err := store.GetIntent(ctx, core.MustNewID())
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, got)
	})

	t.Run("Should decode a stored intent row back into a Metamodel", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		store := postgres.New(mock)

		id := core.MustNewID()
		data := []byte(`{"id":"` + id.String() + `","name":"BOOK_FLIGHT","aiGenerated":false}`)
		rows := mock.NewRows([]string{"id", "data"}).AddRow(id.String(), data)
		mock.ExpectQuery("SELECT (.+) FROM intents").WillReturnRows(rows)

		got, ok, err := store.GetIntent(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "BOOK_FLIGHT", got.Name)
	})

	t.Run("Should rank SearchIntentsByVector by cosine similarity over all rows", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		store := postgres.New(mock)

		near := []byte(`{"id":"near","name":"BOOK_FLIGHT","embedding":[1,0]}`)
		far := []byte(`{"id":"far","name":"ORDER_PIZZA","embedding":[0,1]}`)
		rows := mock.NewRows([]string{"id", "data"}).AddRow("near", near).AddRow("far", far)
		mock.ExpectQuery("SELECT (.+) FROM intents").WillReturnRows(rows)

		matches, err := store.SearchIntentsByVector(ctx, []float32{0.9, 0.1}, 1)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "near", matches[0].ID)
	})
}

func Test_Store_SaveEdgeBindings(t *testing.T) {
	ctx := context.Background()

	t.Run("Should fetch, merge, then re-persist the owning workflow", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		store := postgres.New(mock)

		wfID := core.MustNewID()
		data := []byte(`{"id":"` + wfID.String() + `","edges":[{"id":"e1","bindings":{"a.x":"b.y"}}]}`)
		rows := mock.NewRows([]string{"id", "data"}).AddRow(wfID.String(), data)
		mock.ExpectQuery("SELECT (.+) FROM meta_workflows").WillReturnRows(rows)
		mock.ExpectExec("INSERT INTO meta_workflows").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err = store.SaveEdgeBindings(ctx, wfID, "e1", map[string]string{"a.z": "b.w"})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should error when the named edge does not exist on the workflow", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		store := postgres.New(mock)

		wfID := core.MustNewID()
		data := []byte(`{"id":"` + wfID.String() + `","edges":[{"id":"e1"}]}`)
		rows := mock.NewRows([]string{"id", "data"}).AddRow(wfID.String(), data)
		mock.ExpectQuery("SELECT (.+) FROM meta_workflows").WillReturnRows(rows)

		err = store.SaveEdgeBindings(ctx, wfID, "ghost", map[string]string{"a.z": "b.w"})
		require.Error(t, err)
	})
}
