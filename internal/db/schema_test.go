package db_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/db"
	mock_database "gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/db/mocks"
)

func TestMigrate(t *testing.T) {
	ctx := context.Background()

	t.Run("applies schema migrations and triggers", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		mockDB := mock_database.NewMockDB(ctrl)

		var statements []string
		mockDB.EXPECT().Exec(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, query string, _ ...interface{}) (pgconn.CommandTag, error) {
				statements = append(statements, query)
				return nil, nil
			}).AnyTimes()

		require.NoError(t, db.Migrate(ctx, mockDB))

		require.NotEmpty(t, statements)
		assert.Contains(t, statements[0], "CREATE TABLE IF NOT EXISTS product_items")
		assert.Contains(t, statements[1], "idx_order_items_active_unit")

		var notifyTriggers int
		for _, s := range statements {
			if strings.Contains(s, "EXECUTE FUNCTION notify_row_change()") {
				notifyTriggers++
			}
		}
		assert.Equal(t, 4, notifyTriggers)
	})

	t.Run("stops on first failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		mockDB := mock_database.NewMockDB(ctrl)

		mockDB.EXPECT().Exec(gomock.Any(), gomock.Any()).Return(nil, errors.New("syntax error")).Times(1)

		err := db.Migrate(ctx, mockDB)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "create schema")
	})
}
