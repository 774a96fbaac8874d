package mongostore

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson"

	"stockroom/internal/stock"
	"stockroom/internal/storage/storetest"
)

func ptr[T any](v T) *T { return &v }

func TestSetDocument(t *testing.T) {
	assert.Empty(t, setDocument(stock.Patch{}))
	assert.Equal(t, bson.M{"title": "Fish Food", "done": true},
		setDocument(stock.Patch{Title: ptr("Fish Food"), Done: ptr(true)}))
}

func TestStore(t *testing.T) {
	endpoint := storetest.StartContainer(t, testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForLog("Waiting for connections"),
	})

	ctx := context.Background()
	client, err := Connect(ctx, "mongodb://"+endpoint)
	require.NoError(t, err)
	t.Cleanup(func() { client.Disconnect(context.Background()) })

	var n atomic.Int32
	storetest.RunPaged(t, func(t *testing.T, pageSize int) stock.Store {
		db := client.Database(fmt.Sprintf("stockroom_test_%d", n.Add(1)))
		t.Cleanup(func() { db.Drop(context.Background()) })

		s := New(db, pageSize)
		require.NoError(t, s.Init(ctx))
		return s
	})

	t.Run("InitRaisesCounter", func(t *testing.T) {
		db := client.Database("stockroom_test_init")
		t.Cleanup(func() { db.Drop(context.Background()) })

		_, err := db.Collection(itemsCollection).InsertOne(ctx, stock.Item{ID: 41, Title: "imported"})
		require.NoError(t, err)

		s := New(db, 50)
		require.NoError(t, s.Init(ctx))

		item, err := s.Create(ctx, stock.Item{Title: "new"})
		require.NoError(t, err)
		assert.Equal(t, int64(42), item.ID)
	})
}
