package repository

import (
	"context"
	"testing"
	"time"

	"storefront/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func newMock(t *testing.T) *mtest.T {
	return mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
}

func TestUserRepository(t *testing.T) {
	mt := newMock(t)

	mt.Run("find by username", func(mt *mtest.T) {
		id := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(1, "storefront.users", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: id},
			{Key: "username", Value: "alice123"},
			{Key: "password_hash", Value: "hash"},
			{Key: "role", Value: "user"},
		}))

		user, err := NewUserRepository(mt.DB).FindByUsername(context.Background(), "alice123")
		require.NoError(mt, err)
		assert.Equal(mt, id, user.ID)
		assert.Equal(mt, "hash", user.PasswordHash)
	})

	mt.Run("missing user", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "storefront.users", mtest.FirstBatch))

		_, err := NewUserRepository(mt.DB).FindByUsername(context.Background(), "ghost")
		assert.ErrorIs(mt, err, ErrNotFound)
	})

	mt.Run("duplicate username", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index: 0, Code: 11000, Message: "duplicate key error",
		}))

		err := NewUserRepository(mt.DB).Create(context.Background(), &models.User{Username: "alice123"})
		assert.ErrorIs(mt, err, ErrDuplicate)
	})
}

func TestProductRepository(t *testing.T) {
	mt := newMock(t)

	mt.Run("decrement stock", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1},
		))
		err := NewProductRepository(mt.DB).DecrementStock(context.Background(), primitive.NewObjectID(), 2)
		assert.NoError(mt, err)
	})

	mt.Run("decrement below zero", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0},
		))
		err := NewProductRepository(mt.DB).DecrementStock(context.Background(), primitive.NewObjectID(), 5)
		assert.ErrorIs(mt, err, ErrInsufficientStock)
	})

	mt.Run("find by ids skips missing", func(mt *mtest.T) {
		present := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "storefront.products", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: present},
			{Key: "name", Value: "Widget"},
			{Key: "price", Value: 9.99},
			{Key: "stock", Value: 4},
		}))

		found, err := NewProductRepository(mt.DB).FindByIDs(context.Background(),
			[]primitive.ObjectID{present, primitive.NewObjectID()})
		require.NoError(mt, err)
		require.Len(mt, found, 1)
		assert.Equal(mt, "Widget", found[present].Name)
	})

	mt.Run("update missing product", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}))
		_, err := NewProductRepository(mt.DB).Update(context.Background(), primitive.NewObjectID(),
			map[string]interface{}{"name": "New"})
		assert.ErrorIs(mt, err, ErrNotFound)
	})

	mt.Run("delete missing product", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))
		err := NewProductRepository(mt.DB).Delete(context.Background(), primitive.NewObjectID())
		assert.ErrorIs(mt, err, ErrNotFound)
	})

	mt.Run("count", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "storefront.products", mtest.FirstBatch,
			bson.D{{Key: "n", Value: int32(7)}}))
		n, err := NewProductRepository(mt.DB).Count(context.Background(), ProductQuery{Category: "Books"})
		require.NoError(mt, err)
		assert.Equal(mt, int64(7), n)
	})
}

func TestProductFilterQuotesSearch(t *testing.T) {
	filter := productFilter(ProductQuery{Search: "a.b*", Category: "Books"})
	assert.Equal(t, "Books", filter["category"])

	or := filter["$or"].(bson.A)
	require.Len(t, or, 3)
	re := or[0].(bson.M)["name"].(primitive.Regex)
	assert.Equal(t, `a\.b\*`, re.Pattern)
	assert.Equal(t, "i", re.Options)

	assert.Empty(t, productFilter(ProductQuery{}))
}

func TestCartRepository(t *testing.T) {
	mt := newMock(t)

	mt.Run("save advances version", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1},
		))
		cart := &models.Cart{ID: primitive.NewObjectID(), Version: 3}
		require.NoError(mt, NewCartRepository(mt.DB).Save(context.Background(), cart))
		assert.Equal(mt, int64(4), cart.Version)
	})

	mt.Run("save detects concurrent write", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0},
		))
		cart := &models.Cart{ID: primitive.NewObjectID(), Version: 3}
		err := NewCartRepository(mt.DB).Save(context.Background(), cart)
		assert.ErrorIs(mt, err, ErrVersionConflict)
		assert.Equal(mt, int64(3), cart.Version)
	})

	mt.Run("get or create", func(mt *mtest.T) {
		cartID := primitive.NewObjectID()
		userID := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: bson.D{
			{Key: "_id", Value: cartID},
			{Key: "user_id", Value: userID},
			{Key: "items", Value: bson.A{}},
			{Key: "version", Value: int64(0)},
		}}))

		cart, err := NewCartRepository(mt.DB).GetOrCreate(context.Background(), userID)
		require.NoError(mt, err)
		assert.Equal(mt, cartID, cart.ID)
		assert.Equal(mt, userID, cart.UserID)
		assert.Empty(mt, cart.Items)
	})
}

func TestOrderRepositoryClaim(t *testing.T) {
	mt := newMock(t)

	orderDoc := func(id primitive.ObjectID, status models.PaymentStatus) bson.D {
		return bson.D{
			{Key: "_id", Value: id},
			{Key: "payment_session_id", Value: "cs_test_1"},
			{Key: "payment_status", Value: string(status)},
			{Key: "order_status", Value: string(models.OrderStatusProcessing)},
		}
	}

	mt.Run("first claim wins", func(mt *mtest.T) {
		id := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: orderDoc(id, models.PaymentStatusPaid)}))

		order, claimed, err := NewOrderRepository(mt.DB).Claim(context.Background(), "cs_test_1", time.Now())
		require.NoError(mt, err)
		assert.True(mt, claimed)
		assert.Equal(mt, id, order.ID)
	})

	mt.Run("second claim returns existing order", func(mt *mtest.T) {
		id := primitive.NewObjectID()
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}),
			mtest.CreateCursorResponse(0, "storefront.orders", mtest.FirstBatch, orderDoc(id, models.PaymentStatusPaid)),
		)

		order, claimed, err := NewOrderRepository(mt.DB).Claim(context.Background(), "cs_test_1", time.Now())
		require.NoError(mt, err)
		assert.False(mt, claimed)
		assert.Equal(mt, models.PaymentStatusPaid, order.PaymentStatus)
	})

	mt.Run("unknown session", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}),
			mtest.CreateCursorResponse(0, "storefront.orders", mtest.FirstBatch),
		)

		_, _, err := NewOrderRepository(mt.DB).Claim(context.Background(), "cs_missing", time.Now())
		assert.ErrorIs(mt, err, ErrNotFound)
	})
}

func TestOrderRepositorySessionLifecycle(t *testing.T) {
	mt := newMock(t)

	mt.Run("attach session", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1},
		))
		err := NewOrderRepository(mt.DB).AttachSession(context.Background(), primitive.NewObjectID(), "cs_test_1")
		assert.NoError(mt, err)
	})

	mt.Run("attach to order bound elsewhere", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0},
		))
		err := NewOrderRepository(mt.DB).AttachSession(context.Background(), primitive.NewObjectID(), "cs_test_2")
		assert.ErrorIs(mt, err, ErrNotFound)
	})

	mt.Run("release claimed order", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1},
		))
		assert.NoError(mt, NewOrderRepository(mt.DB).Release(context.Background(), primitive.NewObjectID()))
	})

	mt.Run("release finished order", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0},
		))
		err := NewOrderRepository(mt.DB).Release(context.Background(), primitive.NewObjectID())
		assert.ErrorIs(mt, err, ErrNotFound)
	})
}

func TestCartRepositoryRemoveProducts(t *testing.T) {
	mt := newMock(t)

	mt.Run("pulls purchased lines", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1},
		))
		err := NewCartRepository(mt.DB).RemoveProducts(context.Background(), primitive.NewObjectID(), []primitive.ObjectID{primitive.NewObjectID()})
		assert.NoError(mt, err)
	})

	mt.Run("nothing to remove", func(mt *mtest.T) {
		err := NewCartRepository(mt.DB).RemoveProducts(context.Background(), primitive.NewObjectID(), nil)
		assert.NoError(mt, err)
	})
}
