package database

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestConnectMongoWithRetry_ReleasesFailedClients(t *testing.T) {
	baseline := runtime.NumGoroutine()

	// nothing listens on port 1, so every attempt connects lazily and fails at ping
	uri := "mongodb://127.0.0.1:1/?serverSelectionTimeoutMS=100&connectTimeoutMS=100"
	_, err := ConnectMongoWithRetry(context.Background(), uri, 2*time.Second, 3, time.Millisecond)
	require.Error(t, err)

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= baseline+2
	}, 3*time.Second, 50*time.Millisecond, "failed attempts left client goroutines running")
}

func TestConnectMongoWithRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ConnectMongoWithRetry(ctx, "mongodb://127.0.0.1:1/?serverSelectionTimeoutMS=50", time.Second, 5, time.Second)
	require.Error(t, err)
}

func TestEnsureIndexes(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("user provider ids are sparse unique", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		require.NoError(mt, EnsureUserIndexes(context.Background(), mt.Coll))

		evt := mt.GetStartedEvent()
		require.Equal(mt, "createIndexes", evt.CommandName)
		idx, err := evt.Command.Lookup("indexes").Array().Values()
		require.NoError(mt, err)
		require.Len(mt, idx, 3)

		names := make([]string, 0, len(idx))
		for _, v := range idx {
			d := v.Document()
			require.True(mt, d.Lookup("unique").Boolean())
			require.True(mt, d.Lookup("sparse").Boolean())
			names = append(names, d.Lookup("name").StringValue())
		}
		require.ElementsMatch(mt, []string{"uniq_googleId", "uniq_twitterId", "uniq_githubId"}, names)
	})

	mt.Run("session expiry ttl", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		require.NoError(mt, EnsureSessionIndexes(context.Background(), mt.Coll))

		idx, err := mt.GetStartedEvent().Command.Lookup("indexes").Array().Values()
		require.NoError(mt, err)
		require.Len(mt, idx, 1)
		d := idx[0].Document()
		require.Equal(mt, int32(0), d.Lookup("expireAfterSeconds").Int32())
		require.Equal(mt, "ttl_expiresAt", d.Lookup("name").StringValue())
	})

	mt.Run("index errors surface", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 11000, Message: "E11000 duplicate key error"}))
		require.Error(mt, EnsureUserIndexes(context.Background(), mt.Coll))
	})
}
