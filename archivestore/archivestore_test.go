package archivestore_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/contenox/coffeehouse/archivestore"
	"github.com/contenox/coffeehouse/conversationstore"
	libdb "github.com/contenox/coffeehouse/libdbexec"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) (context.Context, libdb.DBManager) {
	t.Helper()
	ctx := context.TODO()
	db, err := libdb.NewSQLiteDBManager(ctx, ":memory:", archivestore.Schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})
	return ctx, db
}

func marshal(t *testing.T, msg conversationstore.Message) []byte {
	t.Helper()
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	return raw
}

func TestArchiveStore_CreateAndListBuckets(t *testing.T) {
	ctx, db := setupDB(t)
	store := archivestore.New(db.WithoutTransaction())

	require.NoError(t, store.CreateBucketIndex(ctx, "group"))
	require.NoError(t, store.CreateBucketIndex(ctx, "agent-a"))
	// idempotent
	require.NoError(t, store.CreateBucketIndex(ctx, "group"))

	buckets, err := store.ListBuckets(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"agent-a", "group"}, buckets)
}

func TestArchiveStore_AppendAndList(t *testing.T) {
	ctx, db := setupDB(t)
	store := archivestore.New(db.WithoutTransaction())

	require.NoError(t, store.CreateBucketIndex(ctx, "group"))

	now := time.Now().UTC()
	msgs := []*archivestore.ArchivedMessage{
		{ID: "m1", Bucket: "group", Payload: marshal(t, conversationstore.Message{ID: "m1", Sender: "user", Content: "hello"}), AddedAt: now},
		{ID: "m2", Bucket: "group", Payload: marshal(t, conversationstore.Message{ID: "m2", Sender: "agent-a", Content: "hi there"}), AddedAt: now.Add(time.Millisecond)},
	}
	require.NoError(t, store.AppendMessages(ctx, msgs...))

	got, err := store.ListMessages(ctx, "group")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "m1", got[0].ID)
	require.Equal(t, "m2", got[1].ID)

	var decoded conversationstore.Message
	require.NoError(t, json.Unmarshal(got[1].Payload, &decoded))
	require.Equal(t, "hi there", decoded.Content)

	count, err := store.CountMessages(ctx, "group")
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestArchiveStore_LastMessage(t *testing.T) {
	ctx, db := setupDB(t)
	store := archivestore.New(db.WithoutTransaction())

	_, err := store.LastMessage(ctx, "group")
	require.ErrorIs(t, err, archivestore.ErrNotFound)

	now := time.Now().UTC()
	require.NoError(t, store.AppendMessages(ctx,
		&archivestore.ArchivedMessage{ID: "m1", Bucket: "group", Payload: []byte(`{}`), AddedAt: now},
		&archivestore.ArchivedMessage{ID: "m2", Bucket: "group", Payload: []byte(`{}`), AddedAt: now.Add(time.Second)},
	))

	last, err := store.LastMessage(ctx, "group")
	require.NoError(t, err)
	require.Equal(t, "m2", last.ID)
}

func TestArchiveStore_DeleteMessages(t *testing.T) {
	ctx, db := setupDB(t)
	store := archivestore.New(db.WithoutTransaction())

	require.NoError(t, store.AppendMessages(ctx,
		&archivestore.ArchivedMessage{ID: "m1", Bucket: "group", Payload: []byte(`{}`)},
	))
	require.NoError(t, store.DeleteMessages(ctx, "group"))

	count, err := store.CountMessages(ctx, "group")
	require.NoError(t, err)
	require.Zero(t, count)

	require.ErrorIs(t, store.DeleteMessages(ctx, "group"), archivestore.ErrNotFound)
}

func TestArchiveStore_DeleteBucketIndex(t *testing.T) {
	ctx, db := setupDB(t)
	store := archivestore.New(db.WithoutTransaction())

	require.NoError(t, store.CreateBucketIndex(ctx, "agent-a"))
	require.NoError(t, store.DeleteBucketIndex(ctx, "agent-a"))
	require.ErrorIs(t, store.DeleteBucketIndex(ctx, "agent-a"), archivestore.ErrNotFound)
}
