//go:build integration

package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/force-h2020/wfmanager/errors"
	"github.com/force-h2020/wfmanager/natsclient"
)

func TestStore_Lifecycle(t *testing.T) {
	tc := natsclient.NewTestClient(t, natsclient.WithKV())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := OpenStore(ctx, tc.Client, "")
	assert.True(t, errors.Is(err, errors.ErrKeyNotFound), "open never creates the bucket")

	store, err := NewStore(ctx, tc.Client, "")
	require.NoError(t, err)

	names, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	wf, err := Decode([]byte(sampleDocument))
	require.NoError(t, err)

	rev, err := store.Create(ctx, "demo", wf)
	require.NoError(t, err)

	_, err = store.Create(ctx, "demo", wf)
	assert.True(t, errors.Is(err, errors.ErrConflict))

	loaded, gotRev, err := store.Get(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, rev, gotRev)
	assert.Equal(t, "x", loaded.MCO().Parameters()[0].Name())

	loaded.MCO().Parameters()[0].SetName("renamed")
	newRev, err := store.Update(ctx, "demo", loaded, gotRev)
	require.NoError(t, err)
	assert.Greater(t, newRev, gotRev)

	_, err = store.Update(ctx, "demo", loaded, gotRev)
	assert.True(t, errors.Is(err, errors.ErrConflict), "stale revision must conflict")

	names, err = store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"demo"}, names)

	reader, err := OpenStore(ctx, tc.Client, BucketName)
	require.NoError(t, err)
	seen, seenRev, err := reader.Get(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, newRev, seenRev)
	assert.Equal(t, "renamed", seen.MCO().Parameters()[0].Name())

	require.NoError(t, store.Delete(ctx, "demo"))
	_, _, err = store.Get(ctx, "demo")
	assert.True(t, errors.Is(err, errors.ErrKeyNotFound))
}
