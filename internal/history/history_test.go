package history

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xfeldman/vros/internal/protocol"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSessionLifecycle(t *testing.T) {
	db := testDB(t)
	started := time.Now().Truncate(time.Millisecond)

	require.NoError(t, db.StartSession(&Session{ID: "s1", AgentPath: "/bin/agent", StartedAt: started}))
	require.NoError(t, db.SetSessionPID("s1", 1234))

	got, err := db.GetSession("s1")
	require.NoError(t, err)
	assert.Equal(t, 1234, got.PID)
	assert.True(t, got.StartedAt.Equal(started))
	assert.False(t, got.Ended())

	require.NoError(t, db.EndSession("s1", started.Add(time.Minute), "agent: exit status 2"))
	got, err = db.GetSession("s1")
	require.NoError(t, err)
	assert.True(t, got.Ended())
	assert.Equal(t, "agent: exit status 2", got.Result)
}

func TestGetSessionNotFound(t *testing.T) {
	db := testDB(t)

	_, err := db.GetSession("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, db.EndSession("missing", time.Now(), ""), ErrNotFound)
}

func TestListSessionsNewestFirst(t *testing.T) {
	db := testDB(t)
	base := time.Now()
	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, db.StartSession(&Session{ID: id, AgentPath: "a", StartedAt: base.Add(time.Duration(i) * time.Second)}))
	}

	all, err := db.ListSessions(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "new", all[0].ID)

	two, err := db.ListSessions(2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestRecorderStoresUpdatesInOrder(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	rec := db.Recorder("s1")
	other := db.Recorder("s2")

	require.NoError(t, rec.Publish(ctx, protocol.ApplicationName{Application: &protocol.Application{Key: "a", Name: "Alpha"}}))
	require.NoError(t, rec.Publish(ctx, protocol.ApplicationName{}))
	require.NoError(t, other.Publish(ctx, protocol.ApplicationName{Application: &protocol.Application{Key: "x", Name: "X"}}))
	require.NoError(t, rec.Publish(ctx, protocol.ApplicationName{Application: &protocol.Application{Key: "b", Name: "Beta"}}))

	changes, err := db.Recent("s1", 0)
	require.NoError(t, err)
	require.Len(t, changes, 3)
	assert.Equal(t, "b", changes[0].Key)
	assert.True(t, changes[1].Cleared())
	assert.Equal(t, "Alpha", changes[2].Name)

	all, err := db.Recent("", 2)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].Key)
	assert.Equal(t, "s2", all[1].SessionID)
}

func TestConcurrentSessionWrites(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	require.NoError(t, db.StartSession(&Session{ID: "s1", AgentPath: "a", StartedAt: time.Now()}))
	rec := db.Recorder("s1")

	const n = 50
	errs := make(chan error, 2*n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			errs <- rec.Publish(ctx, protocol.ApplicationName{Application: &protocol.Application{Key: fmt.Sprintf("k%d", i), Name: "N"}})
		}(i)
		go func(i int) {
			defer wg.Done()
			errs <- db.SetSessionPID("s1", 1000+i)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	changes, err := db.Recent("s1", 0)
	require.NoError(t, err)
	assert.Len(t, changes, n)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Recorder("s").Publish(context.Background(), protocol.ApplicationName{}))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	changes, err := db.Recent("", 0)
	require.NoError(t, err)
	assert.Len(t, changes, 1)
}
