package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/jobfeed-service/internal/model"
	"jobmate/jobfeed-service/internal/store"
)

// fakeDB keeps the last upserted arguments and replays them on QueryRow.
type fakeDB struct {
	execSQL  []string
	lastArgs []any
	execErr  error
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	if len(args) > 0 {
		f.lastArgs = args
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	return fakeRow{args: f.lastArgs}
}

type fakeRow struct {
	args []any
}

func (r fakeRow) Scan(dest ...any) error {
	if r.args == nil {
		return pgx.ErrNoRows
	}
	*dest[0].(*string) = r.args[0].(string)
	*dest[1].(*time.Time) = r.args[1].(time.Time)
	*dest[2].(*int) = r.args[2].(int)
	*dest[3].(*[]byte) = []byte(r.args[3].(string))
	return nil
}

func TestPostgresSnapshot_EnsureSchema(t *testing.T) {
	db := &fakeDB{}

	require.NoError(t, store.NewPostgresSnapshot(db).EnsureSchema(context.Background()))

	require.Len(t, db.execSQL, 1)
	assert.Contains(t, db.execSQL[0], "CREATE TABLE IF NOT EXISTS job_results_snapshot")
}

func TestPostgresSnapshot_LoadEmpty(t *testing.T) {
	a, err := store.NewPostgresSnapshot(&fakeDB{}).Load(context.Background())

	assert.Nil(t, a)
	assert.ErrorIs(t, err, store.ErrNoArtifact)
}

func TestPostgresSnapshot_WriteThenLoad(t *testing.T) {
	db := &fakeDB{}
	snap := store.NewPostgresSnapshot(db)
	want := sampleArtifact("run-42", 2)

	require.NoError(t, snap.Write(context.Background(), want))
	require.Len(t, db.execSQL, 1)
	assert.True(t, strings.Contains(db.execSQL[0], "ON CONFLICT (id) DO UPDATE"))

	got, err := snap.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want.RunID, got.RunID)
	assert.Equal(t, want.Count, got.Count)
	assert.True(t, want.GeneratedAt.Equal(got.GeneratedAt))

	wantJSON, _ := json.Marshal(want.Records)
	gotJSON, _ := json.Marshal(got.Records)
	assert.JSONEq(t, string(wantJSON), string(gotJSON))
}

func TestPostgresSnapshot_WriteError(t *testing.T) {
	db := &fakeDB{execErr: errors.New("connection refused")}

	err := store.NewPostgresSnapshot(db).Write(context.Background(), sampleArtifact("r", 1))

	assert.ErrorContains(t, err, "upsert snapshot")
}

func TestPostgresSnapshot_EmptyRecordsLoadAsEmptySlice(t *testing.T) {
	db := &fakeDB{}
	snap := store.NewPostgresSnapshot(db)
	require.NoError(t, snap.Write(context.Background(), &model.Artifact{RunID: "r", GeneratedAt: time.Now()}))

	got, err := snap.Load(context.Background())

	require.NoError(t, err)
	assert.NotNil(t, got.Records)
	assert.Empty(t, got.Records)
}
