package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "blog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestGetReturnsStoredPost(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Create(ctx, &Post{ID: "hello", Title: "Hello", Content: "line one\nline two"}))

	p, err := db.Get(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", p.ID)
	assert.Equal(t, "Hello", p.Title)
	assert.Equal(t, "line one\nline two", p.Content)
}

func TestGetMissing(t *testing.T) {
	db := openTestDB(t)

	_, err := db.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateDuplicate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Create(ctx, &Post{ID: "a", Title: "A"}))
	assert.ErrorIs(t, db.Create(ctx, &Post{ID: "a", Title: "again"}), ErrSlugTaken)
}

func TestUpdate(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		to      string
		wantErr error
	}{
		{name: "same slug", from: "s1", to: "s1"},
		{name: "rename", from: "s1", to: "s2"},
		{name: "collision", from: "s1", to: "other", wantErr: ErrSlugTaken},
		{name: "missing", from: "ghost", to: "s3", wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := openTestDB(t)
			ctx := context.Background()
			require.NoError(t, db.Create(ctx, &Post{ID: "s1", Title: "T1", Content: "C1"}))
			require.NoError(t, db.Create(ctx, &Post{ID: "other", Title: "O", Content: "O"}))

			err := db.Update(ctx, tt.from, &Post{ID: tt.to, Title: "T2", Content: "C2"})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)

				// nothing changed
				p, err := db.Get(ctx, "s1")
				require.NoError(t, err)
				assert.Equal(t, "T1", p.Title)
				return
			}
			require.NoError(t, err)

			p, err := db.Get(ctx, tt.to)
			require.NoError(t, err)
			assert.Equal(t, &Post{ID: tt.to, Title: "T2", Content: "C2", CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt}, p)

			if tt.from != tt.to {
				_, err := db.Get(ctx, tt.from)
				assert.ErrorIs(t, err, ErrNotFound)
			}

			n, err := db.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)
		})
	}
}

func TestDeleteTwice(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Create(ctx, &Post{ID: "gone", Title: "Gone"}))

	require.NoError(t, db.Delete(ctx, "gone"))
	_, err := db.Get(ctx, "gone")
	assert.ErrorIs(t, err, ErrNotFound)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, db.Delete(ctx, "gone"), ErrNotFound)
	}
}

func TestListNewestFirst(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	db.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	require.NoError(t, db.Create(ctx, &Post{ID: "first", Title: "First"}))
	require.NoError(t, db.Create(ctx, &Post{ID: "second", Title: "Second"}))

	posts, err := db.List(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "second", posts[0].ID)
}

func TestDriverErrorsAreWrapped(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	db := New(mockDB)
	boom := errors.New("disk I/O error")

	mock.ExpectQuery("SELECT id, title, content").WithArgs("x").WillReturnError(boom)
	_, err = db.Get(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNotFound)

	mock.ExpectExec("UPDATE posts").WillReturnError(boom)
	err = db.Update(context.Background(), "x", &Post{ID: "y"})
	assert.ErrorIs(t, err, boom)

	mock.ExpectExec("DELETE FROM posts").WithArgs("x").WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, db.Delete(context.Background(), "x"), ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Upsert(ctx, &Post{ID: "u", Title: "One", Content: "first"}))
	created, err := db.Get(ctx, "u")
	require.NoError(t, err)

	require.NoError(t, db.Upsert(ctx, &Post{ID: "u", Title: "Two", Content: "second"}))
	p, err := db.Get(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, "Two", p.Title)
	assert.Equal(t, "second", p.Content)
	assert.True(t, p.CreatedAt.Equal(created.CreatedAt))

	n, err := db.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
