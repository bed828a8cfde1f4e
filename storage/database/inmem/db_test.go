package inmemdb

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/testutil"
)

func TestDB_InTx(t *testing.T) {
	ctx := context.Background()
	db := Open()
	repo := NewCourseRepository(db)
	crs := testutil.CreateCourse(t, repo, "Go", "Programming", 2)
	errBoom := errors.New("boom")

	tests := []struct {
		name      string
		fn        func(exec core.DBExecutor) error
		wantErr   error
		wantPanic bool
		wantCount int
	}{
		{
			name: "error restores tables",
			fn: func(exec core.DBExecutor) error {
				if _, err := repo.IncrementEnrollment(ctx, crs.ID, exec); err != nil {
					return err
				}
				return errBoom
			},
			wantErr: errBoom,
		},
		{
			name: "panic restores tables",
			fn: func(exec core.DBExecutor) error {
				if _, err := repo.IncrementEnrollment(ctx, crs.ID, exec); err != nil {
					return err
				}
				panic("boom")
			},
			wantPanic: true,
		},
		{
			name: "commit",
			fn: func(exec core.DBExecutor) error {
				_, err := repo.IncrementEnrollment(ctx, crs.ID, exec)
				return err
			},
			wantCount: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := func() error { return db.InTx(ctx, tt.fn) }
			if tt.wantPanic {
				assert.Panics(t, func() { _ = run() })
			} else {
				assert.Equal(t, tt.wantErr, run())
			}

			// the lock is released either way
			got, err := repo.GetCourse(ctx, crs.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCount, got.CurrentEnrollment)
		})
	}
}
