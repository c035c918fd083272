package service

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tipline/tipline/internal/models"
	"github.com/tipline/tipline/internal/repo"
)

func newTipService(t *testing.T) *TipService {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Tip{}, &models.Comment{}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	return &TipService{Repo: repo.New(db)}
}

func TestTipService_CreateTip_Validation(t *testing.T) {
	t.Parallel()

	svc := newTipService(t)
	ctx := context.Background()
	author := uuid.New()

	tests := []struct {
		name  string
		match string
		pick  string
		odds  float64
	}{
		{name: "empty match", match: "", pick: "home win", odds: 1.8},
		{name: "empty pick", match: "A vs B", pick: "", odds: 1.8},
		{name: "odds below one", match: "A vs B", pick: "home win", odds: 0.9},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			tip, err := svc.CreateTip(ctx, author, tt.match, tt.pick, tt.odds, "")
			require.Error(t, err)
			assert.Nil(t, tip)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestTipService_CreateAndGet_ViewCounting(t *testing.T) {
	t.Parallel()

	svc := newTipService(t)
	ctx := context.Background()
	author := uuid.New()

	tip, err := svc.CreateTip(ctx, author, "Arsenal vs Spurs", "over 2.5", 1.85, "derby goals")
	require.NoError(t, err)
	require.NotNil(t, tip)
	assert.Equal(t, models.TipPublished, tip.Status)

	// The author reading their own tip is not a view.
	got, err := svc.GetTip(ctx, tip.ID, author, models.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, tip.ID, got.ID)
	assert.Zero(t, got.Views)

	// Anonymous and other users are.
	got, err = svc.GetTip(ctx, tip.ID, uuid.Nil, "")
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.Views)

	got, err = svc.GetTip(ctx, tip.ID, uuid.New(), models.RoleUser)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.Views)
}

func TestTipService_GetTip_HiddenVisibility(t *testing.T) {
	t.Parallel()

	svc := newTipService(t)
	ctx := context.Background()
	author := uuid.New()

	tip, err := svc.CreateTip(ctx, author, "C vs D", "away win", 2.1, "")
	require.NoError(t, err)
	require.NoError(t, svc.HideTip(ctx, tip.ID, uuid.New()))

	// Hidden tips report not-found to anonymous callers and other users.
	got, err := svc.GetTip(ctx, tip.ID, uuid.Nil, "")
	assert.Nil(t, got)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	got, err = svc.GetTip(ctx, tip.ID, uuid.New(), models.RoleUser)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// The author and moderators still see them, without view counting.
	got, err = svc.GetTip(ctx, tip.ID, author, models.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, models.TipHidden, got.Status)
	assert.Zero(t, got.Views)

	got, err = svc.GetTip(ctx, tip.ID, uuid.New(), models.RoleModerator)
	require.NoError(t, err)
	assert.Zero(t, got.Views)

	// Hidden tips take no new comments either.
	_, err = svc.AddComment(ctx, tip.ID, author, "too late")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestTipService_ListTips_OmitsHidden(t *testing.T) {
	t.Parallel()

	svc := newTipService(t)
	ctx := context.Background()
	author := uuid.New()
	moderator := uuid.New()

	visible, err := svc.CreateTip(ctx, author, "A vs B", "home win", 1.5, "")
	require.NoError(t, err)
	hidden, err := svc.CreateTip(ctx, author, "C vs D", "away win", 2.1, "")
	require.NoError(t, err)

	require.NoError(t, svc.HideTip(ctx, hidden.ID, moderator))

	total, items, err := svc.ListTips(ctx, 0, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, visible.ID, items[0].ID)
}

func TestTipService_Comments(t *testing.T) {
	t.Parallel()

	svc := newTipService(t)
	ctx := context.Background()
	author := uuid.New()

	tip, err := svc.CreateTip(ctx, author, "A vs B", "home win", 1.5, "")
	require.NoError(t, err)

	_, err = svc.AddComment(ctx, tip.ID, author, "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.AddComment(ctx, uuid.New(), author, "orphan")
	require.Error(t, err)

	comment, err := svc.AddComment(ctx, tip.ID, author, "solid pick")
	require.NoError(t, err)
	require.NotNil(t, comment)

	comments, err := svc.ListComments(ctx, tip.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "solid pick", comments[0].Body)
}
