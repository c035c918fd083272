package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tipline/tipline/internal/events"
	"github.com/tipline/tipline/internal/models"
	"github.com/tipline/tipline/internal/repo"
	"github.com/tipline/tipline/pkg/logging"
)

// TipIndexer is the search-side projection of tips. Nil when search is not
// configured; indexing is best-effort either way.
type TipIndexer interface {
	IndexTip(ctx context.Context, tip *models.Tip) error
	DeleteTip(ctx context.Context, id string) error
}

type TipService struct {
	Repo     *repo.GormRepo
	Producer EventPublisher
	Indexer  TipIndexer
}

func (s *TipService) CreateTip(ctx context.Context, authorID uuid.UUID, match, pick string, odds float64, analysis string) (*models.Tip, error) {
	l := logging.FromContext(ctx).With("svc", "tips.create")

	if match == "" || pick == "" || odds < 1.0 {
		return nil, ErrValidation
	}

	tip := &models.Tip{
		ID:       uuid.New(),
		AuthorID: authorID,
		Match:    match,
		Pick:     pick,
		Odds:     odds,
		Analysis: analysis,
		Status:   models.TipPublished,
	}

	if err := s.Repo.CreateTip(ctx, tip); err != nil {
		l.Error("tip_create_error", "status", 500, "error", err)
		return nil, err
	}

	if s.Indexer != nil {
		if err := s.Indexer.IndexTip(ctx, tip); err != nil {
			l.Warn("tip_index_failed", "tip_id", tip.ID, "error", err)
		}
	}
	if s.Producer != nil {
		if err := s.Producer.PublishEvent(ctx, events.TopicTipEvents, tip.ID.String(), map[string]any{
			"type":      "tip_published",
			"tip_id":    tip.ID,
			"author_id": authorID,
		}); err != nil {
			l.Warn("event_publish_failed", "topic", events.TopicTipEvents, "error", err)
		}
	}

	l.Info("tip_created", "tip_id", tip.ID)
	return tip, nil
}

// GetTip returns one tip for the given viewer. Hidden tips stay readable for
// their author and for moderators and report not-found to everyone else.
// Reads by anyone but the author count as a view; hidden tips are never
// counted. Anonymous viewers pass uuid.Nil and an empty role.
func (s *TipService) GetTip(ctx context.Context, id, viewerID uuid.UUID, viewerRole models.Role) (*models.Tip, error) {
	tip, err := s.Repo.GetTip(ctx, id)
	if err != nil {
		return nil, err
	}

	if tip.Status == models.TipHidden {
		if viewerID != tip.AuthorID && !viewerRole.AtLeast(models.RoleModerator) {
			return nil, gorm.ErrRecordNotFound
		}
		return tip, nil
	}

	if viewerID != tip.AuthorID {
		if err := s.CountView(ctx, id); err == nil {
			tip.Views++
		}
	}
	return tip, nil
}

func (s *TipService) CountView(ctx context.Context, id uuid.UUID) error {
	if err := s.Repo.IncrementTipViews(ctx, id); err != nil {
		logging.FromContext(ctx).Warn("tip_view_count_failed", "tip_id", id, "error", err)
		return err
	}
	return nil
}

func (s *TipService) ListTips(ctx context.Context, offset, limit int) (int64, []models.Tip, error) {
	return s.Repo.ListTips(ctx, offset, limit)
}

// HideTip is the moderation action. The record stays for audit, only the
// status flips.
func (s *TipService) HideTip(ctx context.Context, id uuid.UUID, moderatorID uuid.UUID) error {
	l := logging.FromContext(ctx).With("svc", "tips.hide")

	if err := s.Repo.HideTip(ctx, id); err != nil {
		return err
	}

	if s.Indexer != nil {
		if err := s.Indexer.DeleteTip(ctx, id.String()); err != nil {
			l.Warn("tip_deindex_failed", "tip_id", id, "error", err)
		}
	}
	if s.Producer != nil {
		if err := s.Producer.PublishEvent(ctx, events.TopicTipEvents, id.String(), map[string]any{
			"type":         "tip_hidden",
			"tip_id":       id,
			"moderator_id": moderatorID,
		}); err != nil {
			l.Warn("event_publish_failed", "topic", events.TopicTipEvents, "error", err)
		}
	}

	l.Info("tip_hidden", "tip_id", id, "moderator_id", moderatorID)
	return nil
}

func (s *TipService) AddComment(ctx context.Context, tipID, authorID uuid.UUID, body string) (*models.Comment, error) {
	if body == "" {
		return nil, ErrValidation
	}
	tip, err := s.Repo.GetTip(ctx, tipID)
	if err != nil {
		return nil, err
	}
	if tip.Status == models.TipHidden {
		return nil, gorm.ErrRecordNotFound
	}

	comment := &models.Comment{
		TipID:     tipID,
		AuthorID:  authorID,
		Body:      body,
		CreatedAt: time.Now(),
	}
	if err := s.Repo.CreateComment(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

func (s *TipService) ListComments(ctx context.Context, tipID uuid.UUID) ([]models.Comment, error) {
	return s.Repo.ListComments(ctx, tipID)
}
