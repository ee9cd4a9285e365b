// Package assistant runs one conversation turn through the recipe pipeline
// and exposes the entry points used by the HTTP and Telegram surfaces.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xaenox/recipebot/internal/classifier"
	"github.com/xaenox/recipebot/internal/composer"
	"github.com/xaenox/recipebot/internal/conversation"
	"github.com/xaenox/recipebot/internal/metrics"
	"github.com/xaenox/recipebot/internal/models"
	"github.com/xaenox/recipebot/pkg/config"
	"go.uber.org/zap"
)

// RejectionMessage is the assistant turn stored for out-of-domain utterances.
const RejectionMessage = "I can only help with recipes and cooking. Ask me what to cook, what to make with the ingredients you have, or for dishes that fit your diet."

const persistTimeout = 10 * time.Second

var (
	ErrUnauthenticated = errors.New("unauthenticated: missing owner identity")
	ErrEmptyUtterance  = errors.New("empty utterance")
)

type CriteriaExtractor interface {
	Extract(ctx context.Context, utterance string) models.Criteria
}

type Ranker interface {
	Rank(ctx context.Context, criteria models.Criteria) ([]models.Item, error)
}

type Composer interface {
	Compose(ctx context.Context, utterance string, ranked []models.Item, history []models.Turn) string
	HistoryWindow() int
}

// Stages are the pipeline steps in execution order.
type Stages struct {
	Classifier classifier.Classifier
	Extractor  CriteriaExtractor
	Ranker     Ranker
	Composer   Composer
}

type TurnRequest struct {
	OwnerID   string
	Utterance string
	// ConversationID continues an existing conversation when set.
	ConversationID string
}

type TurnResult struct {
	ConversationID  string
	NewConversation bool
	Response        string
	Items           []models.Item
}

type Service struct {
	stages      Stages
	manager     *conversation.Manager
	turnTimeout time.Duration
	logger      *zap.Logger
}

func New(stages Stages, manager *conversation.Manager, cfg config.AssistantConfig, logger *zap.Logger) *Service {
	return &Service{
		stages:      stages,
		manager:     manager,
		turnTimeout: cfg.TurnTimeout,
		logger:      logger.Named("assistant"),
	}
}

// HandleTurn answers one utterance and persists the user and assistant turns
// together. Stage failures degrade the answer; only identity, ownership and
// storage failures are returned as errors.
func (s *Service) HandleTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	start := time.Now()
	outcome := "failed"
	defer func() {
		metrics.TurnsTotal.WithLabelValues(outcome).Inc()
		metrics.TurnDuration.Observe(time.Since(start).Seconds())
	}()

	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, ErrUnauthenticated
	}
	utterance := strings.TrimSpace(req.Utterance)
	if utterance == "" {
		return nil, ErrEmptyUtterance
	}

	if s.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.turnTimeout)
		defer cancel()
	}

	var history []models.Turn
	if req.ConversationID != "" {
		var err error
		history, err = s.manager.Recent(ctx, req.ConversationID, req.OwnerID, s.stages.Composer.HistoryWindow())
		if err != nil {
			return nil, err
		}
	}

	var (
		response string
		ranked   []models.Item
	)
	if !s.stages.Classifier.Classify(ctx, utterance) {
		outcome = "rejected"
		response = RejectionMessage
		s.logger.Info("Rejected out-of-domain utterance", zap.String("owner_id", req.OwnerID))
	} else {
		criteria := s.stages.Extractor.Extract(ctx, utterance)

		var err error
		ranked, err = s.stages.Ranker.Rank(ctx, criteria)
		if err != nil {
			metrics.StageFailures.WithLabelValues("rank").Inc()
			s.logger.Error("Failed to rank recipes, answering without results", zap.Error(err))
			ranked = nil
		}

		response = s.stages.Composer.Compose(ctx, utterance, ranked, history)
		outcome = "answered"
		if response == composer.Apology {
			outcome = "degraded"
			ranked = nil
		}
	}
	metrics.RankedItems.Observe(float64(len(ranked)))

	// The turn deadline may already have fired during composition; the
	// pair is still written so the conversation never ends on a user turn.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	id, err := s.manager.ContinueOrStart(persistCtx, conversation.Exchange{
		ConversationID:    req.ConversationID,
		OwnerID:           req.OwnerID,
		UserUtterance:     utterance,
		AssistantResponse: response,
		ItemIDs:           composer.GroundedItemIDs(ranked),
	})
	if err != nil {
		outcome = "failed"
		return nil, fmt.Errorf("persist turn: %w", err)
	}

	s.logger.Debug("Handled turn",
		zap.String("conversation_id", id),
		zap.String("outcome", outcome),
		zap.Int("items", len(ranked)),
		zap.Duration("elapsed", time.Since(start)))

	return &TurnResult{
		ConversationID:  id,
		NewConversation: req.ConversationID == "",
		Response:        response,
		Items:           ranked,
	}, nil
}

// GetHistory returns the owner's conversation oldest-first with referenced
// recipes resolved against the current catalog.
func (s *Service) GetHistory(ctx context.Context, ownerID, conversationID string) ([]models.Turn, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrUnauthenticated
	}
	return s.manager.GetHistory(ctx, conversationID, ownerID)
}

// DeleteConversation reports whether the conversation was removed.
func (s *Service) DeleteConversation(ctx context.Context, ownerID, conversationID string) (bool, error) {
	if strings.TrimSpace(ownerID) == "" {
		return false, ErrUnauthenticated
	}
	if err := s.manager.DeleteConversation(ctx, conversationID, ownerID); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) ListConversations(ctx context.Context, ownerID string) ([]models.Conversation, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrUnauthenticated
	}
	return s.manager.ListConversations(ctx, ownerID)
}
