package workflow

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guidepath/guidepath/pkg/apperr"
	"github.com/guidepath/guidepath/pkg/logging"
	"github.com/guidepath/guidepath/pkg/model"
	"github.com/guidepath/guidepath/pkg/store"
)

type RequestReviewInput struct {
	ExecutionID uuid.UUID `json:"execution_id" validate:"required"`
	StepIndex   int       `json:"step_index" validate:"gte=0"`
	RequestedBy string    `json:"requested_by" validate:"required"`
	ReviewerID  string    `json:"reviewer_id" validate:"required"`
	Notes       string    `json:"notes"`
}

// ReviewService pauses a step behind a reviewer's decision. While a review is pending the step
// cannot be completed.
type ReviewService struct {
	base
}

func NewReviewService(st store.Store, logger *zap.Logger, opts ...Option) *ReviewService {
	return &ReviewService{base: newBase(st, logger, opts)}
}

func (s *ReviewService) RequestReview(ctx context.Context, in RequestReviewInput) (*model.Review, error) {
	const op = "RequestReview"
	if err := validate.Struct(in); err != nil {
		return nil, validationError(op, err)
	}
	if in.RequestedBy == in.ReviewerID {
		return nil, apperr.Validation(op, "reviewer must differ from requester")
	}
	ctx = logging.WithActor(logging.WithStep(logging.WithExecution(ctx, in.ExecutionID.String()), in.StepIndex), in.RequestedBy)

	var review *model.Review
	var events []pendingEvent
	err := s.store.Transaction(ctx, func(tx store.Repositories) error {
		exec, err := tx.Executions().GetByID(ctx, in.ExecutionID)
		if err != nil {
			return s.storeError(ctx, op, "execution", err)
		}
		if err := checkStepIndex(op, exec, in.StepIndex); err != nil {
			return err
		}
		if err := ensureActive(op, exec); err != nil {
			return err
		}

		state, err := tx.StepStates().Get(ctx, exec.ID, in.StepIndex)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return s.storeError(ctx, op, "step_state", err)
		}
		if state != nil && state.Status.IsTerminal() {
			return apperr.Newf(op, apperr.KindInvalidTransition, "step is %s", state.Status)
		}

		_, err = tx.Reviews().FindPending(ctx, exec.ID, in.StepIndex)
		switch {
		case err == nil:
			return apperr.New(op, apperr.KindConflict, "step already has a pending review")
		case !errors.Is(err, store.ErrNotFound):
			return s.storeError(ctx, op, "review", err)
		}

		review = &model.Review{
			ID:           uuid.New(),
			ExecutionID:  exec.ID,
			StepIndex:    in.StepIndex,
			RequestedBy:  in.RequestedBy,
			ReviewerID:   in.ReviewerID,
			Status:       model.ReviewPending,
			RequestNotes: in.Notes,
		}
		if err := tx.Reviews().Create(ctx, review); err != nil {
			return s.storeError(ctx, op, "review", err)
		}

		action := &model.ExecutionAction{
			ExecutionID: exec.ID,
			PerformedBy: in.RequestedBy,
			ActionType:  model.ExecutionActionReviewRequested,
			FromStatus:  exec.Status,
			ToStatus:    exec.Status,
			ActionData: model.JSONB{
				"review_id":   review.ID.String(),
				"step_index":  in.StepIndex,
				"reviewer_id": in.ReviewerID,
			},
			Notes: in.Notes,
		}
		if err := tx.ExecutionActions().Append(ctx, action); err != nil {
			return s.storeError(ctx, op, "execution_action", err)
		}

		ev := pendingEvent{
			executionID: exec.ID,
			eventType:   EventReviewRequested,
			payload: model.JSONB{
				"review_id":   review.ID.String(),
				"step_index":  in.StepIndex,
				"reviewer_id": in.ReviewerID,
			},
		}
		if err := s.enqueue(ctx, tx, ev); err != nil {
			return s.storeError(ctx, op, "outbox", err)
		}
		events = append(events, ev)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events...)
	logging.From(ctx, s.logger).Info("review requested",
		zap.String("review_id", review.ID.String()),
		zap.String("reviewer_id", review.ReviewerID),
	)
	return review, nil
}

func (s *ReviewService) Approve(ctx context.Context, reviewID uuid.UUID, reviewerID, notes string) (*model.Review, error) {
	return s.decide(ctx, "ApproveReview", reviewID, reviewerID, model.ReviewApproved, notes)
}

// Reject requires a reason.
func (s *ReviewService) Reject(ctx context.Context, reviewID uuid.UUID, reviewerID, reason string) (*model.Review, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperr.Validation("RejectReview", "rejection reason is required")
	}
	return s.decide(ctx, "RejectReview", reviewID, reviewerID, model.ReviewRejected, strings.TrimSpace(reason))
}

func (s *ReviewService) decide(ctx context.Context, op string, reviewID uuid.UUID, reviewerID string, status model.ReviewStatus, notes string) (*model.Review, error) {
	if reviewID == uuid.Nil || strings.TrimSpace(reviewerID) == "" {
		return nil, apperr.Validation(op, "review id and reviewer id are required")
	}
	ctx = logging.WithActor(ctx, reviewerID)

	var review *model.Review
	var events []pendingEvent
	err := s.store.Transaction(ctx, func(tx store.Repositories) error {
		var err error
		review, err = tx.Reviews().GetByID(ctx, reviewID)
		if err != nil {
			return s.storeError(ctx, op, "review", err)
		}
		if review.ReviewerID != reviewerID {
			return apperr.New(op, apperr.KindValidation, "only the assigned reviewer may decide").
				WithDetails(map[string]any{"reviewer_id": review.ReviewerID})
		}
		if review.Status != model.ReviewPending {
			return apperr.InvalidTransition(op, string(review.Status), string(status))
		}

		exec, err := tx.Executions().GetByID(ctx, review.ExecutionID)
		if err != nil {
			return s.storeError(ctx, op, "execution", err)
		}

		now := s.now()
		review.Status = status
		review.DecisionNotes = notes
		review.DecidedAt = &now
		if err := tx.Reviews().Decide(ctx, review); err != nil {
			return s.storeError(ctx, op, "review", err)
		}

		actionType := model.ExecutionActionReviewApproved
		if status == model.ReviewRejected {
			actionType = model.ExecutionActionReviewRejected
		}
		action := &model.ExecutionAction{
			ExecutionID: exec.ID,
			PerformedBy: reviewerID,
			ActionType:  actionType,
			FromStatus:  exec.Status,
			ToStatus:    exec.Status,
			ActionData: model.JSONB{
				"review_id":  review.ID.String(),
				"step_index": review.StepIndex,
			},
			Notes: notes,
		}
		if err := tx.ExecutionActions().Append(ctx, action); err != nil {
			return s.storeError(ctx, op, "execution_action", err)
		}

		ev := pendingEvent{
			executionID: exec.ID,
			eventType:   EventReviewDecided,
			payload: model.JSONB{
				"review_id":  review.ID.String(),
				"step_index": review.StepIndex,
				"status":     string(status),
			},
		}
		if err := s.enqueue(ctx, tx, ev); err != nil {
			return s.storeError(ctx, op, "outbox", err)
		}
		events = append(events, ev)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(logging.WithExecution(ctx, review.ExecutionID.String()), events...)
	logging.From(ctx, s.logger).Info("review decided",
		zap.String("review_id", review.ID.String()),
		zap.String("status", string(status)),
	)
	return review, nil
}
