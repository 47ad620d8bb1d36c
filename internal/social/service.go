package social

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fitfriends/backend/internal/logging"
	"github.com/fitfriends/backend/internal/models"
	"github.com/fitfriends/backend/internal/repositories"
)

// ProfileLookup resolves display names for notification text.
type ProfileLookup interface {
	FindProfiles(ctx context.Context, ids []string) (map[string]models.Profile, error)
}

// Notifier accepts best-effort notifications.
type Notifier interface {
	Enqueue(ctx context.Context, notification models.Notification) error
}

// FailureRecorder counts best-effort steps that failed.
type FailureRecorder interface {
	SideEffectFailed(operation, stage string)
}

// Service implements the follow and friendship state machines.
type Service struct {
	follows     repositories.FollowRepository
	friendships repositories.FriendshipRepository
	profiles    ProfileLookup
	notifier    Notifier
	failures    FailureRecorder
	now         func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithFailureRecorder counts logged-only side effect failures.
func WithFailureRecorder(recorder FailureRecorder) Option {
	return func(s *Service) { s.failures = recorder }
}

// WithClock overrides the time source used for created_at and responded_at.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires the relationship engine. profiles and notifier may be nil,
// in which case notifications are skipped.
func NewService(follows repositories.FollowRepository, friendships repositories.FriendshipRepository, profiles ProfileLookup, notifier Notifier, opts ...Option) *Service {
	s := &Service{
		follows:     follows,
		friendships: friendships,
		profiles:    profiles,
		notifier:    notifier,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func validatePair(observerID, targetID string) error {
	if observerID == "" {
		return ErrNotAuthenticated
	}
	if targetID == "" {
		return ErrInvalidTarget
	}
	return nil
}

// CheckFollow reports whether observerID follows targetID. Users always follow themselves.
func (s *Service) CheckFollow(ctx context.Context, observerID, targetID string) (FollowStatus, error) {
	if err := validatePair(observerID, targetID); err != nil {
		return FollowNone, err
	}
	if observerID == targetID {
		return FollowFollowing, nil
	}

	exists, err := s.follows.Exists(ctx, observerID, targetID)
	if err != nil {
		return FollowNone, fmt.Errorf("check follow: %w", err)
	}
	if exists {
		return FollowFollowing, nil
	}
	return FollowNone, nil
}

// Follow creates the observer→target edge and notifies the target.
// Only the edge write can fail the call.
func (s *Service) Follow(ctx context.Context, observerID, targetID string) error {
	if err := validatePair(observerID, targetID); err != nil {
		return err
	}

	ctx, span := logging.StartSpan(ctx, "social.Follow")
	defer span.End()

	if err := s.follows.Create(ctx, models.Follow{
		FollowerID: observerID,
		FolloweeID: targetID,
		CreatedAt:  s.now(),
	}); err != nil {
		return fmt.Errorf("insert follow: %w", err)
	}

	name := s.displayName(ctx, "follow", observerID)
	s.notify(ctx, "follow", models.Notification{
		UserID:             targetID,
		Type:               models.NotificationFollow,
		Title:              "New Follower",
		Message:            name + " started following you",
		RelatedUserID:      observerID,
		RelatedContentType: "user",
	})
	return nil
}

// Unfollow deletes the observer→target edge. A missing edge is not an error.
func (s *Service) Unfollow(ctx context.Context, observerID, targetID string) error {
	if err := validatePair(observerID, targetID); err != nil {
		return err
	}

	if err := s.follows.Delete(ctx, observerID, targetID); err != nil {
		return fmt.Errorf("delete follow: %w", err)
	}
	return nil
}

// CheckFriendship reports the friendship state between the pair as seen by observerID.
func (s *Service) CheckFriendship(ctx context.Context, observerID, targetID string) (FriendshipStatus, error) {
	if err := validatePair(observerID, targetID); err != nil {
		return FriendshipNone, err
	}
	if observerID == targetID {
		return FriendshipAccepted, nil
	}

	row, err := s.friendships.FindByPair(ctx, observerID, targetID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return FriendshipNone, nil
		}
		return FriendshipNone, fmt.Errorf("check friendship: %w", err)
	}
	return friendshipStatusFor(observerID, row), nil
}

// SendFriendRequest records a pending request from observerID to targetID.
// Any existing row for the pair, in either direction, fails the call.
func (s *Service) SendFriendRequest(ctx context.Context, observerID, targetID string) error {
	if err := validatePair(observerID, targetID); err != nil {
		return err
	}
	if observerID == targetID {
		return ErrSelfRelation
	}

	ctx, span := logging.StartSpan(ctx, "social.SendFriendRequest")
	defer span.End()

	if err := s.friendships.Create(ctx, models.Friendship{
		ID:          uuid.NewString(),
		RequesterID: observerID,
		AddresseeID: targetID,
		Status:      models.FriendshipPending,
		CreatedAt:   s.now(),
	}); err != nil {
		return fmt.Errorf("insert friendship: %w", err)
	}

	name := s.displayName(ctx, "friend_request", observerID)
	s.notify(ctx, "friend_request", models.Notification{
		UserID:             targetID,
		Type:               models.NotificationFriendRequest,
		Title:              "Friend Request",
		Message:            name + " sent you a friend request",
		RelatedUserID:      observerID,
		RelatedContentType: "user",
	})
	return nil
}

// AcceptFriendRequest accepts the request targetID sent to observerID.
// Accepting an already accepted request succeeds.
func (s *Service) AcceptFriendRequest(ctx context.Context, observerID, targetID string) error {
	if err := validatePair(observerID, targetID); err != nil {
		return err
	}

	ctx, span := logging.StartSpan(ctx, "social.AcceptFriendRequest")
	defer span.End()

	if err := s.friendships.Accept(ctx, targetID, observerID, s.now()); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrRequestNotFound
		}
		return fmt.Errorf("accept friendship: %w", err)
	}

	name := s.displayName(ctx, "friend_accept", observerID)
	s.notify(ctx, "friend_accept", models.Notification{
		UserID:             targetID,
		Type:               models.NotificationFriendAccepted,
		Title:              "Friend Request Accepted",
		Message:            name + " accepted your friend request",
		RelatedUserID:      observerID,
		RelatedContentType: "user",
	})
	return nil
}

// ListFriendships returns every friendship row involving userID.
func (s *Service) ListFriendships(ctx context.Context, userID string) ([]models.Friendship, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	rows, err := s.friendships.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list friendships: %w", err)
	}
	return rows, nil
}

func (s *Service) displayName(ctx context.Context, operation, userID string) string {
	if s.profiles == nil {
		return models.Profile{}.Name()
	}

	found, err := s.profiles.FindProfiles(ctx, []string{userID})
	if err != nil {
		logging.FromContext(ctx).Warn("resolve display name", slog.String("operation", operation), slog.String("userId", userID), slog.Any("error", err))
		s.recordFailure(operation, "profile")
		return models.Profile{}.Name()
	}
	return found[userID].Name()
}

func (s *Service) notify(ctx context.Context, operation string, notification models.Notification) {
	if s.notifier == nil {
		return
	}

	if err := s.notifier.Enqueue(ctx, notification); err != nil {
		logging.FromContext(ctx).Warn("enqueue notification",
			slog.String("operation", operation),
			slog.String("type", notification.Type),
			slog.String("userId", notification.UserID),
			slog.Any("error", err),
		)
		s.recordFailure(operation, "notify")
	}
}

func (s *Service) recordFailure(operation, stage string) {
	if s.failures != nil {
		s.failures.SideEffectFailed(operation, stage)
	}
}
