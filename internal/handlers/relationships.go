package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/fitfriends/backend/internal/auth"
	"github.com/fitfriends/backend/internal/logging"
	"github.com/fitfriends/backend/internal/models"
	"github.com/fitfriends/backend/internal/social"
)

// RelationshipHandler exposes follow and friendship state between the caller
// and another user.
type RelationshipHandler struct {
	Relationships Relationships
	Limiter       RateLimiter
	// Identity resolves the caller. Nil means the identity set by the
	// authentication middleware.
	Identity auth.IdentityProvider
}

type followResponse struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

type friendshipResponse struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

func (h RelationshipHandler) relationship(targetID string) *social.Relationship {
	identity := h.Identity
	if identity == nil {
		identity = auth.ContextIdentity{}
	}
	return social.NewRelationship(h.Relationships, identity, targetID)
}

// Follow handles GET, POST and DELETE /api/v1/users/{id}/follow.
func (h RelationshipHandler) Follow(w http.ResponseWriter, r *http.Request) {
	var mutate func(*social.Relationship, context.Context) error
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		mutate = (*social.Relationship).FollowTarget
	case http.MethodDelete:
		mutate = (*social.Relationship).UnfollowTarget
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	rel, ok := h.apply(w, r, "handlers.Follow", "follow", mutate)
	if !ok {
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, followResponse{UserID: rel.TargetID(), Status: string(rel.Follow())})
}

// Friendship handles GET and POST /api/v1/users/{id}/friendship. POST sends
// a friend request.
func (h RelationshipHandler) Friendship(w http.ResponseWriter, r *http.Request) {
	var mutate func(*social.Relationship, context.Context) error
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		mutate = (*social.Relationship).SendFriendRequest
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	h.friendship(w, r, "handlers.Friendship", mutate)
}

// AcceptFriendship handles POST /api/v1/users/{id}/friendship/accept.
func (h RelationshipHandler) AcceptFriendship(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	h.friendship(w, r, "handlers.AcceptFriendship", (*social.Relationship).AcceptFriendRequest)
}

func (h RelationshipHandler) friendship(w http.ResponseWriter, r *http.Request, spanName string, mutate func(*social.Relationship, context.Context) error) {
	rel, ok := h.apply(w, r, spanName, "friendship", mutate)
	if !ok {
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, friendshipResponse{UserID: rel.TargetID(), Status: string(rel.Friendship())})
}

// apply runs mutate, when set, on the caller's relationship with the path
// target and then reloads both statuses. It writes the error response itself.
func (h RelationshipHandler) apply(w http.ResponseWriter, r *http.Request, spanName, scope string, mutate func(*social.Relationship, context.Context) error) (*social.Relationship, bool) {
	ctx, span := logging.StartSpan(r.Context(), spanName)
	defer span.End()
	r = r.WithContext(ctx)

	targetID, ok := pathID(w, r, "id")
	if !ok {
		return nil, false
	}
	if mutate != nil && limited(w, r, h.Limiter, scope) {
		return nil, false
	}

	rel := h.relationship(targetID)
	if mutate != nil {
		if err := mutate(rel, ctx); err != nil {
			span.Fail(err)
			respondError(ctx, w, err)
			return nil, false
		}
	}
	if err := rel.Load(ctx); err != nil {
		span.Fail(err)
		respondError(ctx, w, err)
		return nil, false
	}
	return rel, true
}

// FriendHandler lists the caller's friendships.
type FriendHandler struct {
	Relationships Relationships
}

type friendEntry struct {
	UserID      string     `json:"userId"`
	Status      string     `json:"status"`
	Incoming    bool       `json:"incoming"`
	CreatedAt   time.Time  `json:"createdAt"`
	RespondedAt *time.Time `json:"respondedAt,omitempty"`
}

// List handles GET /api/v1/friends.
func (h FriendHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	friendships, err := h.Relationships.ListFriendships(r.Context(), userID)
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}

	entries := make([]friendEntry, 0, len(friendships))
	for _, f := range friendships {
		entries = append(entries, toFriendEntry(userID, f))
	}
	respondJSON(r.Context(), w, http.StatusOK, map[string]any{"friends": entries})
}

func toFriendEntry(userID string, f models.Friendship) friendEntry {
	entry := friendEntry{
		UserID:      f.AddresseeID,
		Status:      f.Status,
		CreatedAt:   f.CreatedAt,
		RespondedAt: f.RespondedAt,
	}
	if f.AddresseeID == userID {
		entry.UserID = f.RequesterID
		entry.Incoming = true
	}
	return entry
}
