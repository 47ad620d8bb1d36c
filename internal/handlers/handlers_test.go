package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/fitfriends/backend/internal/auth"
	"github.com/fitfriends/backend/internal/feed"
	"github.com/fitfriends/backend/internal/models"
	"github.com/fitfriends/backend/internal/posts"
	"github.com/fitfriends/backend/internal/realtime"
	"github.com/fitfriends/backend/internal/repositories"
	"github.com/fitfriends/backend/internal/social"
)

type testServer struct {
	mux           *http.ServeMux
	broker        *realtime.MemoryBroker
	postRepo      *repositories.MemoryPostRepository
	notifications *repositories.MemoryNotificationRepository
}

func newTestServer(t *testing.T, seed ...models.Post) *testServer {
	t.Helper()

	broker := realtime.NewMemoryBroker(nil, nil)
	t.Cleanup(func() { _ = broker.Close() })

	users := repositories.NewMemoryUserRepository()
	postRepo := repositories.NewMemoryPostRepository(seed...)
	notifications := repositories.NewMemoryNotificationRepository()

	mux := http.NewServeMux()
	RegisterRoutes(mux, Dependencies{
		Users:         users,
		Sessions:      newSessionManager(),
		Relationships: social.NewService(repositories.NewMemoryFollowRepository(), repositories.NewMemoryFriendshipRepository(), users, nil),
		Posts:         posts.NewService(postRepo, broker),
		Notifications: notifications,
		Pager:         feed.NewPager(postRepo, users),
		Changes:       broker,
	})

	return &testServer{mux: mux, broker: broker, postRepo: postRepo, notifications: notifications}
}

func (s *testServer) do(t *testing.T, userID, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if userID != "" {
		req = req.WithContext(auth.WithUserID(req.Context(), userID))
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return body.Status
}

func TestRelationshipFollowLifecycle(t *testing.T) {
	srv := newTestServer(t)
	alice, bob := uuid.NewString(), uuid.NewString()
	path := "/api/v1/users/" + bob + "/follow"

	rec := srv.do(t, alice, http.MethodGet, path, "")
	if rec.Code != http.StatusOK || decodeStatus(t, rec) != string(social.FollowNone) {
		t.Fatalf("expected none before follow, got %d", rec.Code)
	}

	rec = srv.do(t, alice, http.MethodPost, path, "")
	if rec.Code != http.StatusOK || decodeStatus(t, rec) != string(social.FollowFollowing) {
		t.Fatalf("expected following after follow, got %d", rec.Code)
	}

	rec = srv.do(t, alice, http.MethodPost, path, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected conflict on duplicate follow got %d", rec.Code)
	}

	for i := 0; i < 2; i++ {
		rec = srv.do(t, alice, http.MethodDelete, path, "")
		if rec.Code != http.StatusOK || decodeStatus(t, rec) != string(social.FollowNone) {
			t.Fatalf("unfollow #%d: expected none, got %d", i+1, rec.Code)
		}
	}
}

func TestRelationshipSelfFollow(t *testing.T) {
	srv := newTestServer(t)
	alice := uuid.NewString()
	path := "/api/v1/users/" + alice + "/follow"

	rec := srv.do(t, alice, http.MethodGet, path, "")
	if rec.Code != http.StatusOK || decodeStatus(t, rec) != string(social.FollowFollowing) {
		t.Fatalf("expected self view to report following, got %d", rec.Code)
	}

	rec = srv.do(t, alice, http.MethodPost, path, "")
	if rec.Code != http.StatusOK || decodeStatus(t, rec) != string(social.FollowFollowing) {
		t.Fatalf("expected self follow to succeed, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = srv.do(t, alice, http.MethodDelete, path, "")
	if rec.Code != http.StatusOK || decodeStatus(t, rec) != string(social.FollowFollowing) {
		t.Fatalf("expected self view to stay following after unfollow, got %d", rec.Code)
	}
}

func TestRelationshipHandlerUsesInjectedIdentity(t *testing.T) {
	svc := social.NewService(repositories.NewMemoryFollowRepository(), repositories.NewMemoryFriendshipRepository(), nil, nil)
	alice, bob := uuid.NewString(), uuid.NewString()

	mux := http.NewServeMux()
	h := RelationshipHandler{Relationships: svc, Identity: auth.StaticIdentity(alice)}
	mux.HandleFunc("/api/v1/users/{id}/follow", h.Follow)

	// No identity on the request context; the handler resolves the caller itself.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/"+bob+"/follow", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || decodeStatus(t, rec) != string(social.FollowFollowing) {
		t.Fatalf("expected following, got %d", rec.Code)
	}

	status, err := svc.CheckFollow(context.Background(), alice, bob)
	if err != nil || status != social.FollowFollowing {
		t.Fatalf("expected edge from the injected identity, got %s (%v)", status, err)
	}

	signedOut := RelationshipHandler{Relationships: svc, Identity: auth.StaticIdentity("")}
	outMux := http.NewServeMux()
	outMux.HandleFunc("/api/v1/users/{id}/follow", signedOut.Follow)
	rec = httptest.NewRecorder()
	outMux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/users/"+bob+"/follow", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 when the provider reports no user, got %d", rec.Code)
	}
}

func TestRelationshipErrors(t *testing.T) {
	srv := newTestServer(t)
	alice := uuid.NewString()

	cases := []struct {
		name   string
		user   string
		method string
		path   string
		status int
	}{
		{name: "anonymous", method: http.MethodPost, path: "/api/v1/users/" + alice + "/follow", status: http.StatusUnauthorized},
		{name: "malformed target", user: alice, method: http.MethodGet, path: "/api/v1/users/not-a-uuid/follow", status: http.StatusBadRequest},
		{name: "self friend request", user: alice, method: http.MethodPost, path: "/api/v1/users/" + alice + "/friendship", status: http.StatusBadRequest},
		{name: "accept without request", user: alice, method: http.MethodPost, path: "/api/v1/users/" + uuid.NewString() + "/friendship/accept", status: http.StatusNotFound},
		{name: "wrong method", user: alice, method: http.MethodPut, path: "/api/v1/users/" + alice + "/follow", status: http.StatusMethodNotAllowed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := srv.do(t, tc.user, tc.method, tc.path, "")
			if rec.Code != tc.status {
				t.Fatalf("expected %d got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestRelationshipFriendshipFlow(t *testing.T) {
	srv := newTestServer(t)
	alice, bob := uuid.NewString(), uuid.NewString()

	rec := srv.do(t, alice, http.MethodPost, "/api/v1/users/"+bob+"/friendship", "")
	if rec.Code != http.StatusOK || decodeStatus(t, rec) != string(social.FriendshipPendingSent) {
		t.Fatalf("expected pending_sent, got %d", rec.Code)
	}

	rec = srv.do(t, bob, http.MethodGet, "/api/v1/users/"+alice+"/friendship", "")
	if decodeStatus(t, rec) != string(social.FriendshipPendingReceived) {
		t.Fatal("expected pending_received for the addressee")
	}

	rec = srv.do(t, alice, http.MethodPost, "/api/v1/users/"+bob+"/friendship/accept", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("requester must not accept their own request, got %d", rec.Code)
	}

	rec = srv.do(t, bob, http.MethodPost, "/api/v1/users/"+alice+"/friendship/accept", "")
	if rec.Code != http.StatusOK || decodeStatus(t, rec) != string(social.FriendshipAccepted) {
		t.Fatalf("expected accepted, got %d", rec.Code)
	}

	rec = srv.do(t, alice, http.MethodGet, "/api/v1/friends", "")
	var list struct {
		Friends []friendEntry `json:"friends"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Friends) != 1 || list.Friends[0].UserID != bob || list.Friends[0].Incoming {
		t.Fatalf("unexpected friends %+v", list.Friends)
	}
}

func TestFeedPageWithCursor(t *testing.T) {
	author := uuid.NewString()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var seed []models.Post
	for i := 0; i < feed.PageSize+2; i++ {
		seed = append(seed, models.Post{
			ID:          uuid.NewString(),
			UserID:      author,
			ContentType: "text",
			Visibility:  models.VisibilityPublic,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		})
	}
	srv := newTestServer(t, seed...)
	viewer := uuid.NewString()

	rec := srv.do(t, viewer, http.MethodGet, "/api/v1/feed", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var first feedPageResponse
	if err := json.NewDecoder(rec.Body).Decode(&first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(first.Posts) != feed.PageSize || !first.HasMore || first.NextCursor == "" {
		t.Fatalf("unexpected first page: %d posts hasMore=%v", len(first.Posts), first.HasMore)
	}

	rec = srv.do(t, viewer, http.MethodGet, "/api/v1/feed?cursor="+first.NextCursor, "")
	var second feedPageResponse
	if err := json.NewDecoder(rec.Body).Decode(&second); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(second.Posts) != 2 || second.HasMore {
		t.Fatalf("unexpected second page: %d posts hasMore=%v", len(second.Posts), second.HasMore)
	}

	for _, cursor := range []string{
		"not-base64!",
		feed.EncodeCursor(models.Cursor{CreatedAt: base, ID: "not-a-uuid"}),
	} {
		rec = srv.do(t, viewer, http.MethodGet, "/api/v1/feed?cursor="+cursor, "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for cursor %q got %d", cursor, rec.Code)
		}
	}
}

func TestPostCreateAndDelete(t *testing.T) {
	srv := newTestServer(t)
	author := uuid.NewString()

	rec := srv.do(t, author, http.MethodPost, "/api/v1/posts", `{"content_type":"workout","description":" 5k run "}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	var created models.Post
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Description != "5k run" || created.Visibility != models.VisibilityPublic {
		t.Fatalf("unexpected post %+v", created)
	}

	rec = srv.do(t, author, http.MethodPost, "/api/v1/posts", `{"content_type":"poem"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown content type got %d", rec.Code)
	}

	rec = srv.do(t, uuid.NewString(), http.MethodDelete, "/api/v1/posts/"+created.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 deleting someone else's post got %d", rec.Code)
	}

	rec = srv.do(t, author, http.MethodDelete, "/api/v1/posts/"+created.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rec.Code)
	}
}

func TestNotificationList(t *testing.T) {
	srv := newTestServer(t)
	user := uuid.NewString()

	rec := srv.do(t, user, http.MethodGet, "/api/v1/notifications", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"notifications":[]`) {
		t.Fatalf("expected empty list got %d %s", rec.Code, rec.Body.String())
	}

	if err := srv.notifications.Create(context.Background(), models.Notification{ID: "n1", UserID: user, Type: models.NotificationFollow, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("create: %v", err)
	}
	rec = srv.do(t, user, http.MethodGet, "/api/v1/notifications?limit=10", "")
	if !strings.Contains(rec.Body.String(), `"id":"n1"`) {
		t.Fatalf("expected notification in %s", rec.Body.String())
	}

	rec = srv.do(t, user, http.MethodGet, "/api/v1/notifications?limit=-1", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative limit got %d", rec.Code)
	}
}

func TestFeedStream(t *testing.T) {
	author := uuid.NewString()
	seed := models.Post{ID: uuid.NewString(), UserID: author, ContentType: "text", Visibility: models.VisibilityPublic, CreatedAt: time.Now().UTC().Add(-time.Hour)}
	srv := newTestServer(t, seed)
	viewer := uuid.NewString()

	httpSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		srv.mux.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), viewer)))
	}))
	defer httpSrv.Close()

	url := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/api/v1/feed/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	readUpdate := func() feed.Update {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var update feed.Update
		if err := conn.ReadJSON(&update); err != nil {
			t.Fatalf("read update: %v", err)
		}
		return update
	}

	reset := readUpdate()
	if reset.Kind != feed.UpdateReset || len(reset.Posts) != 1 || reset.Posts[0].ID != seed.ID {
		t.Fatalf("unexpected first update %+v", reset)
	}

	rec := srv.do(t, author, http.MethodPost, "/api/v1/posts", `{"content_type":"meal","description":"oats"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create post: %d", rec.Code)
	}

	prepended := readUpdate()
	if prepended.Kind != feed.UpdatePrepended || len(prepended.Posts) != 1 || prepended.Posts[0].Description != "oats" {
		t.Fatalf("unexpected live update %+v", prepended)
	}

	if err := conn.WriteJSON(streamCommand{Action: "refresh"}); err != nil {
		t.Fatalf("write command: %v", err)
	}
	refreshed := readUpdate()
	if refreshed.Kind != feed.UpdateReset || len(refreshed.Posts) != 2 {
		t.Fatalf("unexpected refresh update %+v", refreshed)
	}

	_ = conn.Close()
	waitForSubscribers(t, srv.broker, 0)
}

func waitForSubscribers(t *testing.T, broker *realtime.MemoryBroker, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if broker.Subscribers(feed.Table) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d subscribers got %d", want, broker.Subscribers(feed.Table))
}
