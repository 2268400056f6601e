package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatedesk/internal/model"
	"github.com/estatedesk/internal/repository"
	"github.com/estatedesk/internal/storage/memory"
)

func newTestService() (*Service, *fakeStore, *memory.Client) {
	store := newFakeStore()
	visitors := memory.New()
	return NewService(store, store, visitors), store, visitors
}

func newIdent(name, email string) *model.VisitorIdentity {
	return &model.VisitorIdentity{
		ID:        "visitor-" + strings.ToLower(name),
		Name:      name,
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
}

func TestCreateConversationIdempotent(t *testing.T) {
	svc, _, visitors := newTestService()
	ctx := context.Background()
	ident := newIdent("Ada", "ada@example.com")

	first, err := svc.CreateConversation(ctx, "tok-ada", ident)
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	assert.Equal(t, first.ID, ident.ConversationID)

	second, err := svc.CreateConversation(ctx, "tok-ada", ident)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	convs, err := svc.Conversations(ctx)
	require.NoError(t, err)
	assert.Len(t, convs, 1)

	saved, err := visitors.GetIdentity(ctx, "tok-ada")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, first.ID, saved.ConversationID)
}

func TestCreateConversationRelinksLostReference(t *testing.T) {
	svc, _, visitors := newTestService()
	ctx := context.Background()
	ident := newIdent("Ada", "ada@example.com")

	conv, err := svc.CreateConversation(ctx, "tok-ada", ident)
	require.NoError(t, err)

	// The client lost its local reference but kept the token.
	ident.ConversationID = ""
	again, err := svc.CreateConversation(ctx, "tok-ada", ident)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, again.ID)
	assert.Equal(t, conv.ID, ident.ConversationID)

	saved, err := visitors.GetIdentity(ctx, "tok-ada")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, saved.ConversationID)
}

func TestCreateConversationValidation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreateConversation(ctx, "tok", &model.VisitorIdentity{ID: "v1", Email: "a@b.c"})
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	_, err = svc.CreateConversation(ctx, "tok", &model.VisitorIdentity{ID: "v1", Name: "Ada"})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestAppendOrderingAndUnread(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	ident := newIdent("Ada", "ada@example.com")
	conv, err := svc.CreateConversation(ctx, "tok-ada", ident)
	require.NoError(t, err)

	_, err = svc.Append(ctx, conv.ID, model.RoleVisitor, "is the garden flat still available?")
	require.NoError(t, err)
	_, err = svc.Append(ctx, conv.ID, model.RoleVisitor, "I could view it this weekend")
	require.NoError(t, err)
	_, err = svc.Append(ctx, conv.ID, model.RoleOwner, "yes, Saturday 10am works")
	require.NoError(t, err)

	msgs, err := svc.Messages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i := range msgs {
		assert.Equal(t, int64(i+1), msgs[i].Seq)
		assert.False(t, msgs[i].Read)
	}
	assert.Equal(t, model.RoleOwner, msgs[2].Sender)

	got, err := svc.Conversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.UnreadForOwner)
	assert.Equal(t, 1, got.UnreadForVisitor)
	assert.Equal(t, "yes, Saturday 10am works", got.LastMessagePreview)
	assert.False(t, got.LastMessageAt.Before(conv.CreatedAt))
}

func TestAppendValidation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	ident := newIdent("Ada", "ada@example.com")
	conv, err := svc.CreateConversation(ctx, "tok-ada", ident)
	require.NoError(t, err)

	_, err = svc.Append(ctx, conv.ID, model.RoleVisitor, "   ")
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	_, err = svc.Append(ctx, conv.ID, model.Role("stranger"), "hi")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestAppendUnknownConversation(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.Append(context.Background(), "missing", model.RoleVisitor, "hello?")
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestAppendTruncatesPreview(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	ident := newIdent("Ada", "ada@example.com")
	conv, err := svc.CreateConversation(ctx, "tok-ada", ident)
	require.NoError(t, err)

	long := strings.Repeat("x", 500)
	_, err = svc.Append(ctx, conv.ID, model.RoleVisitor, long)
	require.NoError(t, err)

	got, err := svc.Conversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(got.LastMessagePreview), previewLimit)
	assert.True(t, strings.HasSuffix(got.LastMessagePreview, "..."))

	// The full text lives in the log untruncated.
	msgs, err := svc.Messages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, long, msgs[0].Text)
}

func TestMarkReadReconciliation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	ident := newIdent("Ada", "ada@example.com")
	conv, err := svc.CreateConversation(ctx, "tok-ada", ident)
	require.NoError(t, err)

	_, err = svc.Append(ctx, conv.ID, model.RoleVisitor, "first")
	require.NoError(t, err)
	_, err = svc.Append(ctx, conv.ID, model.RoleVisitor, "second")
	require.NoError(t, err)
	_, err = svc.Append(ctx, conv.ID, model.RoleOwner, "reply")
	require.NoError(t, err)

	// Owner opens the thread: visitor-authored messages flip to read, the
	// owner's counter resets; the visitor's state is untouched.
	require.NoError(t, svc.MarkRead(ctx, conv.ID, model.RoleOwner))

	msgs, err := svc.Messages(ctx, conv.ID)
	require.NoError(t, err)
	for _, m := range msgs {
		if m.Sender == model.RoleVisitor {
			assert.True(t, m.Read, "visitor message %d should be read", m.Seq)
		} else {
			assert.False(t, m.Read, "owner message %d should stay unread", m.Seq)
		}
	}

	got, err := svc.Conversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.UnreadForOwner)
	assert.Equal(t, 1, got.UnreadForVisitor)

	// Visitor opens the thread next.
	require.NoError(t, svc.MarkRead(ctx, conv.ID, model.RoleVisitor))
	got, err = svc.Conversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.UnreadForVisitor)

	// Re-reading an already reconciled thread is a no-op.
	require.NoError(t, svc.MarkRead(ctx, conv.ID, model.RoleVisitor))
}

func TestMarkReadUnknownConversation(t *testing.T) {
	svc, _, _ := newTestService()
	err := svc.MarkRead(context.Background(), "missing", model.RoleOwner)
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestDeleteAsOwnerPurges(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	ident := newIdent("Ada", "ada@example.com")
	conv, err := svc.CreateConversation(ctx, "tok-ada", ident)
	require.NoError(t, err)
	_, err = svc.Append(ctx, conv.ID, model.RoleVisitor, "hello")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteAsOwner(ctx, conv.ID))

	_, err = svc.Conversation(ctx, conv.ID)
	assert.True(t, errors.Is(err, repository.ErrNotFound))

	// The visitor's identity still references the purged conversation; the
	// stale reference surfaces as not-found, not as an empty log.
	_, err = svc.Messages(ctx, conv.ID)
	assert.True(t, errors.Is(err, repository.ErrNotFound))

	assert.True(t, errors.Is(svc.DeleteAsOwner(ctx, conv.ID), repository.ErrNotFound))
}

func TestDeleteAsVisitorClearsReferenceOnly(t *testing.T) {
	svc, _, visitors := newTestService()
	ctx := context.Background()
	ident := newIdent("Ada", "ada@example.com")
	conv, err := svc.CreateConversation(ctx, "tok-ada", ident)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteAsVisitor(ctx, "tok-ada", ident, conv.ID))
	assert.Empty(t, ident.ConversationID)

	saved, err := visitors.GetIdentity(ctx, "tok-ada")
	require.NoError(t, err)
	assert.Empty(t, saved.ConversationID)

	// The durable record survives for the owner.
	got, err := svc.Conversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)
}

func TestDeleteAsVisitorForbidden(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	ada := newIdent("Ada", "ada@example.com")
	_, err := svc.CreateConversation(ctx, "tok-ada", ada)
	require.NoError(t, err)
	bob := newIdent("Bob", "bob@example.com")
	bobConv, err := svc.CreateConversation(ctx, "tok-bob", bob)
	require.NoError(t, err)

	err = svc.DeleteAsVisitor(ctx, "tok-ada", ada, bobConv.ID)
	assert.True(t, errors.Is(err, ErrForbidden))

	err = svc.DeleteAsVisitor(ctx, "tok-ada", nil, bobConv.ID)
	assert.True(t, errors.Is(err, ErrForbidden))
}

func TestAuthorizeView(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	ada := newIdent("Ada", "ada@example.com")
	adaConv, err := svc.CreateConversation(ctx, "tok-ada", ada)
	require.NoError(t, err)
	bob := newIdent("Bob", "bob@example.com")
	bobConv, err := svc.CreateConversation(ctx, "tok-bob", bob)
	require.NoError(t, err)

	assert.NoError(t, svc.AuthorizeView(model.RoleOwner, nil, adaConv.ID))
	assert.NoError(t, svc.AuthorizeView(model.RoleVisitor, ada, adaConv.ID))
	assert.True(t, errors.Is(svc.AuthorizeView(model.RoleVisitor, ada, bobConv.ID), ErrForbidden))
	assert.True(t, errors.Is(svc.AuthorizeView(model.RoleVisitor, nil, adaConv.ID), ErrForbidden))
}

func TestSearchConversations(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	ada := newIdent("Ada", "ada@example.com")
	adaConv, err := svc.CreateConversation(ctx, "tok-ada", ada)
	require.NoError(t, err)
	bob := newIdent("Bob", "bob@example.com")
	_, err = svc.CreateConversation(ctx, "tok-bob", bob)
	require.NoError(t, err)

	found, err := svc.SearchConversations(ctx, "ada")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, adaConv.ID, found[0].ID)

	// Blank query falls back to the full list.
	all, err := svc.SearchConversations(ctx, "   ")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestListOrderedByActivity(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	ada := newIdent("Ada", "ada@example.com")
	adaConv, err := svc.CreateConversation(ctx, "tok-ada", ada)
	require.NoError(t, err)
	bob := newIdent("Bob", "bob@example.com")
	bobConv, err := svc.CreateConversation(ctx, "tok-bob", bob)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	_, err = svc.Append(ctx, adaConv.ID, model.RoleVisitor, "bump")
	require.NoError(t, err)

	convs, err := svc.Conversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, adaConv.ID, convs[0].ID)
	assert.Equal(t, bobConv.ID, convs[1].ID)
}

func TestNotifierEvents(t *testing.T) {
	svc, _, _ := newTestService()
	notifier := &recordingNotifier{}
	svc.SetNotifier(notifier)
	ctx := context.Background()

	ident := newIdent("Ada", "ada@example.com")
	conv, err := svc.CreateConversation(ctx, "tok-ada", ident)
	require.NoError(t, err)
	_, err = svc.Append(ctx, conv.ID, model.RoleVisitor, "hello")
	require.NoError(t, err)
	require.NoError(t, svc.MarkRead(ctx, conv.ID, model.RoleOwner))
	require.NoError(t, svc.DeleteAsOwner(ctx, conv.ID))

	assert.Equal(t, 3, notifier.changedCount(conv.ID))
	assert.Equal(t, []string{conv.ID}, notifier.deleted)
}

func TestVisitorMessagePushesOwner(t *testing.T) {
	svc, _, _ := newTestService()
	pushed := newRecordingPush()
	svc.SetPushSender(pushed)
	ctx := context.Background()

	ident := newIdent("Ada", "ada@example.com")
	conv, err := svc.CreateConversation(ctx, "tok-ada", ident)
	require.NoError(t, err)

	_, err = svc.Append(ctx, conv.ID, model.RoleVisitor, "ping")
	require.NoError(t, err)
	select {
	case body := <-pushed.notified:
		assert.Equal(t, "ping", body)
	case <-time.After(time.Second):
		t.Fatal("expected a push notification for a visitor message")
	}

	// Owner replies never push the owner.
	_, err = svc.Append(ctx, conv.ID, model.RoleOwner, "pong")
	require.NoError(t, err)
	select {
	case <-pushed.notified:
		t.Fatal("owner message must not trigger push")
	case <-time.After(50 * time.Millisecond):
	}
}
