package chat

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/estatedesk/internal/model"
	"github.com/estatedesk/internal/repository"
)

// fakeStore implements ConversationStore and MessageStore in memory with the
// same aggregate semantics the pgx repositories have: appending a message
// bumps the sequence, the preview and the opposite role's unread counter in
// one step.
type fakeStore struct {
	mu    sync.Mutex
	convs map[string]*model.Conversation
	msgs  map[string][]model.Message
	seq   map[string]int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		convs: make(map[string]*model.Conversation),
		msgs:  make(map[string][]model.Message),
		seq:   make(map[string]int64),
	}
}

func (f *fakeStore) Create(ctx context.Context, c *model.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.convs[c.ID] = &cp
	return nil
}

func (f *fakeStore) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.convs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) GetByVisitor(ctx context.Context, visitorID string) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.convs {
		if c.VisitorID == visitorID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) List(ctx context.Context) ([]model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Conversation, 0, len(f.convs))
	for _, c := range f.convs {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	return out, nil
}

func (f *fakeStore) Search(ctx context.Context, q string) ([]model.Conversation, error) {
	all, _ := f.List(ctx)
	q = strings.ToLower(q)
	out := make([]model.Conversation, 0, len(all))
	for _, c := range all {
		if strings.Contains(strings.ToLower(c.VisitorName), q) ||
			strings.Contains(strings.ToLower(c.VisitorEmail), q) ||
			strings.Contains(strings.ToLower(c.LastMessagePreview), q) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.convs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.convs, id)
	delete(f.msgs, id)
	delete(f.seq, id)
	return nil
}

func (f *fakeStore) ResetUnread(ctx context.Context, id string, role model.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.convs[id]
	if !ok {
		return repository.ErrNotFound
	}
	if role == model.RoleOwner {
		c.UnreadForOwner = 0
	} else {
		c.UnreadForVisitor = 0
	}
	return nil
}

func (f *fakeStore) Append(ctx context.Context, m *model.Message, preview string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.convs[m.ConversationID]
	if !ok {
		return repository.ErrNotFound
	}
	f.seq[m.ConversationID]++
	m.Seq = f.seq[m.ConversationID]
	f.msgs[m.ConversationID] = append(f.msgs[m.ConversationID], *m)
	c.LastMessagePreview = preview
	c.LastMessageAt = m.CreatedAt
	if m.Sender == model.RoleVisitor {
		c.UnreadForOwner++
	} else {
		c.UnreadForVisitor++
	}
	return nil
}

func (f *fakeStore) ListByConversation(ctx context.Context, conversationID string) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.msgs[conversationID]
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

func (f *fakeStore) MarkRead(ctx context.Context, conversationID string, author model.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.msgs[conversationID]
	for i := range msgs {
		if msgs[i].Sender == author {
			msgs[i].Read = true
		}
	}
	return nil
}

// recordingNotifier captures notifier events for assertions.
type recordingNotifier struct {
	mu      sync.Mutex
	changed []string
	deleted []string
}

func (n *recordingNotifier) ConversationChanged(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changed = append(n.changed, id)
}

func (n *recordingNotifier) ConversationDeleted(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deleted = append(n.deleted, id)
}

func (n *recordingNotifier) changedCount(id string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, c := range n.changed {
		if c == id {
			count++
		}
	}
	return count
}

// recordingPush captures push notifications; Notify runs on a goroutine in
// the service, so tests wait on the channel.
type recordingPush struct {
	notified chan string
}

func newRecordingPush() *recordingPush {
	return &recordingPush{notified: make(chan string, 8)}
}

func (p *recordingPush) Notify(ctx context.Context, title, body string, data map[string]string) {
	p.notified <- body
}
