package moderation

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/disneyvacation/wikihow-link-bot/internal/models"
	"github.com/disneyvacation/wikihow-link-bot/internal/platform"
)

const botName = "WikiHowLinkBot"

// fakePlatform is an in-memory forum. Writes mutate its state so a second
// pass observes the effects of the first.
type fakePlatform struct {
	mu sync.Mutex

	posts    []models.Post
	comments map[string][]models.Comment
	inbox    []models.InboxMessage
	next     int

	actions []string
	failOn  map[string]error
}

var _ platform.Platform = (*fakePlatform)(nil)

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		comments: map[string][]models.Comment{},
		failOn:   map[string]error{},
	}
}

func (f *fakePlatform) addPost(post models.Post) {
	if post.Fullname == "" {
		post.Fullname = "t3_" + post.ID
	}
	if post.Subreddit == "" {
		post.Subreddit = "disneyvacation"
	}
	f.posts = append(f.posts, post)
}

func (f *fakePlatform) addComment(postID string, comment models.Comment) {
	if comment.Fullname == "" {
		comment.Fullname = "t1_" + comment.ID
	}
	comment.ParentID = "t3_" + postID
	f.comments[postID] = append(f.comments[postID], comment)
}

func (f *fakePlatform) record(action string) error {
	f.actions = append(f.actions, action)
	for prefix, err := range f.failOn {
		if strings.HasPrefix(action, prefix) {
			return err
		}
	}
	return nil
}

func (f *fakePlatform) Actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.actions...)
}

func (f *fakePlatform) post(fullname string) *models.Post {
	for i := range f.posts {
		if f.posts[i].Fullname == fullname || f.posts[i].ID == fullname {
			return &f.posts[i]
		}
	}
	return nil
}

func (f *fakePlatform) NewPosts(ctx context.Context, community string, limit int) ([]models.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("list " + community); err != nil {
		return nil, err
	}

	var posts []models.Post
	for _, p := range f.posts {
		if p.Subreddit == community {
			posts = append(posts, p)
		}
	}
	if len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

func (f *fakePlatform) Post(ctx context.Context, id string) (models.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p := f.post(id); p != nil {
		return *p, nil
	}
	return models.Post{}, &platform.APIError{StatusCode: http.StatusNotFound, Method: http.MethodGet, Path: "/api/info"}
}

func (f *fakePlatform) TopLevelComments(ctx context.Context, post models.Post) ([]models.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("comments " + post.ID); err != nil {
		return nil, err
	}
	return append([]models.Comment(nil), f.comments[post.ID]...), nil
}

func (f *fakePlatform) UnreadMessages(ctx context.Context) ([]models.InboxMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var unread []models.InboxMessage
	for _, m := range f.inbox {
		if m.Unread {
			unread = append(unread, m)
		}
	}
	return unread, nil
}

func (f *fakePlatform) Reply(ctx context.Context, parentFullname, text string) (models.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("reply " + parentFullname + " " + text); err != nil {
		return models.Comment{}, err
	}

	f.next++
	reply := models.Comment{
		ID:       fmt.Sprintf("r%d", f.next),
		Fullname: fmt.Sprintf("t1_r%d", f.next),
		Author:   botName,
		Body:     text,
		ParentID: parentFullname,
	}

	if strings.HasPrefix(parentFullname, "t3_") {
		id := strings.TrimPrefix(parentFullname, "t3_")
		f.comments[id] = append(f.comments[id], reply)
		return reply, nil
	}
	for id, comments := range f.comments {
		for i := range comments {
			if comments[i].Fullname == parentFullname {
				f.comments[id][i].Replies = append(f.comments[id][i].Replies, reply)
			}
		}
	}
	return reply, nil
}

func (f *fakePlatform) Distinguish(ctx context.Context, fullname string, sticky bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record(fmt.Sprintf("distinguish %s sticky=%t", fullname, sticky))
}

func (f *fakePlatform) Remove(ctx context.Context, fullname string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("remove " + fullname); err != nil {
		return err
	}
	if p := f.post(fullname); p != nil {
		p.Removed = true
		p.BannedBy = botName
	}
	return nil
}

func (f *fakePlatform) Approve(ctx context.Context, fullname string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("approve " + fullname); err != nil {
		return err
	}
	if p := f.post(fullname); p != nil {
		p.Removed = false
		p.BannedBy = ""
	}
	return nil
}

func (f *fakePlatform) MarkRead(ctx context.Context, fullnames []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("read " + strings.Join(fullnames, ",")); err != nil {
		return err
	}
	for _, name := range fullnames {
		for i := range f.inbox {
			if f.inbox[i].Fullname == name {
				f.inbox[i].Unread = false
			}
		}
	}
	return nil
}

func (f *fakePlatform) SendMessage(ctx context.Context, to, subject, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record("message " + to + " " + subject)
}

type recordedOutcome struct {
	Outcome models.Outcome
	PostID  string
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []recordedOutcome
}

func (r *fakeRecorder) Record(outcome models.Outcome, post models.Post) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, recordedOutcome{Outcome: outcome, PostID: post.ID})
}
