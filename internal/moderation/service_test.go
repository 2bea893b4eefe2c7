package moderation

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/disneyvacation/wikihow-link-bot/internal/linkfix"
	"github.com/disneyvacation/wikihow-link-bot/internal/models"
	"github.com/disneyvacation/wikihow-link-bot/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reminderText = "Please reply to this comment with the wikiHow article."

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type testHarness struct {
	svc      *Service
	platform *fakePlatform
	recorder *fakeRecorder
	sleeps   []time.Duration
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	h := &testHarness{
		platform: newFakePlatform(),
		recorder: &fakeRecorder{},
	}
	h.svc = NewService(
		h.platform,
		linkfix.NewNormalizer(nil),
		linkfix.NewPolicy([]string{"example.wikihow", "wikihow.com"}),
		h.recorder,
		Options{
			Bot:          botName,
			Communities:  []string{"disneyvacation"},
			Moderators:   []string{"ModAlice"},
			ReminderText: reminderText,
			PostLimit:    50,
			MinPostAge:   5 * time.Minute,
			MaxPostAge:   12 * time.Minute,
			RemovalDelay: 3 * time.Second,
		},
	)
	h.svc.now = func() time.Time { return testNow }
	h.svc.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return nil
	}
	return h
}

func post(id, author string, age time.Duration) models.Post {
	return models.Post{
		ID:        id,
		Title:     "How to " + id,
		Author:    author,
		Permalink: "/r/disneyvacation/comments/" + id + "/",
		CreatedAt: testNow.Add(-age),
	}
}

func TestModeratePost_MobileLinkCorrected(t *testing.T) {
	h := newHarness(t)
	p := post("p1", "alice", 6*time.Minute)
	h.platform.addPost(p)
	h.platform.addComment("p1", models.Comment{ID: "c1", Author: "alice", Body: "https://m.example.wikihow/Foo"})
	ctx := context.Background()

	outcome, err := h.svc.ModeratePost(ctx, h.platform.posts[0])
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeLinkFixed, outcome)
	assert.Equal(t, []string{
		"comments p1",
		"reply t1_c1 Desktop link: https://www.example.wikihow/Foo",
	}, h.platform.Actions())
	assert.Equal(t, []recordedOutcome{{models.OutcomeLinkFixed, "p1"}}, h.recorder.entries)

	// the correction is now a reply to the source comment
	outcome, err = h.svc.ModeratePost(ctx, h.platform.posts[0])
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeLinkFound, outcome)
	assert.Len(t, h.platform.Actions(), 3)
	assert.Len(t, h.recorder.entries, 1)
}

func TestModeratePost_MissingSourceRemoved(t *testing.T) {
	h := newHarness(t)
	h.platform.addPost(post("p2", "alice", 6*time.Minute))
	ctx := context.Background()

	outcome, err := h.svc.ModeratePost(ctx, h.platform.posts[0])
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeRemoved, outcome)
	assert.Equal(t, []string{
		"comments p2",
		"reply t3_p2 Hey /u/alice\n\n" + reminderText,
		"distinguish t1_r1 sticky=true",
		"remove t3_p2",
	}, h.platform.Actions())
	assert.Equal(t, []time.Duration{3 * time.Second}, h.sleeps)
	assert.Equal(t, []recordedOutcome{{models.OutcomeRemoved, "p2"}}, h.recorder.entries)
	assert.True(t, h.platform.posts[0].Removed)

	outcome, err = h.svc.ModeratePost(ctx, h.platform.posts[0])
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeExempt, outcome)
	assert.Len(t, h.platform.Actions(), 5)
	assert.Len(t, h.recorder.entries, 1)
}

func TestModeratePost_Decisions(t *testing.T) {
	tests := []struct {
		name     string
		post     models.Post
		comments []models.Comment
		expected models.Outcome
		removed  bool
	}{
		{
			name:     "Canonical link accepted without reply",
			post:     post("p", "alice", 6*time.Minute),
			comments: []models.Comment{{ID: "c1", Author: "alice", Body: "https://www.wikihow.com/Nap"}},
			expected: models.OutcomeLinkFound,
		},
		{
			name:     "Author name compared without case",
			post:     post("p", "Alice", 6*time.Minute),
			comments: []models.Comment{{ID: "c1", Author: "alice", Body: "https://www.wikihow.com/Nap"}},
			expected: models.OutcomeLinkFound,
		},
		{
			name:     "Escaped link accepted",
			post:     post("p", "alice", 6*time.Minute),
			comments: []models.Comment{{ID: "c1", Author: "alice", Body: "https%3A//www.wikihow.com/Nap"}},
			expected: models.OutcomeLinkFound,
		},
		{
			name:     "Source from another user ignored",
			post:     post("p", "alice", 6*time.Minute),
			comments: []models.Comment{{ID: "c1", Author: "bob", Body: "https://www.wikihow.com/Nap"}},
			expected: models.OutcomeRemoved,
			removed:  true,
		},
		{
			name:     "Non citation link ignored",
			post:     post("p", "alice", 6*time.Minute),
			comments: []models.Comment{{ID: "c1", Author: "alice", Body: "https://www.google.com/search?q=wikihow"}},
			expected: models.OutcomeRemoved,
			removed:  true,
		},
		{
			name: "Lookalike domain ignored",
			post: post("p", "alice", 6*time.Minute),
			comments: []models.Comment{
				{ID: "c1", Author: "alice", Body: "https://notwikihow.com/Nap"},
			},
			expected: models.OutcomeRemoved,
			removed:  true,
		},
		{
			name: "Deleted comments skipped",
			post: post("p", "alice", 6*time.Minute),
			comments: []models.Comment{
				{ID: "c0", Author: "", Body: "[removed]"},
				{ID: "c1", Author: "alice", Body: "https://www.wikihow.com/Nap"},
			},
			expected: models.OutcomeLinkFound,
		},
		{
			name: "Bot comment ends the check",
			post: post("p", "alice", 6*time.Minute),
			comments: []models.Comment{
				{ID: "c0", Author: "wikihowlinkbot", Body: "Hey /u/alice"},
			},
			expected: models.OutcomeExempt,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.platform.addPost(tt.post)
			for _, c := range tt.comments {
				h.platform.addComment(tt.post.ID, c)
			}

			outcome, err := h.svc.ModeratePost(context.Background(), h.platform.posts[0])
			require.NoError(t, err)
			assert.Equal(t, tt.expected, outcome)
			assert.Equal(t, tt.removed, h.platform.posts[0].Removed)
		})
	}
}

func TestModeratePost_Exemptions(t *testing.T) {
	stickied := post("p", "alice", 6*time.Minute)
	stickied.Stickied = true
	distinguished := post("p", "alice", 6*time.Minute)
	distinguished.Distinguished = true

	tests := []struct {
		name string
		post models.Post
	}{
		{name: "Deleted author", post: post("p", "", 6*time.Minute)},
		{name: "Moderator", post: post("p", "modalice", 6*time.Minute)},
		{name: "Stickied", post: stickied},
		{name: "Distinguished", post: distinguished},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.platform.addPost(tt.post)

			outcome, err := h.svc.ModeratePost(context.Background(), h.platform.posts[0])
			require.NoError(t, err)
			assert.Equal(t, models.OutcomeExempt, outcome)
			assert.Empty(t, h.platform.Actions())
			assert.Empty(t, h.recorder.entries)
		})
	}
}

func TestModeratePost_CancelledDuringDelay(t *testing.T) {
	h := newHarness(t)
	h.platform.addPost(post("p", "alice", 6*time.Minute))
	h.svc.sleep = sleepContext
	h.svc.opts.RemovalDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.svc.ModeratePost(ctx, h.platform.posts[0])
	require.ErrorIs(t, err, context.Canceled)
	assert.NotContains(t, h.platform.Actions(), "remove t3_p")
}

func TestModeratePost_PlatformErrors(t *testing.T) {
	h := newHarness(t)
	h.platform.addPost(post("p", "alice", 6*time.Minute))
	h.platform.failOn["reply"] = &platform.APIError{StatusCode: http.StatusForbidden, Method: http.MethodPost, Path: "/api/comment"}

	outcome, err := h.svc.ModeratePost(context.Background(), h.platform.posts[0])
	require.Error(t, err)
	assert.Equal(t, models.OutcomeUnobserved, outcome)
	assert.True(t, platform.IsAPIError(err))
	assert.False(t, h.platform.posts[0].Removed)
	assert.Empty(t, h.recorder.entries)
}

func TestBotIdentity(t *testing.T) {
	bot := BotIdentity(botName)
	assert.True(t, bot.Is("wikihowlinkbot"))
	assert.True(t, bot.Is(botName))
	assert.False(t, bot.Is(""))
	assert.False(t, bot.Is("alice"))
}
