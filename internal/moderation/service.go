package moderation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/disneyvacation/wikihow-link-bot/internal/linkfix"
	"github.com/disneyvacation/wikihow-link-bot/internal/models"
	"github.com/disneyvacation/wikihow-link-bot/internal/platform"
	"github.com/sirupsen/logrus"
)

// Normalizer produces the reply text correcting a user supplied link
type Normalizer interface {
	Normalize(ctx context.Context, text string, isReapproval bool) string
}

// Recorder receives the terminal outcome of every moderated post
type Recorder interface {
	Record(outcome models.Outcome, post models.Post)
}

// BotIdentity is the account the bot acts as. Comments by this account mark
// a post or comment as already handled.
type BotIdentity string

// Is reports whether author is the bot, ignoring case as Reddit does
func (b BotIdentity) Is(author string) bool {
	return author != "" && strings.EqualFold(string(b), author)
}

// Options configures a moderation Service
type Options struct {
	Bot          BotIdentity
	Communities  []string
	Moderators   []string
	ReminderText string
	PostLimit    int
	MinPostAge   time.Duration
	MaxPostAge   time.Duration
	RemovalDelay time.Duration
}

// Service applies the source link rule to posts and inbox replies
type Service struct {
	platform   platform.Platform
	normalizer Normalizer
	policy     *linkfix.Policy
	recorder   Recorder
	opts       Options
	moderators map[string]bool

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewService creates a new moderation service
func NewService(p platform.Platform, normalizer Normalizer, policy *linkfix.Policy, recorder Recorder, opts Options) *Service {
	moderators := make(map[string]bool, len(opts.Moderators))
	for _, m := range opts.Moderators {
		moderators[strings.ToLower(m)] = true
	}

	return &Service{
		platform:   p,
		normalizer: normalizer,
		policy:     policy,
		recorder:   recorder,
		opts:       opts,
		moderators: moderators,
		now:        time.Now,
		sleep:      sleepContext,
	}
}

// Bot returns the identity the service acts as
func (s *Service) Bot() BotIdentity {
	return s.opts.Bot
}

// ModeratePost decides and applies the outcome for one post. Every write is
// preceded by a check of the post's current comments, so running it again
// on its own output is a no-op.
func (s *Service) ModeratePost(ctx context.Context, post models.Post) (models.Outcome, error) {
	log := logrus.WithFields(logrus.Fields{"post": post.ID, "author": post.Author})

	if s.isExempt(post) {
		log.Debug("Post exempt from the source rule")
		return models.OutcomeExempt, nil
	}

	comments, err := s.platform.TopLevelComments(ctx, post)
	if err != nil {
		return models.OutcomeUnobserved, fmt.Errorf("failed to fetch comments of %s: %w", post.ID, err)
	}

	for _, comment := range comments {
		if comment.Author == "" {
			continue
		}
		if s.opts.Bot.Is(comment.Author) {
			log.Debug("Bot already commented on post, skipping")
			return models.OutcomeExempt, nil
		}
		if !strings.EqualFold(comment.Author, post.Author) {
			continue
		}

		body := linkfix.DecodeText(comment.Body)
		if !s.policy.ContainsCitation(body) {
			continue
		}
		return s.acceptSource(ctx, post, comment, body)
	}

	return s.removeWithReminder(ctx, post)
}

func (s *Service) isExempt(post models.Post) bool {
	if post.Author == "" {
		return true
	}
	if s.moderators[strings.ToLower(post.Author)] {
		return true
	}
	return post.Stickied || post.Distinguished
}

// acceptSource handles the compliance comment, correcting its link once
func (s *Service) acceptSource(ctx context.Context, post models.Post, comment models.Comment, body string) (models.Outcome, error) {
	log := logrus.WithFields(logrus.Fields{"post": post.ID, "comment": comment.ID})

	for _, reply := range comment.Replies {
		if s.opts.Bot.Is(reply.Author) {
			log.Debug("Source comment already corrected")
			return models.OutcomeLinkFound, nil
		}
	}

	outcome := models.OutcomeLinkFound
	if correction := s.normalizer.Normalize(ctx, body, false); correction != "" {
		if _, err := s.platform.Reply(ctx, comment.Fullname, correction); err != nil {
			return models.OutcomeUnobserved, fmt.Errorf("failed to reply to source comment %s: %w", comment.ID, err)
		}
		log.Infof("Replied to source comment: %s", correction)
		outcome = models.OutcomeLinkFixed
	}

	// Nothing marks a passing post as handled, so every sweep that sees it
	// in the window records it again and the digest tally counts it twice.
	s.recorder.Record(outcome, post)
	log.Infof("Post passed: %s", post.Title)
	return outcome, nil
}

// removeWithReminder pins a reminder on the post and removes it
func (s *Service) removeWithReminder(ctx context.Context, post models.Post) (models.Outcome, error) {
	log := logrus.WithField("post", post.ID)

	reminder, err := s.platform.Reply(ctx, post.Fullname, s.reminderFor(post.Author))
	if err != nil {
		return models.OutcomeUnobserved, fmt.Errorf("failed to post reminder on %s: %w", post.ID, err)
	}
	if err := s.platform.Distinguish(ctx, reminder.Fullname, true); err != nil {
		return models.OutcomeUnobserved, fmt.Errorf("failed to pin reminder on %s: %w", post.ID, err)
	}

	s.recorder.Record(models.OutcomeRemoved, post)

	// the reminder must register before the post disappears
	if err := s.sleep(ctx, s.opts.RemovalDelay); err != nil {
		return models.OutcomeUnobserved, err
	}

	if err := s.platform.Remove(ctx, post.Fullname); err != nil {
		return models.OutcomeUnobserved, fmt.Errorf("failed to remove post %s: %w", post.ID, err)
	}

	log.Infof("Post removed for missing source: %s", post.Title)
	return models.OutcomeRemoved, nil
}

func (s *Service) reminderFor(author string) string {
	return fmt.Sprintf("Hey /u/%s\n\n%s", author, s.opts.ReminderText)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
