package moderation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/disneyvacation/wikihow-link-bot/internal/linkfix"
	"github.com/disneyvacation/wikihow-link-bot/internal/models"
	"github.com/disneyvacation/wikihow-link-bot/internal/platform"
	"github.com/sirupsen/logrus"
)

// InboxResult summarises one pass over the inbox
type InboxResult struct {
	Read       int
	Reapproved int
}

// ProcessInbox re-approves posts whose authors replied to the reminder with
// a source link. Every inspected message is marked read, whether or not it
// led to an action. Messages inspected before a failure are still marked
// read; the failing message stays unread for the next sweep.
func (s *Service) ProcessInbox(ctx context.Context) (InboxResult, error) {
	var result InboxResult

	messages, err := s.platform.UnreadMessages(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to fetch unread messages: %w", err)
	}

	var batch []string
	for _, msg := range messages {
		reapproved, err := s.processMessage(ctx, msg)
		if errors.Is(err, platform.ErrParentUnavailable) {
			logrus.WithField("message", msg.ID).Warn("Reply no longer attached to a comment, marking read")
			if err := s.platform.MarkRead(ctx, []string{msg.Fullname}); err != nil {
				return result, s.flushRead(ctx, batch, &result, fmt.Errorf("failed to mark %s read: %w", msg.ID, err))
			}
			result.Read++
			continue
		}
		if err != nil {
			return result, s.flushRead(ctx, batch, &result, err)
		}

		if reapproved {
			result.Reapproved++
		}
		batch = append(batch, msg.Fullname)
	}

	if err := s.flushRead(ctx, batch, &result, nil); err != nil {
		return result, err
	}

	if len(messages) > 0 {
		logrus.Infof("Inbox processed: %d read, %d posts re-approved", result.Read, result.Reapproved)
	}
	return result, nil
}

// flushRead marks batch read and returns cause, or the marking error when
// cause is nil.
func (s *Service) flushRead(ctx context.Context, batch []string, result *InboxResult, cause error) error {
	if len(batch) == 0 {
		return cause
	}

	if err := s.platform.MarkRead(ctx, batch); err != nil {
		if cause != nil {
			logrus.Errorf("Failed to mark %d messages read: %v", len(batch), err)
			return cause
		}
		return fmt.Errorf("failed to mark %d messages read: %w", len(batch), err)
	}
	result.Read += len(batch)
	return cause
}

// processMessage re-approves the post msg refers to when it is eligible
func (s *Service) processMessage(ctx context.Context, msg models.InboxMessage) (bool, error) {
	if !msg.WasComment || msg.Submission == "" {
		return false, nil
	}

	body := linkfix.DecodeText(msg.Body)
	if !s.policy.ContainsCitation(body) {
		return false, nil
	}

	post, err := s.platform.Post(ctx, msg.Submission)
	if err != nil {
		return false, fmt.Errorf("failed to fetch post %s: %w", msg.Submission, err)
	}

	// posts approved in an earlier pass no longer carry the bot's removal
	if !s.opts.Bot.Is(post.BannedBy) {
		return false, nil
	}

	log := logrus.WithFields(logrus.Fields{"post": post.ID, "message": msg.ID})

	if err := s.removeThread(ctx, msg); err != nil {
		return false, err
	}

	source := s.normalizer.Normalize(ctx, body, true)
	reply, err := s.platform.Reply(ctx, post.Fullname, source)
	if err != nil {
		return false, fmt.Errorf("failed to post source on %s: %w", post.ID, err)
	}
	if err := s.platform.Distinguish(ctx, reply.Fullname, false); err != nil {
		return false, fmt.Errorf("failed to distinguish source on %s: %w", post.ID, err)
	}
	if err := s.platform.Approve(ctx, post.Fullname); err != nil {
		return false, fmt.Errorf("failed to approve post %s: %w", post.ID, err)
	}

	s.recorder.Record(models.OutcomeReapproved, post)
	log.Infof("Post re-approved with user provided source: %s", post.Title)
	return true, nil
}

// removeThread removes the bot's reminder and the user's reply to it
func (s *Service) removeThread(ctx context.Context, msg models.InboxMessage) error {
	if !strings.HasPrefix(msg.ParentID, "t1_") {
		return fmt.Errorf("message %s replies to %q: %w", msg.ID, msg.ParentID, platform.ErrParentUnavailable)
	}

	if err := s.platform.Remove(ctx, msg.ParentID); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("removing %s: %w", msg.ParentID, platform.ErrParentUnavailable)
		}
		return fmt.Errorf("failed to remove reminder %s: %w", msg.ParentID, err)
	}

	if err := s.platform.Remove(ctx, msg.Fullname); err != nil {
		return fmt.Errorf("failed to remove reply %s: %w", msg.ID, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var apiErr *platform.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
