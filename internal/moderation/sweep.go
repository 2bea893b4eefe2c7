package moderation

import (
	"context"

	"github.com/disneyvacation/wikihow-link-bot/internal/models"
	"github.com/disneyvacation/wikihow-link-bot/internal/platform"
	"github.com/sirupsen/logrus"
)

// Sweep runs one pass: every post of each community whose age falls in the
// observation window is moderated, then the inbox is processed once.
//
// A post failing with a non-retryable platform response is skipped. Retryable
// platform faults and any other error end the sweep and are returned.
func (s *Service) Sweep(ctx context.Context) (result models.SweepResult, err error) {
	start := s.now()
	result = models.SweepResult{
		StartedAt: start,
		Outcomes:  make(map[models.Outcome]int),
	}
	defer func() {
		result.Duration = s.now().Sub(start)
		sweepDuration.Observe(result.Duration.Seconds())
		if err != nil {
			sweepCount.WithLabelValues("error").Inc()
		} else {
			sweepCount.WithLabelValues("ok").Inc()
		}
	}()

	for _, community := range s.opts.Communities {
		if err = s.sweepCommunity(ctx, community, &result); err != nil {
			return result, err
		}
	}

	inbox, err := s.ProcessInbox(ctx)
	result.InboxRead = inbox.Read
	result.Reapproved = inbox.Reapproved
	inboxReadCount.Add(float64(inbox.Read))
	outcomeCount.WithLabelValues(string(models.OutcomeReapproved)).Add(float64(inbox.Reapproved))
	return result, err
}

func (s *Service) sweepCommunity(ctx context.Context, community string, result *models.SweepResult) error {
	posts, err := s.platform.NewPosts(ctx, community, s.opts.PostLimit)
	if err != nil {
		return err
	}
	result.PostsFetched += len(posts)
	inBand := 0

	for _, post := range posts {
		age := s.now().Sub(post.CreatedAt)
		if age < s.opts.MinPostAge {
			continue
		}
		// newest first, so everything after this is older still
		if age > s.opts.MaxPostAge {
			break
		}
		result.PostsInBand++
		inBand++

		outcome, err := s.ModeratePost(ctx, post)
		if err != nil {
			if platform.IsAPIError(err) && !platform.IsRetryable(err) {
				logrus.WithField("post", post.ID).Warnf("Skipping post after platform error: %v", err)
				result.PostErrors++
				postErrorCount.Inc()
				continue
			}
			return err
		}

		result.Outcomes[outcome]++
		outcomeCount.WithLabelValues(string(outcome)).Inc()
	}

	logrus.Infof("Swept r/%s: %d posts fetched, %d in window", community, len(posts), inBand)
	return nil
}
