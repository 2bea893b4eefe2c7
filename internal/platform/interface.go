package platform

import (
	"context"

	"github.com/disneyvacation/wikihow-link-bot/internal/models"
)

// Platform defines the forum operations the moderation bot relies on. Write
// methods take Reddit fullnames ("t1_..." comments, "t3_..." posts).
type Platform interface {
	// NewPosts lists the newest posts of a community, newest first
	NewPosts(ctx context.Context, community string, limit int) ([]models.Post, error)
	// Post fetches the current state of a single post by id
	Post(ctx context.Context, id string) (models.Post, error)
	// TopLevelComments returns the top-level comments of a post in platform
	// order, each with its direct replies. Unexpanded "more" stubs are dropped.
	TopLevelComments(ctx context.Context, post models.Post) ([]models.Comment, error)
	// UnreadMessages returns every unread inbox entry
	UnreadMessages(ctx context.Context) ([]models.InboxMessage, error)

	Reply(ctx context.Context, parentFullname, text string) (models.Comment, error)
	Distinguish(ctx context.Context, fullname string, sticky bool) error
	Remove(ctx context.Context, fullname string) error
	Approve(ctx context.Context, fullname string) error
	MarkRead(ctx context.Context, fullnames []string) error
	SendMessage(ctx context.Context, to, subject, text string) error
}
