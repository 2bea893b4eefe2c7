package models

import "time"

// Post represents a submission in the moderated community
type Post struct {
	ID            string    `json:"id"`
	Fullname      string    `json:"name"` // "t3_" + ID, used by write endpoints
	Title         string    `json:"title"`
	Author        string    `json:"author"` // empty when the account was deleted
	Subreddit     string    `json:"subreddit"`
	Permalink     string    `json:"permalink"`
	CreatedAt     time.Time `json:"created_at"`
	Stickied      bool      `json:"stickied"`
	Distinguished bool      `json:"distinguished"`
	Removed       bool      `json:"removed"`
	BannedBy      string    `json:"banned_by"` // moderator who removed the post, if any
}

// URL returns the display form used in the outcome log
func (p Post) URL() string {
	return "www.reddit.com" + p.Permalink
}

// Comment represents a comment and its direct replies
type Comment struct {
	ID       string    `json:"id"`
	Fullname string    `json:"name"`
	Author   string    `json:"author"` // empty when the account was deleted
	Body     string    `json:"body"`
	ParentID string    `json:"parent_id"`
	Replies  []Comment `json:"replies"`
}

// InboxMessage represents an entry in the bot's inbox
type InboxMessage struct {
	ID         string `json:"id"`
	Fullname   string `json:"name"`
	Author     string `json:"author"`
	Body       string `json:"body"`
	WasComment bool   `json:"was_comment"`
	ParentID   string `json:"parent_id"`  // fullname of the comment the message replies to
	Submission string `json:"submission"` // post id the message belongs to, empty for private messages
	Unread     bool   `json:"new"`
}

// LinkForm classifies the shape in which a user supplied a link
type LinkForm string

const (
	FormAMP       LinkForm = "amp"
	FormMobile    LinkForm = "mobile"
	FormHyperlink LinkForm = "markdown-hyperlink"
	FormPlain     LinkForm = "plain"
)

// Reply prefixes describing the change applied to a link
const (
	PrefixNonAMP       = "Non-AMP link: "
	PrefixDesktop      = "Desktop link: "
	PrefixPlainText    = "Plain-text link: "
	PrefixUserProvided = "User-provided source: "
)

// CanonicalLinkResult is the outcome of classifying and normalizing a piece of text
type CanonicalLinkResult struct {
	RawURL    string   `json:"raw_url"`
	Form      LinkForm `json:"form"`
	Canonical string   `json:"canonical,omitempty"` // empty when AMP resolution failed
	Link      string   `json:"link"`                // link to reply with, falls back to the raw link
	Prefix    string   `json:"prefix,omitempty"`
}

// Outcome is the terminal moderation result for a post within one sweep
type Outcome string

const (
	OutcomeUnobserved Outcome = "unobserved"
	OutcomeExempt     Outcome = "exempt"
	OutcomeLinkFound  Outcome = "link-found"
	OutcomeLinkFixed  Outcome = "link-malformed-fixed"
	OutcomeRemoved    Outcome = "no-link-removed"
	OutcomeReapproved Outcome = "re-approved"
)

// LogLabel returns the outcome log label, empty for outcomes that are not logged
func (o Outcome) LogLabel() string {
	switch o {
	case OutcomeLinkFound, OutcomeLinkFixed:
		return "Post PASSED"
	case OutcomeRemoved:
		return "Post FAILED"
	case OutcomeReapproved:
		return "Post RE-APPROVED"
	}
	return ""
}

// SweepResult summarises one scheduler iteration
type SweepResult struct {
	StartedAt    time.Time       `json:"started_at"`
	Duration     time.Duration   `json:"duration"`
	PostsFetched int             `json:"posts_fetched"`
	PostsInBand  int             `json:"posts_in_band"`
	Outcomes     map[Outcome]int `json:"outcomes"`
	PostErrors   int             `json:"post_errors"`
	InboxRead    int             `json:"inbox_read"`
	Reapproved   int             `json:"reapproved"`
}

// Alert represents an operator notification about a failed sweep
type Alert struct {
	Subject   string    `json:"subject"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// LogDigest is the weekly export of the outcome log
type LogDigest struct {
	WeekOf   time.Time      `json:"week_of"`
	Filename string         `json:"filename"`
	Data     []byte         `json:"-"`
	Counts   map[string]int `json:"counts"`
}
