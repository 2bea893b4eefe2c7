package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/disneyvacation/wikihow-link-bot/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const (
	defaultAuthURL = "https://www.reddit.com"
	defaultAPIURL  = "https://oauth.reddit.com"
	deletedAuthor  = "[deleted]"

	moreChildrenBatch = 100
)

var contextPostID = regexp.MustCompile(`/comments/([a-z0-9]+)/`)

// Credentials for a Reddit script application
type Credentials struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
}

// RedditClient implements Platform against the Reddit OAuth API
type RedditClient struct {
	creds   Credentials
	client  *resty.Client
	authURL string
	apiURL  string

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// Ensure RedditClient implements Platform
var _ Platform = (*RedditClient)(nil)

type redditAuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
}

type redditListing struct {
	Kind string `json:"kind"`
	Data struct {
		Children []redditThing `json:"children"`
		After    string        `json:"after"`
	} `json:"data"`
}

type redditThing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type redditPost struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Title         string      `json:"title"`
	Author        string      `json:"author"`
	Subreddit     string      `json:"subreddit"`
	Permalink     string      `json:"permalink"`
	Created       float64     `json:"created_utc"`
	Stickied      bool        `json:"stickied"`
	Distinguished *string     `json:"distinguished"`
	Removed       bool        `json:"removed"`
	BannedBy      interface{} `json:"banned_by"` // string, true or null
}

type redditComment struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Author   string          `json:"author"`
	Body     string          `json:"body"`
	ParentID string          `json:"parent_id"`
	Replies  json.RawMessage `json:"replies"` // "" or a listing
}

type redditMore struct {
	Count    int      `json:"count"`
	Children []string `json:"children"`
}

type redditMessage struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Author     string `json:"author"`
	Body       string `json:"body"`
	WasComment bool   `json:"was_comment"`
	ParentID   string `json:"parent_id"`
	Context    string `json:"context"`
	New        bool   `json:"new"`
}

type redditJSONResponse struct {
	JSON struct {
		Errors [][]interface{} `json:"errors"`
		Data   struct {
			Things []redditThing `json:"things"`
		} `json:"data"`
	} `json:"json"`
}

// NewRedditClient creates a new Reddit platform client
func NewRedditClient(creds Credentials) *RedditClient {
	return &RedditClient{
		creds:   creds,
		client:  resty.New().SetTimeout(30 * time.Second),
		authURL: defaultAuthURL,
		apiURL:  defaultAPIURL,
	}
}

// WithBaseURLs points the client at different auth and API hosts
func (r *RedditClient) WithBaseURLs(authURL, apiURL string) *RedditClient {
	r.authURL = strings.TrimRight(authURL, "/")
	r.apiURL = strings.TrimRight(apiURL, "/")
	return r
}

func (r *RedditClient) authenticate(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.accessToken != "" && time.Now().Before(r.expiresAt) {
		return r.accessToken, nil
	}

	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", r.creds.UserAgent).
		SetBasicAuth(r.creds.ClientID, r.creds.ClientSecret).
		SetFormData(map[string]string{
			"grant_type": "password",
			"username":   r.creds.Username,
			"password":   r.creds.Password,
		}).
		Post(r.authURL + "/api/v1/access_token")
	if err != nil {
		return "", fmt.Errorf("reddit authentication failed: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return "", &APIError{StatusCode: resp.StatusCode(), Method: http.MethodPost, Path: "/api/v1/access_token", Body: string(resp.Body())}
	}

	var authResp redditAuthResponse
	if err := json.Unmarshal(resp.Body(), &authResp); err != nil {
		return "", fmt.Errorf("failed to decode reddit token: %w", err)
	}
	if authResp.AccessToken == "" {
		return "", fmt.Errorf("reddit authentication failed: %s", authResp.Error)
	}

	// renew a minute early
	r.accessToken = authResp.AccessToken
	r.expiresAt = time.Now().Add(time.Duration(authResp.ExpiresIn)*time.Second - time.Minute)
	return r.accessToken, nil
}

func (r *RedditClient) invalidateToken() {
	r.mu.Lock()
	r.accessToken = ""
	r.mu.Unlock()
}

// do performs an authenticated API call, re-authenticating once on 401
func (r *RedditClient) do(ctx context.Context, method, path string, query, form map[string]string) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		token, err := r.authenticate(ctx)
		if err != nil {
			return nil, err
		}

		req := r.client.R().
			SetContext(ctx).
			SetHeader("Authorization", "Bearer "+token).
			SetHeader("User-Agent", r.creds.UserAgent).
			SetQueryParam("raw_json", "1")
		if query != nil {
			req.SetQueryParams(query)
		}
		if form != nil {
			req.SetFormData(form)
		}

		resp, err := req.Execute(method, r.apiURL+path)
		if err != nil {
			return nil, fmt.Errorf("reddit API %s %s failed: %w", method, path, err)
		}

		if resp.StatusCode() == http.StatusUnauthorized && attempt == 0 {
			logrus.Debug("Reddit token rejected, re-authenticating")
			r.invalidateToken()
			continue
		}

		if resp.StatusCode() != http.StatusOK {
			return nil, &APIError{StatusCode: resp.StatusCode(), Method: method, Path: path, Body: string(resp.Body())}
		}
		return resp.Body(), nil
	}
}

func (r *RedditClient) NewPosts(ctx context.Context, community string, limit int) ([]models.Post, error) {
	body, err := r.do(ctx, http.MethodGet, fmt.Sprintf("/r/%s/new", community), map[string]string{
		"limit": strconv.Itoa(limit),
	}, nil)
	if err != nil {
		return nil, err
	}

	var listing redditListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("failed to decode posts of r/%s: %w", community, err)
	}
	return decodePosts(listing)
}

func (r *RedditClient) Post(ctx context.Context, id string) (models.Post, error) {
	body, err := r.do(ctx, http.MethodGet, "/api/info", map[string]string{
		"id": "t3_" + strings.TrimPrefix(id, "t3_"),
	}, nil)
	if err != nil {
		return models.Post{}, err
	}

	var listing redditListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return models.Post{}, fmt.Errorf("failed to decode post %s: %w", id, err)
	}

	posts, err := decodePosts(listing)
	if err != nil {
		return models.Post{}, err
	}
	if len(posts) == 0 {
		return models.Post{}, &APIError{StatusCode: http.StatusNotFound, Method: http.MethodGet, Path: "/api/info", Body: "post " + id + " not found"}
	}
	return posts[0], nil
}

func (r *RedditClient) TopLevelComments(ctx context.Context, post models.Post) ([]models.Comment, error) {
	body, err := r.do(ctx, http.MethodGet, "/comments/"+post.ID, map[string]string{
		"depth": "2",
		"limit": "500",
		"sort":  "old",
	}, nil)
	if err != nil {
		return nil, err
	}

	// [post listing, comment listing]
	var listings []redditListing
	if err := json.Unmarshal(body, &listings); err != nil {
		return nil, fmt.Errorf("failed to decode comments of %s: %w", post.ID, err)
	}
	if len(listings) < 2 {
		return nil, fmt.Errorf("unexpected comment response for %s", post.ID)
	}

	comments, err := decodeComments(listings[1])
	if err != nil {
		return nil, err
	}

	stubs, err := moreChildren(listings[1])
	if err != nil {
		return nil, err
	}
	if len(stubs) == 0 {
		return comments, nil
	}

	expanded, err := r.expandMore(ctx, post, stubs)
	if err != nil {
		return nil, err
	}
	return append(comments, expanded...), nil
}

// expandMore loads the top-level comments hidden behind "more" stubs,
// attaching their direct replies
func (r *RedditClient) expandMore(ctx context.Context, post models.Post, ids []string) ([]models.Comment, error) {
	postFullname := "t3_" + post.ID
	var topLevel []models.Comment
	var replies []models.Comment

	for start := 0; start < len(ids); start += moreChildrenBatch {
		end := min(start+moreChildrenBatch, len(ids))

		body, err := r.do(ctx, http.MethodGet, "/api/morechildren", map[string]string{
			"api_type": "json",
			"link_id":  postFullname,
			"children": strings.Join(ids[start:end], ","),
			"sort":     "old",
			"depth":    "2",
		}, nil)
		if err != nil {
			return nil, err
		}

		things, err := decodeJSONResponse(body, "/api/morechildren")
		if err != nil {
			return nil, err
		}
		for _, thing := range things {
			if thing.Kind != "t1" {
				continue
			}
			var c redditComment
			if err := json.Unmarshal(thing.Data, &c); err != nil {
				return nil, fmt.Errorf("failed to decode comment: %w", err)
			}
			comment, err := toComment(c)
			if err != nil {
				return nil, err
			}
			if comment.ParentID == postFullname {
				topLevel = append(topLevel, comment)
			} else {
				replies = append(replies, comment)
			}
		}
	}

	byName := make(map[string]int, len(topLevel))
	for i, c := range topLevel {
		byName[c.Fullname] = i
	}
	for _, reply := range replies {
		if i, ok := byName[reply.ParentID]; ok {
			topLevel[i].Replies = append(topLevel[i].Replies, reply)
		}
	}

	logrus.Debugf("Expanded %d hidden comments on %s", len(topLevel), post.ID)
	return topLevel, nil
}

func (r *RedditClient) UnreadMessages(ctx context.Context) ([]models.InboxMessage, error) {
	var messages []models.InboxMessage
	after := ""

	for {
		query := map[string]string{"limit": "100"}
		if after != "" {
			query["after"] = after
		}

		body, err := r.do(ctx, http.MethodGet, "/message/unread", query, nil)
		if err != nil {
			return nil, err
		}

		var listing redditListing
		if err := json.Unmarshal(body, &listing); err != nil {
			return nil, fmt.Errorf("failed to decode inbox: %w", err)
		}

		for _, child := range listing.Data.Children {
			var msg redditMessage
			if err := json.Unmarshal(child.Data, &msg); err != nil {
				return nil, fmt.Errorf("failed to decode inbox entry: %w", err)
			}
			messages = append(messages, toInboxMessage(msg))
		}

		if listing.Data.After == "" {
			return messages, nil
		}
		after = listing.Data.After
	}
}

func (r *RedditClient) Reply(ctx context.Context, parentFullname, text string) (models.Comment, error) {
	body, err := r.do(ctx, http.MethodPost, "/api/comment", nil, map[string]string{
		"api_type": "json",
		"thing_id": parentFullname,
		"text":     text,
	})
	if err != nil {
		return models.Comment{}, err
	}

	things, err := decodeJSONResponse(body, "/api/comment")
	if err != nil {
		return models.Comment{}, err
	}
	if len(things) == 0 {
		return models.Comment{}, fmt.Errorf("reddit returned no comment for reply to %s", parentFullname)
	}

	var c redditComment
	if err := json.Unmarshal(things[0].Data, &c); err != nil {
		return models.Comment{}, fmt.Errorf("failed to decode new comment: %w", err)
	}
	return toComment(c)
}

func (r *RedditClient) Distinguish(ctx context.Context, fullname string, sticky bool) error {
	body, err := r.do(ctx, http.MethodPost, "/api/distinguish", nil, map[string]string{
		"api_type": "json",
		"id":       fullname,
		"how":      "yes",
		"sticky":   strconv.FormatBool(sticky),
	})
	if err != nil {
		return err
	}
	_, err = decodeJSONResponse(body, "/api/distinguish")
	return err
}

func (r *RedditClient) Remove(ctx context.Context, fullname string) error {
	_, err := r.do(ctx, http.MethodPost, "/api/remove", nil, map[string]string{
		"id":   fullname,
		"spam": "false",
	})
	return err
}

func (r *RedditClient) Approve(ctx context.Context, fullname string) error {
	_, err := r.do(ctx, http.MethodPost, "/api/approve", nil, map[string]string{
		"id": fullname,
	})
	return err
}

func (r *RedditClient) MarkRead(ctx context.Context, fullnames []string) error {
	if len(fullnames) == 0 {
		return nil
	}
	_, err := r.do(ctx, http.MethodPost, "/api/read_message", nil, map[string]string{
		"id": strings.Join(fullnames, ","),
	})
	return err
}

func (r *RedditClient) SendMessage(ctx context.Context, to, subject, text string) error {
	body, err := r.do(ctx, http.MethodPost, "/api/compose", nil, map[string]string{
		"api_type": "json",
		"to":       to,
		"subject":  subject,
		"text":     text,
	})
	if err != nil {
		return err
	}
	_, err = decodeJSONResponse(body, "/api/compose")
	return err
}

func decodePosts(listing redditListing) ([]models.Post, error) {
	var posts []models.Post
	for _, child := range listing.Data.Children {
		if child.Kind != "t3" {
			continue
		}
		var p redditPost
		if err := json.Unmarshal(child.Data, &p); err != nil {
			return nil, fmt.Errorf("failed to decode post: %w", err)
		}
		posts = append(posts, toPost(p))
	}
	return posts, nil
}

func decodeComments(listing redditListing) ([]models.Comment, error) {
	var comments []models.Comment
	for _, child := range listing.Data.Children {
		if child.Kind != "t1" {
			continue
		}
		var c redditComment
		if err := json.Unmarshal(child.Data, &c); err != nil {
			return nil, fmt.Errorf("failed to decode comment: %w", err)
		}
		comment, err := toComment(c)
		if err != nil {
			return nil, err
		}
		comments = append(comments, comment)
	}
	return comments, nil
}

// moreChildren returns the comment ids behind the "more" stubs of listing.
// "continue this thread" stubs carry no ids and are skipped.
func moreChildren(listing redditListing) ([]string, error) {
	var ids []string
	for _, child := range listing.Data.Children {
		if child.Kind != "more" {
			continue
		}
		var more redditMore
		if err := json.Unmarshal(child.Data, &more); err != nil {
			return nil, fmt.Errorf("failed to decode more stub: %w", err)
		}
		for _, id := range more.Children {
			if id != "" && id != "_" {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// decodeJSONResponse unwraps an api_type=json response, turning reported
// errors into APIErrors. RATELIMIT is reported as 429 so it is retried.
func decodeJSONResponse(body []byte, path string) ([]redditThing, error) {
	var resp redditJSONResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", path, err)
	}

	if len(resp.JSON.Errors) > 0 {
		status := http.StatusBadRequest
		var parts []string
		for _, e := range resp.JSON.Errors {
			if len(e) > 0 && fmt.Sprint(e[0]) == "RATELIMIT" {
				status = http.StatusTooManyRequests
			}
			parts = append(parts, fmt.Sprint(e...))
		}
		return nil, &APIError{StatusCode: status, Method: http.MethodPost, Path: path, Body: strings.Join(parts, "; ")}
	}
	return resp.JSON.Data.Things, nil
}

func toPost(p redditPost) models.Post {
	bannedBy := ""
	switch v := p.BannedBy.(type) {
	case string:
		bannedBy = v
	case bool:
		if v {
			bannedBy = "true"
		}
	}

	return models.Post{
		ID:            p.ID,
		Fullname:      p.Name,
		Title:         p.Title,
		Author:        authorName(p.Author),
		Subreddit:     p.Subreddit,
		Permalink:     p.Permalink,
		CreatedAt:     time.Unix(int64(p.Created), 0).UTC(),
		Stickied:      p.Stickied,
		Distinguished: p.Distinguished != nil && *p.Distinguished != "",
		Removed:       p.Removed || bannedBy != "",
		BannedBy:      bannedBy,
	}
}

func toComment(c redditComment) (models.Comment, error) {
	comment := models.Comment{
		ID:       c.ID,
		Fullname: c.Name,
		Author:   authorName(c.Author),
		Body:     c.Body,
		ParentID: c.ParentID,
	}

	raw := strings.TrimSpace(string(c.Replies))
	if raw == "" || raw == `""` || raw == "null" {
		return comment, nil
	}

	var replies redditListing
	if err := json.Unmarshal(c.Replies, &replies); err != nil {
		return models.Comment{}, fmt.Errorf("failed to decode replies of %s: %w", c.ID, err)
	}
	children, err := decodeComments(replies)
	if err != nil {
		return models.Comment{}, err
	}
	comment.Replies = children
	return comment, nil
}

func toInboxMessage(m redditMessage) models.InboxMessage {
	submission := ""
	if match := contextPostID.FindStringSubmatch(m.Context); match != nil {
		submission = match[1]
	}

	return models.InboxMessage{
		ID:         m.ID,
		Fullname:   m.Name,
		Author:     authorName(m.Author),
		Body:       m.Body,
		WasComment: m.WasComment,
		ParentID:   m.ParentID,
		Submission: submission,
		Unread:     m.New,
	}
}

func authorName(author string) string {
	if author == deletedAuthor {
		return ""
	}
	return author
}
