// Package bot implements the engagement job engine: per-account jobs
// that walk a feed, like comments at a derived pace, survive rate
// limits, and persist across restarts.
package bot

import (
	"context"
)

// Mode selects which feed a job draws posts from
type Mode string

const (
	ModeHashtag Mode = "hashtag"
	ModeExplore Mode = "explore"
)

// Valid reports whether the mode is one the engine knows
func (m Mode) Valid() bool {
	return m == ModeHashtag || m == ModeExplore
}

// Sort selects the ordering of a hashtag feed
type Sort string

const (
	SortRecent Sort = "recent"
	SortTop    Sort = "top"
)

// Post is a feed item whose comments the job works through
type Post struct {
	ID      string
	Code    string
	Caption string
}

// Link is the public web URL of the post, empty when the feed did not
// return a shortcode.
func (p Post) Link() string {
	if p.Code == "" {
		return ""
	}
	return "https://www.instagram.com/p/" + p.Code + "/"
}

// Comment is a single comment on a post
type Comment struct {
	ID        string
	UserID    string
	Username  string
	Text      string
	LikeCount int
	HasLiked  bool
}

// PostsPage is one page of feed posts with the cursor for the next one.
// An empty NextCursor means the feed is exhausted.
type PostsPage struct {
	Posts      []Post
	NextCursor string
}

// CommentsPage is one page of comments on a post
type CommentsPage struct {
	Comments   []Comment
	NextCursor string
}

// FeedProvider is the upstream surface the job runner drives. All
// methods act as the given account and must map upstream failures to
// the typed errors in pkg/errors so the runner can react to rate
// limits and expired sessions.
type FeedProvider interface {
	// FetchPosts returns a page of posts for the mode. Target is the
	// hashtag name for ModeHashtag and ignored for ModeExplore. An
	// empty cursor requests the first page.
	FetchPosts(ctx context.Context, account string, mode Mode, target string, sort Sort, cursor string) (*PostsPage, error)

	// FetchComments returns a page of comments for a post
	FetchComments(ctx context.Context, account, postID, cursor string) (*CommentsPage, error)

	// LikeComment likes a single comment as the account
	LikeComment(ctx context.Context, account, commentID string) error

	// CheckSession verifies the account has a usable session
	CheckSession(ctx context.Context, account string) error
}
