package instagram

import "encoding/json"

// apiEnvelope carries the status fields every private API response has
type apiEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// mediaItem is a post as the private API returns it
type mediaItem struct {
	PK   json.Number `json:"pk"`
	ID   string      `json:"id"`
	Code string      `json:"code"`
	User struct {
		Username string `json:"username"`
	} `json:"user"`
	Caption *struct {
		Text string `json:"text"`
	} `json:"caption"`
}

// mediaID returns the identifier usable in media endpoints
func (m *mediaItem) mediaID() string {
	if m.ID != "" {
		return m.ID
	}
	return m.PK.String()
}

// tagFeedResponse is a page of a hashtag feed. Recent posts arrive in
// items, top posts in ranked_items.
type tagFeedResponse struct {
	apiEnvelope
	Items         []mediaItem `json:"items"`
	RankedItems   []mediaItem `json:"ranked_items"`
	MoreAvailable bool        `json:"more_available"`
	NextMaxID     string      `json:"next_max_id"`
}

// exploreResponse is a page of the explore feed. Items wrap their
// media and the cursor is numeric.
type exploreResponse struct {
	apiEnvelope
	Items []struct {
		Media *mediaItem `json:"media"`
	} `json:"items"`
	MoreAvailable bool        `json:"more_available"`
	NextMaxID     json.Number `json:"next_max_id"`
}

// commentItem is a single comment
type commentItem struct {
	PK     json.Number `json:"pk"`
	UserID json.Number `json:"user_id"`
	User   struct {
		Username string `json:"username"`
	} `json:"user"`
	Text             string `json:"text"`
	CommentLikeCount int    `json:"comment_like_count"`
	HasLikedComment  bool   `json:"has_liked_comment"`
}

// commentsResponse is a page of a post's comments
type commentsResponse struct {
	apiEnvelope
	Comments            []commentItem `json:"comments"`
	CommentCount        int           `json:"comment_count"`
	HasMoreComments     bool          `json:"has_more_comments"`
	NextMinID           string        `json:"next_min_id"`
	CaptionIsEdited     bool          `json:"caption_is_edited"`
	CommentLikesEnabled bool          `json:"comment_likes_enabled"`
}

// currentUserResponse is the session check response
type currentUserResponse struct {
	apiEnvelope
	User struct {
		PK       json.Number `json:"pk"`
		Username string      `json:"username"`
	} `json:"user"`
}
