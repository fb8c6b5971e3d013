package instagram

import (
	"fmt"
	"net/url"
)

const (
	// BaseURL is the base URL for the Instagram private API
	BaseURL = "https://i.instagram.com"

	// TagFeedEndpoint is the endpoint pattern for hashtag feeds
	TagFeedEndpoint = "/api/v1/feed/tag/%s/"

	// ExploreEndpoint is the endpoint for the explore feed
	ExploreEndpoint = "/api/v1/discover/explore/"

	// CommentsEndpoint is the endpoint pattern for a post's comments
	CommentsEndpoint = "/api/v1/media/%s/comments/"

	// CommentLikeEndpoint is the endpoint pattern for liking a comment
	CommentLikeEndpoint = "/api/v1/media/%s/comment_like/"

	// CurrentUserEndpoint reports the session's own user and doubles
	// as a cheap session check
	CurrentUserEndpoint = "/api/v1/accounts/current_user/"
)

// TagFeedURL constructs the URL for a hashtag feed page
func TagFeedURL(baseURL, tag, tab, maxID string) string {
	params := url.Values{}
	if tab != "" {
		params.Set("tab", tab)
	}
	if maxID != "" {
		params.Set("max_id", maxID)
	}

	u := baseURL + fmt.Sprintf(TagFeedEndpoint, url.PathEscape(tag))
	if encoded := params.Encode(); encoded != "" {
		u += "?" + encoded
	}
	return u
}

// ExploreFeedURL constructs the URL for an explore feed page
func ExploreFeedURL(baseURL, maxID string) string {
	u := baseURL + ExploreEndpoint
	if maxID != "" {
		params := url.Values{}
		params.Set("max_id", maxID)
		u += "?" + params.Encode()
	}
	return u
}

// CommentsURL constructs the URL for a page of a post's comments
func CommentsURL(baseURL, mediaID, minID string) string {
	u := baseURL + fmt.Sprintf(CommentsEndpoint, url.PathEscape(mediaID))
	if minID != "" {
		params := url.Values{}
		params.Set("min_id", minID)
		u += "?" + params.Encode()
	}
	return u
}

// CommentLikeURL constructs the URL for liking a comment
func CommentLikeURL(baseURL, commentID string) string {
	return baseURL + fmt.Sprintf(CommentLikeEndpoint, url.PathEscape(commentID))
}

// CurrentUserURL constructs the URL for the session check
func CurrentUserURL(baseURL string) string {
	return baseURL + CurrentUserEndpoint
}

// IsValidUsername checks if a username is valid according to Instagram rules
func IsValidUsername(username string) bool {
	if username == "" || len(username) > 30 {
		return false
	}

	// Instagram usernames can only contain letters, numbers, periods, and underscores
	for _, char := range username {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '.' || char == '_') {
			return false
		}
	}

	return true
}

// SanitizeUsername removes any invalid characters from a username
func SanitizeUsername(username string) string {
	if username == "" {
		return ""
	}

	// Remove @ symbol if present at the beginning
	if username[0] == '@' {
		username = username[1:]
	}

	// Remove any trailing slashes or spaces
	for len(username) > 0 && (username[len(username)-1] == '/' || username[len(username)-1] == ' ') {
		username = username[:len(username)-1]
	}

	return username
}
