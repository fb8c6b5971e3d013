package instagram

import (
	"context"
	"net/url"

	"botinsta/pkg/bot"
	errs "botinsta/pkg/errors"
)

// FetchPosts returns one page of the requested feed
func (c *Client) FetchPosts(ctx context.Context, account string, mode bot.Mode, target string, sort bot.Sort, cursor string) (*bot.PostsPage, error) {
	switch mode {
	case bot.ModeHashtag:
		return c.fetchTagFeed(ctx, account, target, sort, cursor)
	case bot.ModeExplore:
		return c.fetchExploreFeed(ctx, account, cursor)
	default:
		return nil, errs.Newf(errs.ErrorTypeInvalidInput, "unsupported mode %q", mode)
	}
}

func (c *Client) fetchTagFeed(ctx context.Context, account, tag string, sort bot.Sort, cursor string) (*bot.PostsPage, error) {
	tab := "recent"
	if sort == bot.SortTop {
		tab = "top"
	}

	var resp tagFeedResponse
	if err := c.getJSON(ctx, account, TagFeedURL(c.baseURL, tag, tab, cursor), &resp); err != nil {
		return nil, err
	}

	items := resp.Items
	if sort == bot.SortTop && len(resp.RankedItems) > 0 {
		items = resp.RankedItems
	}

	page := &bot.PostsPage{}
	for i := range items {
		page.Posts = append(page.Posts, toPost(&items[i]))
	}
	if resp.MoreAvailable {
		page.NextCursor = resp.NextMaxID
	}
	return page, nil
}

func (c *Client) fetchExploreFeed(ctx context.Context, account, cursor string) (*bot.PostsPage, error) {
	var resp exploreResponse
	if err := c.getJSON(ctx, account, ExploreFeedURL(c.baseURL, cursor), &resp); err != nil {
		return nil, err
	}

	page := &bot.PostsPage{}
	for _, item := range resp.Items {
		if item.Media == nil {
			// Explore mixes in non-media units, skip them
			continue
		}
		page.Posts = append(page.Posts, toPost(item.Media))
	}
	if resp.MoreAvailable {
		page.NextCursor = resp.NextMaxID.String()
	}
	return page, nil
}

// FetchComments returns one page of a post's comments
func (c *Client) FetchComments(ctx context.Context, account, postID, cursor string) (*bot.CommentsPage, error) {
	var resp commentsResponse
	if err := c.getJSON(ctx, account, CommentsURL(c.baseURL, postID, cursor), &resp); err != nil {
		return nil, err
	}

	page := &bot.CommentsPage{}
	for _, item := range resp.Comments {
		page.Comments = append(page.Comments, bot.Comment{
			ID:        item.PK.String(),
			UserID:    item.UserID.String(),
			Username:  item.User.Username,
			Text:      item.Text,
			LikeCount: item.CommentLikeCount,
			HasLiked:  item.HasLikedComment,
		})
	}
	if resp.HasMoreComments {
		page.NextCursor = resp.NextMinID
	}
	return page, nil
}

// LikeComment likes a single comment as the account
func (c *Client) LikeComment(ctx context.Context, account, commentID string) error {
	var resp apiEnvelope
	form := url.Values{}
	form.Set("comment_id", commentID)
	return c.postForm(ctx, account, CommentLikeURL(c.baseURL, commentID), form, &resp)
}

// CheckSession verifies the account's stored session is still valid
func (c *Client) CheckSession(ctx context.Context, account string) error {
	var resp currentUserResponse
	return c.getJSON(ctx, account, CurrentUserURL(c.baseURL), &resp)
}

func toPost(item *mediaItem) bot.Post {
	post := bot.Post{
		ID:   item.mediaID(),
		Code: item.Code,
	}
	if item.Caption != nil {
		post.Caption = item.Caption.Text
	}
	return post
}
