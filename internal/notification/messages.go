package notification

const commentPreviewLen = 50

func msgFollow(username string) string      { return username + " started following you" }
func msgUnfollow(username string) string    { return username + " unfollowed you" }
func msgLike(username string) string        { return username + " liked your post" }
func msgLikeComment(username string) string { return username + " liked your comment" }
func msgMention(username string) string     { return username + " mentioned you in a comment" }
func msgNewPost(username string) string     { return username + " posted something new" }

// msgComment 评论内容超过 50 个字符时截断并追加省略号
func msgComment(username, content string) string {
	r := []rune(content)
	if len(r) > commentPreviewLen {
		content = string(r[:commentPreviewLen]) + "..."
	}
	return username + " commented: " + content
}
