package queue

import (
	"strings"
	"time"
)

// RenderMessage joins the caption and hashtags the way every platform receives
// them: caption, a blank line, then the tags space-separated with a leading '#'.
func RenderMessage(caption string, hashtags []string) string {
	if len(hashtags) == 0 {
		return caption
	}
	tags := make([]string, len(hashtags))
	for i, h := range hashtags {
		if !strings.HasPrefix(h, "#") {
			h = "#" + h
		}
		tags[i] = h
	}
	return caption + "\n\n" + strings.Join(tags, " ")
}

// BackoffFor returns the delay before the next try after the given number of failed
// attempts. Attempts past the end of the table reuse its last entry.
func BackoffFor(table []int, attempts int) time.Duration {
	if len(table) == 0 {
		return time.Minute
	}
	i := attempts - 1
	if i < 0 {
		i = 0
	}
	if i >= len(table) {
		i = len(table) - 1
	}
	return time.Duration(table[i]) * time.Minute
}
