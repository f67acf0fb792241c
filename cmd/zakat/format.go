package main

import (
	"html"
	"regexp"
)

var tagRe = regexp.MustCompile(`</?[a-z]+>`)

// stripTags drops the Telegram HTML markup for terminal output.
func stripTags(s string) string {
	return html.UnescapeString(tagRe.ReplaceAllString(s, ""))
}
