package feed

import (
	"regexp"
	"strings"
)

// hashtagPattern matches '#' followed by one or more Unicode letters, digits
// or underscores. The capture group is the tag without the '#'.
var hashtagPattern = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)

// ExtractHashtags returns the lowercased tags found in content, in the order
// they appear.
//
// Duplicates are kept: "Check #go and #GO" yields ["go", "go"]. Callers that
// need a set must dedupe themselves. The result is never nil so it encodes as
// [] rather than null.
func ExtractHashtags(content string) []string {
	matches := hashtagPattern.FindAllStringSubmatch(content, -1)
	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		tags = append(tags, strings.ToLower(m[1]))
	}
	return tags
}
