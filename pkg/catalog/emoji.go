package catalog

import (
	"fmt"
	"strings"
)

// TwemojiBaseURL serves one PNG per emoji, named by its code points.
const TwemojiBaseURL = "https://cdn.jsdelivr.net/gh/twitter/twemoji@14.0.2/assets/72x72/"

const (
	zwj                 = '\u200d'
	variationSelector16 = '\ufe0f'
)

// EmojiURL returns the Twemoji image for emoji, or "" for an empty string.
// The variation selector is dropped unless the sequence is joined with ZWJ,
// matching the CDN's file names.
func EmojiURL(emoji string) string {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return ""
	}
	keepVS := strings.ContainsRune(emoji, zwj)
	parts := make([]string, 0, len(emoji))
	for _, r := range emoji {
		if r == variationSelector16 && !keepVS {
			continue
		}
		parts = append(parts, fmt.Sprintf("%x", r))
	}
	if len(parts) == 0 {
		return ""
	}
	return TwemojiBaseURL + strings.Join(parts, "-") + ".png"
}
