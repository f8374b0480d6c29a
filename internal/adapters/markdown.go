// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package adapters

import (
	"regexp"
	"strings"
)

// stripMarkdown removes headers, emphasis, code spans/fences, block
// quotes, links, images and horizontal rules, then collapses whitespace.
// Every Synthesiser shares this one implementation, applied at the
// synthesis boundary, since none of the wired TTS backends accept
// markdown.
var (
	mdHeader      = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	mdEmphasis    = regexp.MustCompile(`\*{1,2}([^*]+?)\*{1,2}|_{1,2}([^_]+?)_{1,2}`)
	mdInlineCode  = regexp.MustCompile("`([^`]+)`")
	mdCodeFence   = regexp.MustCompile("(?s)```[^`]*```")
	mdBlockquote  = regexp.MustCompile(`(?m)^>\s?`)
	mdImage       = regexp.MustCompile(`!\[(.*?)\]\(.*?\)`)
	mdLink        = regexp.MustCompile(`\[(.*?)\]\(.*?\)`)
	mdRule        = regexp.MustCompile(`(?m)^(-{3,}|\*{3,}|_{3,})$`)
	mdStrayMarker = regexp.MustCompile(`[*_]+`)
	mdWhitespace  = regexp.MustCompile(`\s+`)
)

func stripMarkdown(text string) string {
	if text == "" {
		return text
	}
	text = mdHeader.ReplaceAllString(text, "")
	text = mdEmphasis.ReplaceAllString(text, "$1$2")
	text = mdCodeFence.ReplaceAllString(text, "")
	text = mdInlineCode.ReplaceAllString(text, "$1")
	text = mdBlockquote.ReplaceAllString(text, "")
	text = mdImage.ReplaceAllString(text, "$1")
	text = mdLink.ReplaceAllString(text, "$1")
	text = mdRule.ReplaceAllString(text, "")
	text = mdStrayMarker.ReplaceAllString(text, "")
	text = mdWhitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
