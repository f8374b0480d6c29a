package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripMarkdownRemovesCommonConstructs(t *testing.T) {
	in := "# Title\n\nThis is **bold** and _italic_ and `code` with a [link](http://example.com).\n\n```\nblock\n```\n"
	out := stripMarkdown(in)
	assert.NotContains(t, out, "#")
	assert.NotContains(t, out, "**")
	assert.NotContains(t, out, "`")
	assert.NotContains(t, out, "[link]")
	assert.Contains(t, out, "bold")
	assert.Contains(t, out, "italic")
	assert.Contains(t, out, "link")
}

func TestStripMarkdownEmptyString(t *testing.T) {
	assert.Equal(t, "", stripMarkdown(""))
}
