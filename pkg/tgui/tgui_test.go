package tgui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDataSplitData(t *testing.T) {
	scope, action, payload := SplitData(Data("prod", "rm", "mango-lassi"))
	assert.Equal(t, "prod", scope)
	assert.Equal(t, "rm", action)
	assert.Equal(t, "mango-lassi", payload)

	// Payload may contain colons.
	_, _, payload = SplitData("mail:rm:ops@example.com:extra")
	assert.Equal(t, "ops@example.com:extra", payload)

	scope, action, payload = SplitData(Data("menu", "main", ""))
	assert.Equal(t, "menu", scope)
	assert.Equal(t, "main", action)
	assert.Empty(t, payload)
}

func TestBuilderEscapesUserText(t *testing.T) {
	msg := New().
		Title("", "Status <live>").
		KV("Price", "₹ <100").
		Line("a & b").
		Build()

	assert.Contains(t, msg.Text, "<b>Status &lt;live&gt;</b>")
	assert.Contains(t, msg.Text, "&lt;100")
	assert.Contains(t, msg.Text, "a &amp; b")
	assert.Equal(t, "HTML", msg.Opt.ParseMode)
	assert.True(t, msg.Opt.DisablePreview)
	assert.Nil(t, msg.Opt.ReplyMarkupAdapter)
}

func TestBuilderAttachesKeyboard(t *testing.T) {
	kb := NewInline().Row(Btn("Go", Data("menu", "main", "")))
	msg := New().Line("pick").Inline(kb).Build()
	assert.NotNil(t, msg.Opt.ReplyMarkupAdapter)
}
