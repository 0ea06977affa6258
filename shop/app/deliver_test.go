package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/shopbot/shop/view"
)

func TestBuildMarkup(t *testing.T) {
	rows := [][]view.Action{
		{
			{Label: "1 kg", Key: view.ActionQty, Payload: "1"},
			{Label: "5 kg", Key: view.ActionQty, Payload: "5"},
		},
		{{Label: "Cart", Key: view.ActionCart}},
	}

	markup := buildMarkup(rows)
	require.NotNil(t, markup)
	require.Len(t, markup.InlineKeyboard, 2)
	require.Len(t, markup.InlineKeyboard[0], 2)

	btn := markup.InlineKeyboard[0][1]
	assert.Equal(t, "5 kg", btn.Text)
	assert.Equal(t, view.ActionQty, btn.Unique)
	assert.Equal(t, "5", btn.Data)
}

func TestBuildMarkupEmpty(t *testing.T) {
	assert.Nil(t, buildMarkup(nil))
	assert.Nil(t, buildMarkup([][]view.Action{{}}))
}
