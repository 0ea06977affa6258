package app

import (
	"context"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/core/telegram/keyboard"
	"github.com/m3rciful/shopbot/shop/commerce"
	"github.com/m3rciful/shopbot/shop/view"

	"log/slog"
)

// deliverer renders screens into chat messages. Each screen replaces the
// previous one: the prior message is deleted and a fresh one is sent, so the
// keyboard the user sees always belongs to the current state.
type deliverer struct {
	api commerce.API
}

func newDeliverer(api commerce.API) *deliverer {
	return &deliverer{api: api}
}

// Screen sends one screen and returns the id of the new message. The prior
// message is deleted best-effort; a failed delete (already gone, too old) is
// not an error.
func (d *deliverer) Screen(ctx context.Context, c tele.Context, screen view.Screen, priorMsgID int) (int, error) {
	if priorMsgID != 0 {
		stored := tele.StoredMessage{
			MessageID: strconv.Itoa(priorMsgID),
			ChatID:    c.Chat().ID,
		}
		if err := c.Bot().Delete(stored); err != nil {
			logger.TG.LogAttrs(ctx, slog.LevelDebug, "screen.delete_prior_failed",
				slog.Int("message_id", priorMsgID),
				slog.String("err", err.Error()),
			)
		}
	}

	markup := buildMarkup(screen.Rows)

	if screen.ImageID != "" {
		msg, err := d.sendPhoto(ctx, c, screen, markup)
		if err == nil {
			return msg.ID, nil
		}
		logger.TG.LogAttrs(ctx, slog.LevelWarn, "screen.photo_failed",
			slog.String("image_id", screen.ImageID),
			slog.String("err", err.Error()),
		)
		// Degrade to a plain text screen.
	}

	msg, err := send(c, screen.Text, markup)
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

func (d *deliverer) sendPhoto(ctx context.Context, c tele.Context, screen view.Screen, markup *tele.ReplyMarkup) (*tele.Message, error) {
	stream, err := d.api.ProductImage(ctx, screen.ImageID)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	photo := &tele.Photo{
		File:    tele.FromReader(stream),
		Caption: screen.Text,
	}
	return send(c, photo, markup)
}

func send(c tele.Context, what any, markup *tele.ReplyMarkup) (*tele.Message, error) {
	if markup != nil {
		return c.Bot().Send(c.Chat(), what, markup)
	}
	return c.Bot().Send(c.Chat(), what)
}

func buildMarkup(rows [][]view.Action) *tele.ReplyMarkup {
	if len(rows) == 0 {
		return nil
	}
	btnRows := make([][]keyboard.InlineBtn, 0, len(rows))
	for _, row := range rows {
		btns := make([]keyboard.InlineBtn, 0, len(row))
		for _, action := range row {
			btns = append(btns, keyboard.InlineBtn{
				Text:   action.Label,
				Unique: action.Key,
				Data:   action.Payload,
			})
		}
		if len(btns) > 0 {
			btnRows = append(btnRows, btns)
		}
	}
	if len(btnRows) == 0 {
		return nil
	}
	return keyboard.InlineButtonsRows(btnRows...)
}
