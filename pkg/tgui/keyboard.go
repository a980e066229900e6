package tgui

import tele "gopkg.in/telebot.v4"

// Grid lays buttons out cols per row as an inline keyboard.
func Grid(cols int, buttons []tele.InlineButton) *tele.ReplyMarkup {
	if cols < 1 {
		cols = 1
	}
	rows := make([][]tele.InlineButton, 0, (len(buttons)+cols-1)/cols)
	for len(buttons) > 0 {
		n := cols
		if n > len(buttons) {
			n = len(buttons)
		}
		rows = append(rows, buttons[:n:n])
		buttons = buttons[n:]
	}
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}
