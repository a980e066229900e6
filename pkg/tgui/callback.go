package tgui

import (
	"errors"
	"strings"
)

// MaxCallbackData is Telegram's callback_data limit in bytes.
const MaxCallbackData = 64

const sep = "|"

var (
	ErrCallbackTooLong = errors.New("tgui: callback data too long")
	ErrCallbackSep     = errors.New("tgui: callback part contains separator")
)

// Data packs parts as "a|b|c" for an inline button.
func Data(parts ...string) (string, error) {
	for _, p := range parts {
		if strings.Contains(p, sep) {
			return "", ErrCallbackSep
		}
	}
	s := strings.Join(parts, sep)
	if len(s) > MaxCallbackData {
		return "", ErrCallbackTooLong
	}
	return s, nil
}

// Split unpacks data built by Data. The "\f" marker telebot puts in front
// of unique button data is dropped.
func Split(data string) []string {
	data = strings.TrimPrefix(data, "\f")
	if data == "" {
		return nil
	}
	return strings.Split(data, sep)
}
