// Package tgui holds small Telegram rendering helpers: HTML escaping for
// ParseMode=HTML, length limits, callback data packing and inline keyboards.
package tgui
