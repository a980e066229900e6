package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	tele "gopkg.in/telebot.v4"

	"cuckoo/internal/reminder"
	logx "cuckoo/pkg/logx"
	"cuckoo/pkg/tgui"
)

// snoozeChoices are the inline buttons attached to every reminder message.
// Their labels are the activation values the engine understands.
var snoozeChoices = []string{
	reminder.ActivationSnooze5Min,
	reminder.ActivationSnooze1Hour,
	reminder.ActivationSnoozeMorning,
	reminder.ActivationDismiss,
}

type telegramDriver struct {
	cfg     TelegramConfig
	log     logx.Logger
	bot     *tele.Bot
	chat    *tele.Chat
	pending *waiters
}

// NewTelegram returns a driver that sends each reminder to a Telegram chat
// with snooze buttons and waits up to ReplyTimeout for a tap. Run must be
// active for answers to arrive.
func NewTelegram(cfg TelegramConfig, log logx.Logger) (Driver, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("notify: telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("notify: telegram chat_id is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = 60 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: cfg.PollTimeout},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	d := &telegramDriver{
		cfg:     cfg,
		log:     log.With(logx.String("comp", "notify.telegram")),
		bot:     b,
		chat:    &tele.Chat{ID: cfg.ChatID},
		pending: newWaiters(),
	}
	b.Handle(tele.OnCallback, d.onCallback)
	return d, nil
}

func (d *telegramDriver) Name() string { return DriverTelegram }

// Run polls Telegram for button taps until ctx is done.
func (d *telegramDriver) Run(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			d.bot.Stop()
		case <-done:
		}
	}()
	d.log.Info("polling started")
	d.bot.Start()
	close(done)
	d.log.Info("polling stopped")
	return nil
}

func (d *telegramDriver) Notify(ctx context.Context, rem *reminder.Reminder, p reminder.Payload) (reminder.Response, error) {
	token := uuid.NewString()
	ch := d.pending.add(token)
	defer d.pending.drop(token)

	msg, err := d.bot.Send(d.chat, message(p, nil), &tele.SendOptions{
		ReplyMarkup: snoozeKeyboard(token),
		ParseMode:   tele.ModeHTML,
	})
	if err != nil {
		return reminder.Response{}, fmt.Errorf("telegram send: %w", err)
	}

	v, answered, err := awaitChoice(ctx, ch, d.cfg.ReplyTimeout)
	if answered {
		return reminder.Response{ActivationValue: v}, nil
	}
	// No answer: drop the buttons so a late tap cannot act on a stale firing.
	if _, cerr := d.bot.EditReplyMarkup(msg, nil); cerr != nil {
		d.log.Debug("clear keyboard failed", logx.Err(cerr))
	}
	if err != nil {
		return reminder.Response{}, fmt.Errorf("telegram wait: %w", err)
	}
	remindID := int64(0)
	if rem != nil {
		remindID = rem.ID
	}
	d.log.Debug("no answer", logx.Int64("remind_id", remindID), logx.Duration("waited", d.cfg.ReplyTimeout))
	return reminder.Response{}, nil
}

// awaitChoice waits for a button press. Running out of reply time is not an
// error; ctx ending first is.
func awaitChoice(ctx context.Context, ch <-chan string, wait time.Duration) (string, bool, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case v := <-ch:
		return v, true, nil
	case <-timer.C:
		return "", false, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

func (d *telegramDriver) onCallback(c tele.Context) error {
	cb := c.Callback()
	if cb == nil {
		return nil
	}
	if m := cb.Message; m != nil && m.Chat != nil && m.Chat.ID != d.cfg.ChatID {
		return c.Respond()
	}
	token, value, ok := parseChoice(cb.Data)
	if !ok || !d.pending.resolve(token, value) {
		return c.Respond(&tele.CallbackResponse{Text: "已过期"})
	}
	if m := cb.Message; m != nil {
		if _, err := d.bot.Edit(m, m.Text+"\n→ "+value); err != nil {
			d.log.Debug("edit answered message failed", logx.Err(err))
		}
	}
	return c.Respond(&tele.CallbackResponse{Text: value})
}

func snoozeKeyboard(token string) *tele.ReplyMarkup {
	btns := make([]tele.InlineButton, 0, len(snoozeChoices))
	for i, label := range snoozeChoices {
		data, err := tgui.Data(token, strconv.Itoa(i))
		if err != nil {
			continue
		}
		btns = append(btns, tele.InlineButton{Text: label, Data: data})
	}
	return tgui.Grid(2, btns)
}

// parseChoice decodes "token|index" callback data into the chosen label.
func parseChoice(data string) (token, value string, ok bool) {
	parts := tgui.Split(data)
	if len(parts) != 2 || parts[0] == "" {
		return "", "", false
	}
	i, err := strconv.Atoi(parts[1])
	if err != nil || i < 0 || i >= len(snoozeChoices) {
		return "", "", false
	}
	return parts[0], snoozeChoices[i], true
}

// message renders a reminder as Telegram HTML.
func message(p reminder.Payload, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	var when tgui.H
	if p.AlarmAt > 0 {
		when = tgui.I(time.Unix(p.AlarmAt, 0).In(loc).Format("2006-01-02 15:04"))
	}
	detail := tgui.TruncRunes(strings.TrimSpace(p.Detail), tgui.MaxMessageRunes/2)
	return tgui.JoinH("\n", tgui.B(tgui.TruncRunes(p.Brief, 256)), tgui.Esc(detail), when).String()
}

// waiters correlates outstanding notifications with button taps.
type waiters struct {
	mu sync.Mutex
	m  map[string]chan string
}

func newWaiters() *waiters { return &waiters{m: make(map[string]chan string)} }

func (w *waiters) add(token string) <-chan string {
	ch := make(chan string, 1)
	w.mu.Lock()
	w.m[token] = ch
	w.mu.Unlock()
	return ch
}

// resolve delivers value to the waiter for token. Only the first answer
// counts.
func (w *waiters) resolve(token, value string) bool {
	w.mu.Lock()
	ch, ok := w.m[token]
	if ok {
		delete(w.m, token)
	}
	w.mu.Unlock()
	if !ok {
		return false
	}
	ch <- value
	return true
}

func (w *waiters) drop(token string) {
	w.mu.Lock()
	delete(w.m, token)
	w.mu.Unlock()
}

func (w *waiters) size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.m)
}
