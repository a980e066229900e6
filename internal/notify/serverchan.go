package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cuckoo/internal/reminder"
	logx "cuckoo/pkg/logx"
)

const defaultServerChanURL = "https://sctapi.ftqq.com"

type serverChanDriver struct {
	endpoint string
	http     *http.Client
	log      logx.Logger
}

// NewServerChan returns a mobile push driver for ServerChan. Pushes carry
// no answer back.
func NewServerChan(cfg ServerChanConfig, log logx.Logger) (Driver, error) {
	key := strings.TrimSpace(cfg.SendKey)
	if key == "" {
		return nil, errors.New("notify: serverchan send_key is empty")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultServerChanURL
	}
	return &serverChanDriver{
		endpoint: base + "/" + url.PathEscape(key) + ".send",
		http:     &http.Client{Timeout: 10 * time.Second},
		log:      log.With(logx.String("comp", "notify.serverchan")),
	}, nil
}

func (d *serverChanDriver) Name() string { return DriverServerChan }

type serverChanReply struct {
	Code    *int   `json:"code"`
	Errno   *int   `json:"errno"`
	Message string `json:"message"`
	Errmsg  string `json:"errmsg"`
}

func (d *serverChanDriver) Notify(ctx context.Context, _ *reminder.Reminder, p reminder.Payload) (reminder.Response, error) {
	form := url.Values{}
	form.Set("title", p.Brief)
	form.Set("desp", text(p, nil))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return reminder.Response{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := d.http.Do(req)
	if err != nil {
		return reminder.Response{}, fmt.Errorf("serverchan push: %w", err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if res.StatusCode/100 != 2 {
		return reminder.Response{}, fmt.Errorf("serverchan push: status %d", res.StatusCode)
	}

	var reply serverChanReply
	if err := json.Unmarshal(body, &reply); err == nil {
		if reply.Code != nil && *reply.Code != 0 {
			return reminder.Response{}, fmt.Errorf("serverchan push: code %d: %s", *reply.Code, reply.Message)
		}
		if reply.Errno != nil && *reply.Errno != 0 {
			return reminder.Response{}, fmt.Errorf("serverchan push: errno %d: %s", *reply.Errno, reply.Errmsg)
		}
	}
	d.log.Debug("pushed", logx.Int64("task_id", p.TaskID))
	return reminder.Response{}, nil
}
