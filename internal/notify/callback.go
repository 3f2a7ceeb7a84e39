// Package notify posts completion reports to the external callback endpoint.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"equity/pkg/backoff"
	"equity/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Config addresses the callback endpoint.
type Config struct {
	URL        string        `yaml:"url"`
	Account    string        `yaml:"account"`
	Password   string        `yaml:"password"`
	MaxRetries int           `yaml:"max_retries"`
	Backoff    time.Duration `yaml:"backoff"`
	Timeout    time.Duration `yaml:"timeout"`
}

// FileCount is the result of one loaded file.
type FileCount struct {
	Name    string
	Success int64
	Fail    int64
}

type fileItem struct {
	FileName string `json:"filename"`
	Success  string `json:"success"`
	Fail     string `json:"fail"`
}

type filesPayload struct {
	Account  string     `json:"omracc"`
	Password string     `json:"omrpwd"`
	FileList []fileItem `json:"filelist"`
}

type streamPayload struct {
	Account  string `json:"omracc"`
	Password string `json:"omrpwd"`
	Success  string `json:"success"`
}

// Client delivers reports with linear backoff between attempts.
type Client struct {
	cfg   Config
	http  *http.Client
	wait  backoff.Linear
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 1500 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		wait:  backoff.Linear{Step: cfg.Backoff},
		sleep: backoff.Sleep,
	}
}

// ReportStream sends the final success count of the stream consumer.
func (c *Client) ReportStream(ctx context.Context, success int64) error {
	return c.post(ctx, streamPayload{
		Account:  c.cfg.Account,
		Password: c.cfg.Password,
		Success:  strconv.FormatInt(success, 10),
	})
}

// ReportFiles sends the per-file counts of a bulk load.
func (c *Client) ReportFiles(ctx context.Context, files []FileCount) error {
	p := filesPayload{Account: c.cfg.Account, Password: c.cfg.Password, FileList: make([]fileItem, 0, len(files))}
	for _, f := range files {
		p.FileList = append(p.FileList, fileItem{
			FileName: f.Name,
			Success:  strconv.FormatInt(f.Success, 10),
			Fail:     strconv.FormatInt(f.Fail, 10),
		})
	}
	return c.post(ctx, p)
}

func (c *Client) post(ctx context.Context, payload any) error {
	if c.cfg.URL == "" {
		logs.Warnf("callback url not set, skip")
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal callback payload")
	}

	for attempt := 1; ; attempt++ {
		err := c.send(ctx, body)
		if err == nil {
			return nil
		}

		logs.Warnf("callback attempt %d failed, err: %+v", attempt, err)
		if attempt >= c.cfg.MaxRetries {
			logs.Errorf("callback give up after %d attempts", attempt)
			return errors.Wrapf(exception.ErrCallbackDelivery, "after %d attempts: %s", attempt, err.Error())
		}
		if err := c.sleep(ctx, c.wait.Next(attempt)); err != nil {
			return errors.Wrapf(exception.ErrCallbackDelivery, "canceled: %s", err.Error())
		}
	}
}

func (c *Client) send(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("status %d: %s", resp.StatusCode, respBody)
	}
	logs.Infof("callback POST %s -> %d %s", c.cfg.URL, resp.StatusCode, respBody)
	return nil
}
