package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// PollSession is the body returned by <base>/poll/open.
type PollSession struct {
	SID string `json:"sid"`
}

type pollConn struct {
	client *http.Client
	base   string
	query  url.Values

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once

	wmu   sync.Mutex // one send in flight keeps server arrival in write order
	rmu   sync.Mutex
	inbox []Envelope
}

// DialPolling opens an HTTP long-polling session. Writes are POSTed to
// <base>/poll/send; reads hold a GET on <base>/poll/recv until the server has
// something to deliver.
func DialPolling(ctx context.Context, cfg Config) (Conn, error) {
	target, err := endpoint(cfg.URL, TransportPolling, cfg.Query)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	query := u.Query()
	u.RawQuery = ""
	base := u.String()

	client := &http.Client{}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/open?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poll open: %s", resp.Status)
	}
	var s PollSession
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil || s.SID == "" {
		return nil, fmt.Errorf("poll open: invalid session response")
	}

	query.Set("sid", s.SID)
	cctx, cancel := context.WithCancel(context.Background())
	return &pollConn{client: client, base: base, query: query, ctx: cctx, cancel: cancel}, nil
}

func (c *pollConn) url(path string) string {
	return c.base + path + "?" + c.query.Encode()
}

func (c *pollConn) WriteEnvelope(env Envelope) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.ctx, writeWait)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/send"), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("poll send: %s", resp.Status)
	}
	return nil
}

// ReadEnvelope returns buffered envelopes first and long-polls when empty.
func (c *pollConn) ReadEnvelope() (Envelope, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()
	for len(c.inbox) == 0 {
		batch, err := c.poll()
		if err != nil {
			return Envelope{}, err
		}
		c.inbox = batch
	}
	env := c.inbox[0]
	c.inbox = c.inbox[1:]
	return env, nil
}

func (c *pollConn) poll() ([]Envelope, error) {
	req, err := http.NewRequestWithContext(c.ctx, http.MethodGet, c.url("/recv"), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		if c.ctx.Err() != nil {
			return nil, ErrClosed
		}
		return nil, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusGone:
		return nil, errors.New("poll session expired")
	default:
		return nil, fmt.Errorf("poll recv: %s", resp.Status)
	}
	var batch []Envelope
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return nil, fmt.Errorf("poll recv: %w", err)
	}
	return batch, nil
}

func (c *pollConn) Close() error {
	c.once.Do(func() {
		c.cancel()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/close"), nil)
		if err != nil {
			return
		}
		if resp, err := c.client.Do(req); err == nil {
			resp.Body.Close()
		}
	})
	return nil
}
