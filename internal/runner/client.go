package runner

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"time"

	"iiifload/internal/iiif"
	"iiifload/internal/outcome"
)

// DescriptorName is the request name used for every info.json fetch.
const DescriptorName = "info.json"

// client is one simulated user. It is only used from its own goroutine.
type client struct {
	id   string
	rng  *rand.Rand
	task string
	r    *Runner
}

// get issues an image request and reports whether it did not fail.
func (c *client) get(ctx context.Context, name, url string) bool {
	return c.do(ctx, name, url, nil)
}

// fetchInfo downloads and parses the descriptor at entry. A descriptor that
// cannot be parsed is recorded as a failed request.
func (c *client) fetchInfo(ctx context.Context, entry string) (*iiif.Info, bool) {
	var info *iiif.Info
	ok := c.do(ctx, DescriptorName, entry, func(body []byte) error {
		var err error
		info, err = iiif.ParseInfo(body)
		return err
	})
	if !ok || info == nil {
		return nil, false
	}
	return info, true
}

// do performs one GET and hands the outcome to the recorder. check, when
// set, receives the body of a successful response. Requests cut short by
// cancellation are dropped without being recorded.
func (c *client) do(ctx context.Context, name, url string, check func([]byte) error) bool {
	if ctx.Err() != nil {
		return false
	}

	ev := outcome.Event{
		Task:   c.task,
		Name:   name,
		Method: http.MethodGet,
		URL:    url,
		Client: c.id,
		Start:  time.Now(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		ev.Err = err
		return c.r.record(ev) != outcome.Failure
	}

	c.r.requestStarted()
	resp, err := c.r.http.Do(req)
	if err == nil {
		ev.Status = resp.StatusCode
		err = readBody(resp, &ev, check)
	}
	ev.Elapsed = time.Since(ev.Start)
	c.r.requestDone()

	if err != nil && cancelled(ctx, err) {
		return false
	}
	ev.Err = err
	return c.r.record(ev) != outcome.Failure
}

func readBody(resp *http.Response, ev *outcome.Event, check func([]byte) error) error {
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		n, _ := io.Copy(io.Discard, resp.Body)
		ev.Bytes = n
		return &outcome.StatusError{Code: resp.StatusCode}
	}

	if check == nil {
		n, err := io.Copy(io.Discard, resp.Body)
		ev.Bytes = n
		return err
	}

	body, err := io.ReadAll(resp.Body)
	ev.Bytes = int64(len(body))
	if err != nil {
		return err
	}
	return check(body)
}

// cancelled reports whether err comes from the run being stopped rather than
// from the server.
func cancelled(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	var se *outcome.StatusError
	return !errors.As(err, &se) && !errors.Is(err, iiif.ErrInvalidInfo)
}
