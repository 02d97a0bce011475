// Package export writes the request stream as JMeter style CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"

	"iiifload/internal/outcome"
)

// Header is the first CSV row.
var Header = []string{
	"timeStamp", "elapsed", "label", "responseCode", "responseMessage",
	"threadName", "success", "failureMessage", "bytes", "URL", "task", "outcome",
}

// CSV is an outcome observer that writes one row per request.
type CSV struct {
	mu  sync.Mutex
	w   *csv.Writer
	err error

	closer io.Closer
}

// NewCSV writes the header to w.
func NewCSV(w io.Writer) (*CSV, error) {
	c := &CSV{w: csv.NewWriter(w)}
	if err := c.w.Write(Header); err != nil {
		return nil, fmt.Errorf("export: write header: %w", err)
	}
	return c, nil
}

// Create truncates path and writes the header.
func Create(path string) (*CSV, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	c, err := NewCSV(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	c.closer = f
	return c, nil
}

func (c *CSV) Observe(ev outcome.Event, o outcome.Outcome) {
	errMsg := ""
	if ev.Err != nil {
		errMsg = ev.Err.Error()
	}

	record := []string{
		strconv.FormatInt(ev.Start.UnixMilli(), 10),
		strconv.FormatInt(ev.Elapsed.Milliseconds(), 10),
		ev.Name,
		strconv.Itoa(ev.Status),
		http.StatusText(ev.Status),
		ev.Client,
		strconv.FormatBool(o != outcome.Failure),
		errMsg,
		strconv.FormatInt(ev.Bytes, 10),
		ev.URL,
		ev.Task,
		o.String(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return
	}
	c.err = c.w.Write(record)
}

// Flush writes buffered rows and returns the first write error.
func (c *CSV) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w.Flush()
	if c.err != nil {
		return fmt.Errorf("export: write csv: %w", c.err)
	}
	if err := c.w.Error(); err != nil {
		return fmt.Errorf("export: write csv: %w", err)
	}
	return nil
}

// Close flushes and closes the file opened by Create.
func (c *CSV) Close() error {
	err := c.Flush()
	if c.closer != nil {
		if cerr := c.closer.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("export: %w", cerr)
		}
	}
	return err
}
