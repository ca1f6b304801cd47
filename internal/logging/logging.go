// SPDX-License-Identifier: Apache-2.0

// Package logging provides the structured logging client shared by every
// component of the gateway, field-tagged by device_id/method/session_id
// the way the corpus's network-tool services log.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Client wraps a *logrus.Logger the way the teacher's common.LoggingClient
// wraps EdgeX's logger — a single small facade every package logs through,
// constructed once at startup and passed explicitly (never a package-level
// global).
type Client struct {
	*logrus.Entry
}

// NewClient builds a Client for serviceName logging at level (one of
// logrus's level names; invalid levels fall back to "info") to either a
// named file or, when file is empty, stdout.
func NewClient(serviceName, level, file string) *Client {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	var out io.Writer = os.Stdout
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			out = f
		}
	}
	logger.SetOutput(out)

	return &Client{Entry: logrus.NewEntry(logger).WithField("service", serviceName)}
}

// With returns a derived Client with an additional structured field —
// callers chain it to tag log lines with device_id, method, session_id.
func (c *Client) With(key string, value interface{}) *Client {
	return &Client{Entry: c.Entry.WithField(key, value)}
}

// WithFields returns a derived Client carrying all of fields.
func (c *Client) WithFields(fields map[string]interface{}) *Client {
	return &Client{Entry: c.Entry.WithFields(fields)}
}
