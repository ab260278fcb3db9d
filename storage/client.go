package storage

import (
	"context"
	"errors"
	"strconv"

	"github.com/arcus-cloud/objstore-go/connection"
)

// Client is the entry point of the resource layer. It owns one Connection
// shared by every handle it produces and is safe for concurrent use.
type Client struct {
	conn    *connection.Connection
	project string
}

// NewClient creates a Client for the given project. Options are forwarded
// to connection.New unchanged.
func NewClient(project string, opts ...connection.Option) *Client {
	return &Client{
		conn:    connection.New(opts...),
		project: project,
	}
}

// Project returns the project id the client was created with.
func (c *Client) Project() string { return c.project }

// Connection exposes the underlying connection for callers that need to
// issue requests the resource layer does not model.
func (c *Client) Connection() *connection.Connection { return c.conn }

// Close releases the underlying connection. Ownership rules of
// connection.Close apply: a caller-supplied HTTP client is left alone.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Bucket returns a handle for the named bucket. No RPC is issued.
func (c *Client) Bucket(name string) *Bucket {
	return &Bucket{c: c, name: name}
}

// BucketPage is one page of a bucket listing.
type BucketPage struct {
	Buckets       []*BucketAttrs `json:"items"`
	NextPageToken string         `json:"nextPageToken"`
}

// BucketQuery narrows and pages a bucket listing.
type BucketQuery struct {
	Prefix     string
	PageToken  string
	MaxResults int
}

// Buckets lists one page of the project's buckets. Pass the returned
// NextPageToken back in via BucketQuery.PageToken to continue.
func (c *Client) Buckets(ctx context.Context, q *BucketQuery) (*BucketPage, error) {
	params := map[string]string{"project": c.project}
	if q != nil {
		if q.Prefix != "" {
			params["prefix"] = q.Prefix
		}
		if q.PageToken != "" {
			params["pageToken"] = q.PageToken
		}
		if q.MaxResults > 0 {
			params["maxResults"] = strconv.Itoa(q.MaxResults)
		}
	}

	var page BucketPage
	err := c.conn.APIRequestInto(ctx, &connection.Request{
		Method:      "GET",
		Path:        "/b",
		QueryParams: params,
		Retry:       connection.DefaultRetry(),
	}, &page)
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// isNotFound reports whether err is a 404 from the API, which the Exists
// methods translate into (false, nil).
func isNotFound(err error) bool {
	var apiErr *connection.APIError
	return errors.As(err, &apiErr) && apiErr.Code == 404
}
