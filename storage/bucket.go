package storage

import (
	"context"
	"strconv"

	"github.com/arcus-cloud/objstore-go/connection"
)

// BucketAttrs mirrors the bucket resource of the JSON API. Zero-valued
// fields are omitted when the struct is sent as a request body; timestamps
// stay RFC 3339 strings because they are output-only.
type BucketAttrs struct {
	Name           string            `json:"name,omitempty"`
	Location       string            `json:"location,omitempty"`
	StorageClass   string            `json:"storageClass,omitempty"`
	Labels         map[string]string `json:"labels,omitempty"`
	Metageneration string            `json:"metageneration,omitempty"`
	Etag           string            `json:"etag,omitempty"`
	TimeCreated    string            `json:"timeCreated,omitempty"`
	Updated        string            `json:"updated,omitempty"`
}

// BucketConditions are bucket-level request preconditions. They double as
// the idempotency signal the conditional retry policies look for.
type BucketConditions struct {
	MetagenerationMatch    int64
	MetagenerationNotMatch int64
}

func (c *BucketConditions) apply(params map[string]string) {
	if c == nil {
		return
	}
	if c.MetagenerationMatch != 0 {
		params["ifMetagenerationMatch"] = strconv.FormatInt(c.MetagenerationMatch, 10)
	}
	if c.MetagenerationNotMatch != 0 {
		params["ifMetagenerationNotMatch"] = strconv.FormatInt(c.MetagenerationNotMatch, 10)
	}
}

// Bucket is a handle for one bucket. Handles are cheap and carry no
// server state.
type Bucket struct {
	c    *Client
	name string
}

// Name returns the bucket name.
func (b *Bucket) Name() string { return b.name }

// Object returns a handle for the named object in this bucket.
func (b *Bucket) Object(name string) *Blob {
	return &Blob{b: b, name: name}
}

// ACL returns the handle for this bucket's access control list.
func (b *Bucket) ACL() *ACLHandle {
	return &ACLHandle{c: b.c, bucket: b.name}
}

// DefaultObjectACL returns the handle for the bucket's default object ACL,
// applied to objects created without an explicit ACL.
func (b *Bucket) DefaultObjectACL() *ACLHandle {
	return &ACLHandle{c: b.c, bucket: b.name, isDefault: true}
}

// Attrs fetches the bucket's metadata.
func (b *Bucket) Attrs(ctx context.Context) (*BucketAttrs, error) {
	var attrs BucketAttrs
	err := b.c.conn.APIRequestInto(ctx, &connection.Request{
		Method: "GET",
		Path:   "/b/" + b.name,
		Retry:  connection.DefaultRetry(),
	}, &attrs)
	if err != nil {
		return nil, err
	}
	return &attrs, nil
}

// Exists reports whether the bucket exists. A 404 is not an error here.
func (b *Bucket) Exists(ctx context.Context) (bool, error) {
	_, err := b.Attrs(ctx)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Create creates the bucket in the client's project. attrs may be nil for
// server-side defaults; attrs.Name is overridden with the handle's name.
func (b *Bucket) Create(ctx context.Context, attrs *BucketAttrs) (*BucketAttrs, error) {
	body := BucketAttrs{}
	if attrs != nil {
		body = *attrs
	}
	body.Name = b.name

	var created BucketAttrs
	err := b.c.conn.APIRequestInto(ctx, &connection.Request{
		Method:      "POST",
		Path:        "/b",
		QueryParams: map[string]string{"project": b.c.project},
		Data:        &body,
		Retry:       connection.DefaultRetry(),
	}, &created)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// Delete deletes the bucket, which must be empty. The delete is retried
// only when conds pins a metageneration.
func (b *Bucket) Delete(ctx context.Context, conds *BucketConditions) error {
	params := map[string]string{}
	conds.apply(params)

	_, err := b.c.conn.APIRequest(ctx, &connection.Request{
		Method:      "DELETE",
		Path:        "/b/" + b.name,
		QueryParams: params,
		Retry:       connection.DefaultRetryIfMetagenerationSpecified(),
	})
	return err
}

// Patch applies a partial metadata update and returns the new attributes.
func (b *Bucket) Patch(ctx context.Context, attrs *BucketAttrs, conds *BucketConditions) (*BucketAttrs, error) {
	params := map[string]string{}
	conds.apply(params)

	var updated BucketAttrs
	err := b.c.conn.APIRequestInto(ctx, &connection.Request{
		Method:      "PATCH",
		Path:        "/b/" + b.name,
		QueryParams: params,
		Data:        attrs,
		Retry:       connection.DefaultRetryIfMetagenerationSpecified(),
	}, &updated)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// ObjectQuery narrows and pages an object listing.
type ObjectQuery struct {
	Prefix     string
	Delimiter  string
	Versions   bool
	PageToken  string
	MaxResults int
}

// ObjectPage is one page of an object listing. Prefixes holds the
// delimiter-collapsed pseudo-directories when a delimiter was given.
type ObjectPage struct {
	Objects       []*ObjectAttrs `json:"items"`
	Prefixes      []string       `json:"prefixes"`
	NextPageToken string         `json:"nextPageToken"`
}

// Objects lists one page of the bucket's objects.
func (b *Bucket) Objects(ctx context.Context, q *ObjectQuery) (*ObjectPage, error) {
	params := map[string]string{}
	if q != nil {
		if q.Prefix != "" {
			params["prefix"] = q.Prefix
		}
		if q.Delimiter != "" {
			params["delimiter"] = q.Delimiter
		}
		if q.Versions {
			params["versions"] = "true"
		}
		if q.PageToken != "" {
			params["pageToken"] = q.PageToken
		}
		if q.MaxResults > 0 {
			params["maxResults"] = strconv.Itoa(q.MaxResults)
		}
	}

	var page ObjectPage
	err := b.c.conn.APIRequestInto(ctx, &connection.Request{
		Method:      "GET",
		Path:        "/b/" + b.name + "/o",
		QueryParams: params,
		Retry:       connection.DefaultRetry(),
	}, &page)
	if err != nil {
		return nil, err
	}
	return &page, nil
}
