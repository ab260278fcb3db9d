package storage

import (
	"context"
	"net/url"
	"strconv"

	"github.com/arcus-cloud/objstore-go/connection"
)

// ObjectAttrs mirrors the object resource of the JSON API.
type ObjectAttrs struct {
	Name            string            `json:"name,omitempty"`
	Bucket          string            `json:"bucket,omitempty"`
	ContentType     string            `json:"contentType,omitempty"`
	ContentEncoding string            `json:"contentEncoding,omitempty"`
	CacheControl    string            `json:"cacheControl,omitempty"`
	Size            string            `json:"size,omitempty"`
	StorageClass    string            `json:"storageClass,omitempty"`
	MD5Hash         string            `json:"md5Hash,omitempty"`
	CRC32C          string            `json:"crc32c,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	Generation      string            `json:"generation,omitempty"`
	Metageneration  string            `json:"metageneration,omitempty"`
	Etag            string            `json:"etag,omitempty"`
	TimeCreated     string            `json:"timeCreated,omitempty"`
	Updated         string            `json:"updated,omitempty"`
}

// Conditions are object-level request preconditions. Pinning a generation
// (or supplying GenerationMatch) also makes mutations safe to retry.
type Conditions struct {
	Generation             int64
	GenerationMatch        int64
	GenerationNotMatch     int64
	MetagenerationMatch    int64
	MetagenerationNotMatch int64
}

func (c *Conditions) apply(params map[string]string) {
	if c == nil {
		return
	}
	set := func(key string, v int64) {
		if v != 0 {
			params[key] = strconv.FormatInt(v, 10)
		}
	}
	set("generation", c.Generation)
	set("ifGenerationMatch", c.GenerationMatch)
	set("ifGenerationNotMatch", c.GenerationNotMatch)
	set("ifMetagenerationMatch", c.MetagenerationMatch)
	set("ifMetagenerationNotMatch", c.MetagenerationNotMatch)
}

// Blob is a handle for one object within a bucket.
type Blob struct {
	b    *Bucket
	name string
}

// Name returns the object name.
func (o *Blob) Name() string { return o.name }

// path returns the object's API path. Object names may contain any UTF-8
// character including '/', so the name is escaped as a single segment.
func (o *Blob) path() string {
	return "/b/" + o.b.name + "/o/" + url.PathEscape(o.name)
}

// Attrs fetches the object's metadata.
func (o *Blob) Attrs(ctx context.Context) (*ObjectAttrs, error) {
	var attrs ObjectAttrs
	err := o.b.c.conn.APIRequestInto(ctx, &connection.Request{
		Method: "GET",
		Path:   o.path(),
		Retry:  connection.DefaultRetry(),
	}, &attrs)
	if err != nil {
		return nil, err
	}
	return &attrs, nil
}

// Exists reports whether the object exists. A 404 is not an error here.
func (o *Blob) Exists(ctx context.Context) (bool, error) {
	_, err := o.Attrs(ctx)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete deletes the object. The delete is retried only when conds pins a
// generation.
func (o *Blob) Delete(ctx context.Context, conds *Conditions) error {
	params := map[string]string{}
	conds.apply(params)

	_, err := o.b.c.conn.APIRequest(ctx, &connection.Request{
		Method:      "DELETE",
		Path:        o.path(),
		QueryParams: params,
		Retry:       connection.DefaultRetryIfGenerationSpecified(),
	})
	return err
}

// Patch applies a partial metadata update and returns the new attributes.
func (o *Blob) Patch(ctx context.Context, attrs *ObjectAttrs, conds *Conditions) (*ObjectAttrs, error) {
	params := map[string]string{}
	conds.apply(params)

	var updated ObjectAttrs
	err := o.b.c.conn.APIRequestInto(ctx, &connection.Request{
		Method:      "PATCH",
		Path:        o.path(),
		QueryParams: params,
		Data:        attrs,
		Retry:       connection.DefaultRetryIfMetagenerationSpecified(),
	}, &updated)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// CopyTo server-side copies the object to dst and returns the new
// object's attributes. conds applies to the destination.
func (o *Blob) CopyTo(ctx context.Context, dst *Blob, conds *Conditions) (*ObjectAttrs, error) {
	params := map[string]string{}
	conds.apply(params)

	var copied ObjectAttrs
	err := o.b.c.conn.APIRequestInto(ctx, &connection.Request{
		Method:      "POST",
		Path:        o.path() + "/copyTo" + dst.path(),
		QueryParams: params,
		Retry:       connection.DefaultRetryIfGenerationSpecified(),
	}, &copied)
	if err != nil {
		return nil, err
	}
	return &copied, nil
}

// Download fetches the object's content as raw bytes. conds may pin a
// generation for a consistent read.
func (o *Blob) Download(ctx context.Context, conds *Conditions) ([]byte, error) {
	params := map[string]string{"alt": "media"}
	conds.apply(params)

	return o.b.c.conn.APIRequestRaw(ctx, &connection.Request{
		Method:      "GET",
		Path:        o.path(),
		QueryParams: params,
		Retry:       connection.DefaultRetry(),
	})
}

// ACL returns the handle for this object's access control list.
func (o *Blob) ACL() *ACLHandle {
	return &ACLHandle{c: o.b.c, bucket: o.b.name, object: o.name}
}
