package storage

import (
	"context"
	"strconv"

	"github.com/arcus-cloud/objstore-go/connection"
)

// HMACState is the lifecycle state of an HMAC key.
type HMACState string

const (
	HMACActive   HMACState = "ACTIVE"
	HMACInactive HMACState = "INACTIVE"
	HMACDeleted  HMACState = "DELETED"
)

// HMACKey is HMAC key metadata. Secret is populated only by CreateHMACKey;
// the API never returns it again.
type HMACKey struct {
	AccessID            string    `json:"accessId,omitempty"`
	ProjectID           string    `json:"projectId,omitempty"`
	ServiceAccountEmail string    `json:"serviceAccountEmail,omitempty"`
	State               HMACState `json:"state,omitempty"`
	Etag                string    `json:"etag,omitempty"`
	TimeCreated         string    `json:"timeCreated,omitempty"`
	Updated             string    `json:"updated,omitempty"`
	Secret              string    `json:"secret,omitempty"`
}

func (c *Client) hmacPath(accessID string) string {
	p := "/projects/" + c.project + "/hmacKeys"
	if accessID != "" {
		p += "/" + accessID
	}
	return p
}

// CreateHMACKey provisions a new HMAC key for the service account. This
// is the only call that returns the key's secret; store it immediately.
func (c *Client) CreateHMACKey(ctx context.Context, serviceAccountEmail string) (*HMACKey, error) {
	var wrapper struct {
		Metadata HMACKey `json:"metadata"`
		Secret   string  `json:"secret"`
	}
	err := c.conn.APIRequestInto(ctx, &connection.Request{
		Method:      "POST",
		Path:        c.hmacPath(""),
		QueryParams: map[string]string{"serviceAccountEmail": serviceAccountEmail},
	}, &wrapper)
	if err != nil {
		return nil, err
	}
	key := wrapper.Metadata
	key.Secret = wrapper.Secret
	return &key, nil
}

// GetHMACKey fetches one key's metadata by access id.
func (c *Client) GetHMACKey(ctx context.Context, accessID string) (*HMACKey, error) {
	var key HMACKey
	err := c.conn.APIRequestInto(ctx, &connection.Request{
		Method: "GET",
		Path:   c.hmacPath(accessID),
		Retry:  connection.DefaultRetry(),
	}, &key)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// HMACKeyPage is one page of an HMAC key listing.
type HMACKeyPage struct {
	Keys          []*HMACKey `json:"items"`
	NextPageToken string     `json:"nextPageToken"`
}

// HMACKeyQuery narrows and pages an HMAC key listing.
type HMACKeyQuery struct {
	ServiceAccountEmail string
	ShowDeletedKeys     bool
	PageToken           string
	MaxResults          int
}

// HMACKeys lists one page of the project's HMAC keys.
func (c *Client) HMACKeys(ctx context.Context, q *HMACKeyQuery) (*HMACKeyPage, error) {
	params := map[string]string{}
	if q != nil {
		if q.ServiceAccountEmail != "" {
			params["serviceAccountEmail"] = q.ServiceAccountEmail
		}
		if q.ShowDeletedKeys {
			params["showDeletedKeys"] = "true"
		}
		if q.PageToken != "" {
			params["pageToken"] = q.PageToken
		}
		if q.MaxResults > 0 {
			params["maxResults"] = strconv.Itoa(q.MaxResults)
		}
	}

	var page HMACKeyPage
	err := c.conn.APIRequestInto(ctx, &connection.Request{
		Method:      "GET",
		Path:        c.hmacPath(""),
		QueryParams: params,
		Retry:       connection.DefaultRetry(),
	}, &page)
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// UpdateHMACKey switches a key between ACTIVE and INACTIVE. Supplying the
// etag makes the update conditional and therefore retryable.
func (c *Client) UpdateHMACKey(ctx context.Context, accessID string, state HMACState, etag string) (*HMACKey, error) {
	body := map[string]any{"state": string(state)}
	if etag != "" {
		body["etag"] = etag
	}

	var key HMACKey
	err := c.conn.APIRequestInto(ctx, &connection.Request{
		Method: "PUT",
		Path:   c.hmacPath(accessID),
		Data:   body,
		Retry:  connection.DefaultRetryIfEtagInJSON(),
	}, &key)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// DeleteHMACKey deletes a key, which must already be INACTIVE.
func (c *Client) DeleteHMACKey(ctx context.Context, accessID string) error {
	_, err := c.conn.APIRequest(ctx, &connection.Request{
		Method: "DELETE",
		Path:   c.hmacPath(accessID),
		Retry:  connection.DefaultRetry(),
	})
	return err
}
