package storage

import (
	"context"
	"net/url"

	"github.com/arcus-cloud/objstore-go/connection"
)

// ACLRole is the access level an ACL entry grants.
type ACLRole string

const (
	RoleOwner  ACLRole = "OWNER"
	RoleWriter ACLRole = "WRITER"
	RoleReader ACLRole = "READER"
)

// ACLRule is one entry of an access control list. Entity takes the API's
// forms: "user-<email>", "group-<id>", "domain-<domain>", "allUsers",
// "allAuthenticatedUsers".
type ACLRule struct {
	Entity string  `json:"entity,omitempty"`
	Role   ACLRole `json:"role,omitempty"`
	Email  string  `json:"email,omitempty"`
	Domain string  `json:"domain,omitempty"`
	Etag   string  `json:"etag,omitempty"`
}

// ACLHandle addresses one of the three ACL collections: a bucket's ACL, a
// bucket's default object ACL, or an object's ACL.
type ACLHandle struct {
	c         *Client
	bucket    string
	object    string
	isDefault bool
}

func (a *ACLHandle) path() string {
	switch {
	case a.object != "":
		return "/b/" + a.bucket + "/o/" + url.PathEscape(a.object) + "/acl"
	case a.isDefault:
		return "/b/" + a.bucket + "/defaultObjectAcl"
	default:
		return "/b/" + a.bucket + "/acl"
	}
}

// List fetches all entries of the ACL.
func (a *ACLHandle) List(ctx context.Context) ([]ACLRule, error) {
	var page struct {
		Items []ACLRule `json:"items"`
	}
	err := a.c.conn.APIRequestInto(ctx, &connection.Request{
		Method: "GET",
		Path:   a.path(),
		Retry:  connection.DefaultRetry(),
	}, &page)
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

// Set grants role to entity, updating the entry in place if it exists.
// The update is retried only when the rule carries an etag, which makes
// the write conditional server-side.
func (a *ACLHandle) Set(ctx context.Context, rule ACLRule) error {
	body := map[string]any{"role": string(rule.Role)}
	if rule.Etag != "" {
		body["etag"] = rule.Etag
	}
	_, err := a.c.conn.APIRequest(ctx, &connection.Request{
		Method: "PUT",
		Path:   a.path() + "/" + url.PathEscape(rule.Entity),
		Data:   body,
		Retry:  connection.DefaultRetryIfEtagInJSON(),
	})
	return err
}

// Delete removes the entity's entry from the ACL.
func (a *ACLHandle) Delete(ctx context.Context, entity string) error {
	_, err := a.c.conn.APIRequest(ctx, &connection.Request{
		Method: "DELETE",
		Path:   a.path() + "/" + url.PathEscape(entity),
	})
	return err
}
