package connection

import (
	"fmt"
	"net/url"
	"strings"
)

// The JSON API addresses every resource underneath a versioned prefix:
// {endpoint}/storage/{version}{path}.
const apiURLTemplate = "%s/storage/%s%s"

// BuildAPIURL constructs the fully-qualified URL for a request, applying
// any per-call endpoint or version overrides.
//
// Query parameters are percent-encoded with one key=value pair per entry,
// so repeated keys survive encoding. Unless the caller already set it, a
// prettyPrint=false parameter is appended to ask the server for compact
// JSON.
func (c *Connection) BuildAPIURL(req *Request) string {
	base := c.baseURL
	if req.APIBaseURL != "" {
		base = req.APIBaseURL
	}
	version := c.apiVersion
	if req.APIVersion != "" {
		version = req.APIVersion
	}
	return buildAPIURL(base, version, req.Path, req.query())
}

func buildAPIURL(base, version, path string, pairs []Param) string {
	values := make(url.Values, len(pairs)+1)
	for _, p := range pairs {
		values.Add(p.Key, p.Value)
	}
	if !values.Has("prettyPrint") {
		values.Set("prettyPrint", "false")
	}

	u := fmt.Sprintf(apiURLTemplate, strings.TrimSuffix(base, "/"), version, path)
	return u + "?" + values.Encode()
}
