// Package storage is a thin resource layer over the connection package.
// It models buckets, objects, ACLs and HMAC keys as small handle types
// whose methods forward parameters into connection requests; all dispatch,
// retry and classification behavior lives in the connection package.
//
// Authentication is out of scope: supply an *http.Client whose transport
// injects credentials via connection.WithHTTPClient.
package storage
