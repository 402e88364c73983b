// Package s3url recognises virtual-hosted S3 endpoints of the
// https://<bucket>.s3-<region>.amazonaws.com form.
package s3url

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

// Only the dashed s3-<region> form is recognised. Dotted regional hosts and
// path-style URLs are deliberately left unmatched.
var hostRe = regexp.MustCompile(`^([^.]+)\.s3-([^.]+)\.amazonaws\.com$`)

// Hosts are compared in their ASCII (punycode) form, as browsers present
// them, without the STD3 character restrictions.
var hostProfile = idna.New(idna.MapForLookup(), idna.StrictDomainName(false), idna.Transitional(false))

// Location is the decomposition of a matching URL. The zero value means the
// URL did not match. An empty Key means the request targeted the bucket root.
type Location struct {
	Bucket string `json:"bucket,omitempty"`
	Region string `json:"region,omitempty"`
	Key    string `json:"key,omitempty"`
}

// Valid reports whether the location came from a matching URL.
func (l Location) Valid() bool {
	return l.Bucket != ""
}

// Parse decomposes raw into bucket, region and object key. Malformed or
// non-matching input yields the zero Location.
func Parse(raw string) Location {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}
	}
	if !strings.EqualFold(u.Scheme, "https") {
		return Location{}
	}
	m := hostRe.FindStringSubmatch(asciiHost(u.Hostname()))
	if m == nil {
		return Location{}
	}
	return Location{
		Bucket: m[1],
		Region: m[2],
		Key:    strings.TrimPrefix(u.EscapedPath(), "/"),
	}
}

func asciiHost(host string) string {
	host = strings.ToLower(host)
	if ascii, err := hostProfile.ToASCII(host); err == nil {
		return ascii
	}
	return host
}

// Match reports whether raw addresses an S3 bucket endpoint.
func Match(raw string) bool {
	return Parse(raw).Valid()
}
