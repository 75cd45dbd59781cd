// Package storage pins poster images and metadata to IPFS.
package storage

import (
	"context"
	"errors"
	"strings"
)

// ErrNotConfigured is returned when no pinning credential is set.
var ErrNotConfigured = errors.New("storage: pinning credential not configured")

// Object is a pinned document.
type Object struct {
	CID        string `json:"cid"`
	URI        string `json:"uri"`
	GatewayURL string `json:"gatewayUrl"`
}

// Uploader pins raw images and JSON documents. Image names carry no
// extension; the uploader derives it from the content type.
type Uploader interface {
	UploadImage(ctx context.Context, data []byte, contentType, name string) (Object, error)
	UploadJSON(ctx context.Context, doc any, name string) (Object, error)
}

// IPFSURI returns the ipfs:// URI for a CID.
func IPFSURI(cid string) string {
	return "ipfs://" + cid
}

// ToGatewayURL rewrites an ipfs:// URI onto an HTTP gateway. Other URIs are returned unchanged.
func ToGatewayURL(uri, gateway string) string {
	cid, ok := strings.CutPrefix(uri, "ipfs://")
	if !ok {
		return uri
	}
	gateway = strings.TrimRight(gateway, "/")
	if gateway == "" {
		gateway = "https://ipfs.io"
	}
	if !strings.HasPrefix(gateway, "http://") && !strings.HasPrefix(gateway, "https://") {
		gateway = "https://" + gateway
	}
	gateway = strings.TrimSuffix(gateway, "/ipfs")
	return gateway + "/ipfs/" + cid
}

// Extension returns the file extension for an image content type.
func Extension(contentType string) string {
	switch {
	case strings.Contains(contentType, "svg"):
		return "svg"
	case strings.Contains(contentType, "jpeg"):
		return "jpg"
	case strings.Contains(contentType, "webp"):
		return "webp"
	case strings.Contains(contentType, "gif"):
		return "gif"
	}
	return "png"
}
