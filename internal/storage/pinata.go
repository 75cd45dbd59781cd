package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/kjstillabower/weather-moment-nft/internal/client"
	"github.com/kjstillabower/weather-moment-nft/internal/observability"
)

// Pinata pins content through the Pinata pinning API.
type Pinata struct {
	baseURL  string
	jwt      string
	gateway  string
	upstream *client.Upstream
}

var _ Uploader = (*Pinata)(nil)

// NewPinata returns a Pinata uploader. gateway is the host or URL used for gateway links.
func NewPinata(baseURL, jwt, gateway string, upstream *client.Upstream) *Pinata {
	return &Pinata{
		baseURL:  strings.TrimRight(baseURL, "/"),
		jwt:      jwt,
		gateway:  gateway,
		upstream: upstream,
	}
}

type pinResponse struct {
	IpfsHash string `json:"IpfsHash"`
}

type pinMetadata struct {
	Name string `json:"name"`
}

// UploadImage pins data as a file named name plus the content type's extension.
func (p *Pinata) UploadImage(ctx context.Context, data []byte, contentType, name string) (Object, error) {
	if p.jwt == "" {
		return Object{}, ErrNotConfigured
	}
	filename := name + "." + Extension(contentType)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return Object{}, fmt.Errorf("pinata: build form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return Object{}, fmt.Errorf("pinata: build form: %w", err)
	}
	meta, _ := json.Marshal(pinMetadata{Name: filename})
	if err := w.WriteField("pinataMetadata", string(meta)); err != nil {
		return Object{}, fmt.Errorf("pinata: build form: %w", err)
	}
	if err := w.Close(); err != nil {
		return Object{}, fmt.Errorf("pinata: build form: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, p.baseURL+"/pinning/pinFileToIPFS", &body)
	if err != nil {
		return Object{}, fmt.Errorf("pinata: create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+p.jwt)

	resp, err := p.upstream.Do(ctx, req)
	if err != nil {
		observability.UploadsTotal.WithLabelValues("image", "error").Inc()
		return Object{}, fmt.Errorf("pinata: pin file: %w", err)
	}
	defer resp.Body.Close()

	var out pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		observability.UploadsTotal.WithLabelValues("image", "error").Inc()
		return Object{}, fmt.Errorf("pinata: parse response: %w", err)
	}
	return p.object("image", out)
}

// UploadJSON pins doc as JSON.
func (p *Pinata) UploadJSON(ctx context.Context, doc any, name string) (Object, error) {
	if p.jwt == "" {
		return Object{}, ErrNotConfigured
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+p.jwt)
	in := struct {
		Content  any         `json:"pinataContent"`
		Metadata pinMetadata `json:"pinataMetadata"`
	}{Content: doc, Metadata: pinMetadata{Name: name}}

	var out pinResponse
	if err := p.upstream.SendJSON(ctx, http.MethodPost, p.baseURL+"/pinning/pinJSONToIPFS", header, in, &out); err != nil {
		observability.UploadsTotal.WithLabelValues("metadata", "error").Inc()
		return Object{}, fmt.Errorf("pinata: pin json: %w", err)
	}
	return p.object("metadata", out)
}

func (p *Pinata) object(kind string, out pinResponse) (Object, error) {
	if out.IpfsHash == "" {
		observability.UploadsTotal.WithLabelValues(kind, "error").Inc()
		return Object{}, fmt.Errorf("pinata: %w: response has no IpfsHash", client.ErrRejected)
	}
	observability.UploadsTotal.WithLabelValues(kind, "success").Inc()
	uri := IPFSURI(out.IpfsHash)
	return Object{CID: out.IpfsHash, URI: uri, GatewayURL: ToGatewayURL(uri, p.gateway)}, nil
}
