package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"signalcore/internal/crypto"
	"signalcore/internal/domain"
	"signalcore/internal/protocol/prekey"
	"signalcore/internal/protocol/sealedsender"
)

// Client talks to a key directory over HTTP.
type Client struct {
	Base string
	HTTP *http.Client
}

// NewClient returns a client for the directory at base. A nil httpClient
// uses http.DefaultClient.
func NewClient(base string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{Base: base, HTTP: httpClient}
}

var _ domain.KeyDirectory = (*Client)(nil)

func (c *Client) PublishBundle(ctx context.Context, b domain.PublishedBundle) error {
	return c.do(ctx, http.MethodPut, "/v1/keys", b, nil)
}

func (c *Client) FetchBundle(ctx context.Context, username domain.Username, deviceID uint32) (*prekey.Bundle, error) {
	var out domain.FetchedBundle
	path := "/v1/keys/" + url.PathEscape(username.String()) + "/" + strconv.FormatUint(uint64(deviceID), 10)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return prekey.DeserializeBundle(out.Bundle)
}

func (c *Client) TrustRoot(ctx context.Context) (crypto.PublicKey, error) {
	var out domain.TrustRoot
	if err := c.do(ctx, http.MethodGet, "/v1/trust-root", nil, &out); err != nil {
		return crypto.PublicKey{}, err
	}
	return crypto.DeserializePublicKey(out.PublicKey)
}

func (c *Client) IssueSenderCertificate(ctx context.Context, req domain.CertificateRequest) (*sealedsender.SenderCertificate, error) {
	var out domain.CertificateResponse
	if err := c.do(ctx, http.MethodPost, "/v1/certificate", req, &out); err != nil {
		return nil, err
	}
	return sealedsender.DeserializeSenderCertificate(out.Certificate)
}

func (c *Client) LookupAccount(ctx context.Context, uuid string) (domain.Username, error) {
	var out domain.AccountLookup
	if err := c.do(ctx, http.MethodGet, "/v1/accounts/"+url.PathEscape(uuid), nil, &out); err != nil {
		return "", err
	}
	return out.Username, nil
}

// do sends in as JSON (when non-nil) and decodes a 2xx response into out.
// Non-2xx statuses become errors naming the method, URL and server message;
// 404 wraps ErrNotFound.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf := new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return err
		}
		body = buf
	}
	req, err := http.NewRequestWithContext(ctx, method, c.Base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var e errorBody
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e)
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("keydir %s %s: %s: %w", method, req.URL, e.Error, ErrNotFound)
		}
		return fmt.Errorf("keydir %s %s: %s: %s", method, req.URL, resp.Status, e.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
