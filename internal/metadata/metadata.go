// Package metadata is the sole HTTP speaker to the data portal. Every
// other component that needs portal data routes through Client, a typed
// wrapper over a connection-pooled *http.Client with bounded-retry
// transport from package httpx.
package metadata

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/actris-cloudnet/cloudnet-processing/internal/config"
	"github.com/actris-cloudnet/cloudnet-processing/internal/httpx"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client is a typed wrapper over the data portal's JSON HTTP API.
// Mutating endpoints use HTTP basic auth with the configured
// data-submission credential.
type Client struct {
	baseURL string
	cli     *httpx.Client
	user    string
	pass    string
}

func New(cfg *config.Config) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.DataportalURL, "/"),
		cli:     httpx.New(cfg.NewHTTPClient(), cfg.MaxRetries),
		user:    cfg.DataSubmissionUsername,
		pass:    cfg.DataSubmissionPassword,
	}
}

func (c *Client) url(endpoint string, query map[string]string) string {
	u := fmt.Sprintf("%s/%s", c.baseURL, strings.TrimLeft(endpoint, "/"))
	if len(query) == 0 {
		return u
	}
	v := url.Values{}
	for k, val := range query {
		v.Set(k, val)
	}
	return u + "?" + v.Encode()
}

func (c *Client) basicAuth(req *http.Request) {
	if c.user != "" {
		req.SetBasicAuth(c.user, c.pass)
	}
}

// Get decodes the JSON response of a GET into out.
func (c *Client) Get(ctx context.Context, endpoint string, query map[string]string, out interface{}) error {
	resp, err := c.cli.Do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, c.url(endpoint, query), nil)
		if err != nil {
			return nil, err
		}
		c.basicAuth(req)
		return req, nil
	})
	if err != nil {
		return errors.Wrapf(err, "GET %s", endpoint)
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetText fetches endpoint and returns the raw response body, for the
// handful of endpoints (citation/acknowledgement text) that answer with
// plain text rather than JSON.
func (c *Client) GetText(ctx context.Context, endpoint string, query map[string]string) (string, error) {
	resp, err := c.cli.Do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, c.url(endpoint, query), nil)
		if err != nil {
			return nil, err
		}
		c.basicAuth(req)
		return req, nil
	})
	if err != nil {
		return "", errors.Wrapf(err, "GET %s", endpoint)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrapf(err, "read %s", endpoint)
	}
	return string(body), nil
}

// DownloadFile streams an absolute URL to localPath, used for the
// coefficient files a calibration record links to.
func (c *Client) DownloadFile(ctx context.Context, url, localPath string) error {
	resp, err := c.cli.Do(ctx, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, url, nil)
	})
	if err != nil {
		return errors.Wrapf(err, "GET %s", url)
	}
	defer resp.Body.Close()
	f, err := os.Create(localPath)
	if err != nil {
		return errors.Wrapf(err, "create %s", localPath)
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return errors.Wrapf(err, "download %s", url)
	}
	return nil
}

func (c *Client) body(method, endpoint string, payload interface{}) (*http.Response, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "encode payload")
	}
	return c.cli.Do(context.Background(), func() (*http.Request, error) {
		req, err := http.NewRequest(method, c.url(endpoint, nil), bytes.NewReader(buf))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		c.basicAuth(req)
		return req, nil
	})
}

// Post sends a JSON POST and decodes the response into out, if non-nil.
func (c *Client) Post(endpoint string, payload, out interface{}) error {
	resp, err := c.body(http.MethodPost, endpoint, payload)
	if err != nil {
		return errors.Wrapf(err, "POST %s", endpoint)
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Put sends a JSON PUT to endpoint/resource.
func (c *Client) Put(endpoint, resource string, payload interface{}) error {
	resp, err := c.body(http.MethodPut, fmt.Sprintf("%s/%s", endpoint, resource), payload)
	if err != nil {
		return errors.Wrapf(err, "PUT %s/%s", endpoint, resource)
	}
	resp.Body.Close()
	return nil
}

// Delete issues a DELETE with a query string.
func (c *Client) Delete(ctx context.Context, endpoint string, query map[string]string) error {
	resp, err := c.cli.Do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodDelete, c.url(endpoint, query), nil)
		if err != nil {
			return nil, err
		}
		c.basicAuth(req)
		return req, nil
	})
	if err != nil {
		return errors.Wrapf(err, "DELETE %s", endpoint)
	}
	resp.Body.Close()
	return nil
}

// VisualizationDimensions mirrors the wire object PUT /visualizations
// expects per image.
type VisualizationDimensions struct {
	Width        int `json:"width"`
	Height       int `json:"height"`
	MarginTop    int `json:"marginTop"`
	MarginRight  int `json:"marginRight"`
	MarginBottom int `json:"marginBottom"`
	MarginLeft   int `json:"marginLeft"`
}

type Visualization struct {
	S3Key      string                   `json:"-"`
	VariableID string                   `json:"variableId"`
	Dimensions *VisualizationDimensions `json:"dimensions,omitempty"`
}

// PutImages PUTs one visualization record per rendered image, each
// referencing the source product's uuid.
func (c *Client) PutImages(visualizations []Visualization, productUUID string) error {
	for _, v := range visualizations {
		payload := map[string]interface{}{
			"sourceFileId": productUUID,
			"variableId":   v.VariableID,
			"dimensions":   v.Dimensions,
		}
		if err := c.Put("visualizations", v.S3Key, payload); err != nil {
			return err
		}
	}
	return nil
}

// UpdateDvasInfo writes the dvasId and dvasUpdatedAt timestamp back onto
// a ProductFile record after a successful federation.
func (c *Client) UpdateDvasInfo(uuid, tsISO8601 string, dvasID int) error {
	return c.Post("api/files", map[string]interface{}{
		"uuid":          uuid,
		"dvasId":        dvasID,
		"dvasUpdatedAt": tsISO8601,
	}, nil)
}

// Base64MD5 formats the given MD5 digest as the base64 string the
// Content-MD5 header and MetadataClient payloads expect.
func Base64MD5(sum []byte) string {
	return base64.StdEncoding.EncodeToString(sum)
}
