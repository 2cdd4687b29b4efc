// Package pid mints handle PIDs for finalized artifacts and stamps them
// into NetCDF global attributes. A supplied pid is reused as-is;
// otherwise production environments mint through the PID service and
// test environments synthesize a fake.
package pid

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"

	"github.com/pkg/errors"

	"github.com/actris-cloudnet/cloudnet-processing/internal/cerr"
	"github.com/actris-cloudnet/cloudnet-processing/internal/config"
	"github.com/actris-cloudnet/cloudnet-processing/internal/httpx"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// NetCDFFile is the minimal surface pid needs over a local NetCDF file:
// read/write a single global string attribute. The concrete NetCDF
// reader/writer lives in the scientific-transform boundary.
type NetCDFFile interface {
	GetGlobalAttr(name string) (string, error)
	SetGlobalAttr(name, value string) error
}

// Client mints and stamps PIDs.
type Client struct {
	serviceURL   string
	isProduction bool
	cli          *httpx.Client
	portalHost   string
}

func New(cfg *config.Config, portalHost string) *Client {
	return &Client{
		serviceURL:   cfg.PidServiceURL,
		isProduction: cfg.IsProduction,
		cli:          httpx.New(cfg.NewHTTPClient(), cfg.MaxRetries),
		portalHost:   portalHost,
	}
}

// LandingURL builds https://<portal>/file/<uuid>.
func (c *Client) LandingURL(fileUUID string) string {
	return fmt.Sprintf("https://%s/file/%s", c.portalHost, fileUUID)
}

// AddPidToFile mints (or reuses) a PID and stamps it into the file,
// returning (uuid, pid, landingURL). The operation is idempotent given
// (uuid, landingURL): the PID service returns the same handle for
// repeated calls with the same payload.
func (c *Client) AddPidToFile(ctx context.Context, f NetCDFFile, existingPID string) (uuid, pidOut, landingURL string, err error) {
	uuid, err = f.GetGlobalAttr("file_uuid")
	if err != nil {
		return "", "", "", errors.Wrap(err, "read file_uuid")
	}
	landingURL = c.LandingURL(uuid)

	switch {
	case existingPID != "":
		pidOut = existingPID
	case c.isProduction:
		pidOut, err = c.mint(ctx, uuid, landingURL)
		if err != nil {
			return "", "", "", err
		}
	default:
		pidOut = fmt.Sprintf("https://www.example.pid/%s", randomString(5))
	}

	if err := f.SetGlobalAttr("pid", pidOut); err != nil {
		return "", "", "", errors.Wrap(err, "write pid attribute")
	}
	return uuid, pidOut, landingURL, nil
}

type mintRequest struct {
	Type string `json:"type"`
	UUID string `json:"uuid"`
	URL  string `json:"url"`
}

type mintResponse struct {
	PID string `json:"pid"`
}

func (c *Client) mint(ctx context.Context, uuid, landingURL string) (string, error) {
	payload := mintRequest{Type: "file", UUID: uuid, URL: landingURL}
	buf, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "encode pid request")
	}
	resp, err := c.cli.Do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, c.serviceURL+"/pid/", bytes.NewReader(buf))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		if se, ok := httpx.AsStatusError(err); ok {
			return "", cerr.NewMisc("PID service failed with status %d: %s", se.StatusCode, string(se.Body))
		}
		return "", errors.Wrap(err, "mint pid")
	}
	defer resp.Body.Close()
	var out mintResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errors.Wrap(err, "decode pid response")
	}
	return out.PID, nil
}

func randomString(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz"
	b := make([]byte, n)
	for i := range b {
		idx, _ := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		b[i] = alphabet[idx.Int64()]
	}
	return string(b)
}
