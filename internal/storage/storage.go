// Package storage is the content-addressed blob I/O layer against the
// S3-compatible object store: uploads carry Content-MD5, downloads
// verify size and checksum while streaming, and bucket choice is a
// pure function of what the blob is (volatile product, stable product,
// raw upload, plot image).
package storage

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/actris-cloudnet/cloudnet-processing/internal/config"
	"github.com/actris-cloudnet/cloudnet-processing/internal/metadata"
	"github.com/actris-cloudnet/cloudnet-processing/internal/model"
)

const (
	bucketProductStable   = "cloudnet-product"
	bucketProductVolatile = "cloudnet-product-volatile"
	bucketUpload          = "cloudnet-upload"
	bucketImg             = "cloudnet-img"
)

// ProductBucket is a pure function of volatility.
func ProductBucket(volatile bool) string {
	if volatile {
		return bucketProductVolatile
	}
	return bucketProductStable
}

// Client streams bytes to/from the S3-compatible store, content-addressed
// by checksum.
type Client struct {
	s3  *s3.S3
	cfg *config.Config
}

func New(cfg *config.Config) (*Client, error) {
	sess, err := session.NewSession(&aws.Config{
		Endpoint:         aws.String(cfg.StorageServiceURL),
		Region:           aws.String("us-east-1"),
		Credentials:      credentials.NewStaticCredentials(cfg.StorageServiceUser, cfg.StorageServicePassword, ""),
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create storage session")
	}
	return &Client{s3: s3.New(sess), cfg: cfg}, nil
}

// UploadResult is what the server echoes back from a PUT.
type UploadResult struct {
	Version string
	Size    int64
}

// UploadProduct streams localPath to {bucket}/{s3key}, setting
// Content-MD5 to the base64 MD5 of the file body so the server can
// reject corrupted uploads.
func (c *Client) UploadProduct(localPath, s3key string, volatile bool) (UploadResult, error) {
	return c.upload(ProductBucket(volatile), localPath, s3key)
}

// UploadImage uploads a rendered plot to the image bucket.
func (c *Client) UploadImage(localPath, s3key string) error {
	_, err := c.upload(bucketImg, localPath, s3key)
	return err
}

func (c *Client) upload(bucket, localPath, s3key string) (UploadResult, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return UploadResult{}, errors.Wrapf(err, "open %s", localPath)
	}
	defer f.Close()

	sum, size, err := md5File(f)
	if err != nil {
		return UploadResult{}, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return UploadResult{}, err
	}

	out, err := c.s3.PutObject(&s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(s3key),
		Body:          f,
		ContentMD5:    aws.String(metadata.Base64MD5(sum)),
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return UploadResult{}, errors.Wrapf(err, "PUT %s/%s", bucket, s3key)
	}
	res := UploadResult{Size: size}
	if out.VersionId != nil {
		res.Version = *out.VersionId
	}
	return res, nil
}

func md5File(f *os.File) ([]byte, int64, error) {
	h := md5.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return nil, 0, errors.Wrap(err, "hash file")
	}
	return h.Sum(nil), size, nil
}

// DownloadProduct streams an existing product to dir, verifying its
// SHA-256 and byte count against metadata. A mismatch is logged but
// does not abort: the backend's checksum can lag briefly for
// just-uploaded files. ChecksumTolerant in config keeps that window
// configurable.
func (c *Client) DownloadProduct(ctx context.Context, meta *model.ProductFile, dir string) (string, error) {
	key := meta.Filename
	if meta.Legacy {
		key = "legacy/" + meta.Filename
	}
	bucket := ProductBucket(meta.Volatile)
	localPath := filepath.Join(dir, meta.Filename)
	if err := c.download(ctx, bucket, key, localPath, meta.Size, meta.Checksum, sha256.New()); err != nil {
		return "", err
	}
	return localPath, nil
}

// DownloadRawData downloads raw instrument or model files into dir,
// verifying MD5. Returns local paths and the accumulated source uuids;
// instrument PIDs are returned too so callers can assert all rows
// share one instrument.
func (c *Client) DownloadRawData(ctx context.Context, rows []*model.RawFile, dir string) ([]string, []uuid.UUID, []string, error) {
	paths := make([]string, len(rows))
	uuids := make([]uuid.UUID, len(rows))
	var pids []string
	pidSet := map[string]struct{}{}
	for i, row := range rows {
		localPath := filepath.Join(dir, row.Filename)
		if err := c.download(ctx, bucketUpload, row.S3Key, localPath, row.Size, row.Checksum, md5.New()); err != nil {
			return nil, nil, nil, err
		}
		paths[i] = localPath
		uuids[i] = row.UUID
		if row.InstrumentPID != "" {
			if _, seen := pidSet[row.InstrumentPID]; !seen {
				pidSet[row.InstrumentPID] = struct{}{}
				pids = append(pids, row.InstrumentPID)
			}
		}
	}
	return paths, uuids, pids, nil
}

// DownloadProducts downloads several existing products in parallel;
// the first failure cancels the rest.
func (c *Client) DownloadProducts(ctx context.Context, metas []*model.ProductFile, dir string) ([]string, error) {
	paths := make([]string, len(metas))
	g, ctx := errgroup.WithContext(ctx)
	for i, m := range metas {
		i, m := i, m
		g.Go(func() error {
			p, err := c.DownloadProduct(ctx, m, dir)
			if err != nil {
				return err
			}
			paths[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

// DeleteVolatileProduct removes a volatile artifact. Only called when a
// freeze has just re-uploaded the file under the stable bucket.
func (c *Client) DeleteVolatileProduct(s3key string) error {
	_, err := c.s3.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(bucketProductVolatile),
		Key:    aws.String(s3key),
	})
	if err != nil {
		return errors.Wrapf(err, "DELETE %s/%s", bucketProductVolatile, s3key)
	}
	return nil
}

type hashWriter interface {
	io.Writer
	Sum([]byte) []byte
}

func (c *Client) download(ctx context.Context, bucket, key, localPath string, size int64, checksum string, h hashWriter) error {
	out, err := c.s3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return errors.Wrapf(err, "GET %s/%s", bucket, key)
	}
	defer out.Body.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return errors.Wrapf(err, "create %s", localPath)
	}
	defer f.Close()

	w := io.MultiWriter(f, h)
	n, err := io.Copy(w, out.Body)
	if err != nil {
		return errors.Wrapf(err, "download %s/%s", bucket, key)
	}

	return verifyDownload(c.cfg.ChecksumTolerant, bucket, key, size, n, checksum, hex.EncodeToString(h.Sum(nil)))
}

// verifyDownload checks a download's byte count and checksum against
// the metadata record. With tolerant set, mismatches are logged and
// accepted: the backend's checksum can lag briefly for just-uploaded
// files. With tolerant unset they are hard errors.
func verifyDownload(tolerant bool, bucket, key string, wantSize, gotSize int64, wantSum, gotSum string) error {
	if gotSize != wantSize {
		if !tolerant {
			return errors.Errorf("invalid size downloading %s/%s: expected %d bytes, got %d bytes", bucket, key, wantSize, gotSize)
		}
		glog.Warningf("invalid size downloading %s/%s: expected %d bytes, got %d bytes", bucket, key, wantSize, gotSize)
	}
	if gotSum != wantSum {
		if !tolerant {
			return errors.Errorf("invalid checksum downloading %s/%s: expected %s, got %s", bucket, key, wantSum, gotSum)
		}
		glog.Warningf("invalid checksum downloading %s/%s: expected %s, got %s", bucket, key, wantSum, gotSum)
	}
	return nil
}
