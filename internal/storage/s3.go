// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package storage exports revision snapshots as markdown objects to an
// S3-compatible bucket. It wraps the AWS SDK v2 and uses path-style
// addressing so it works against CEPH, MinIO and Hetzner as well as AWS.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// markdownContentType is stored on every exported object.
const markdownContentType = "text/markdown; charset=utf-8"

// defaultLinkTTL is how long a presigned export link stays valid.
const defaultLinkTTL = 24 * time.Hour

// Config holds the connection settings for the export bucket.
type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	// Prefix is prepended to every object key, e.g. "exports".
	Prefix string
	// PublicURL, when set, is a CDN or public bucket URL used to build
	// plain links instead of presigned ones.
	PublicURL string
	LinkTTL   time.Duration
}

// Client uploads markdown exports to a single bucket.
type Client struct {
	s3        *s3.Client
	presigner *s3.PresignClient
	bucket    string
	prefix    string
	endpoint  string
	publicURL string
	linkTTL   time.Duration
}

// New creates a storage client. It returns (nil, nil) when the endpoint,
// credentials or bucket are missing so the server can run without exports.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" || cfg.Bucket == "" {
		return nil, nil
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	endpoint := strings.TrimRight(cfg.Endpoint, "/")

	s3Client := s3.New(s3.Options{
		Region:       cfg.Region,
		BaseEndpoint: aws.String(endpoint),
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
		// Most S3-compatible servers reject the newer default checksums.
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	})

	ttl := cfg.LinkTTL
	if ttl <= 0 {
		ttl = defaultLinkTTL
	}
	return &Client{
		s3:        s3Client,
		presigner: s3.NewPresignClient(s3Client),
		bucket:    cfg.Bucket,
		prefix:    strings.Trim(cfg.Prefix, "/"),
		endpoint:  endpoint,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		linkTTL:   ttl,
	}, nil
}

// Key joins the configured prefix with a relative object name.
func (c *Client) Key(name string) string {
	name = strings.TrimLeft(name, "/")
	if c.prefix == "" {
		return name
	}
	return c.prefix + "/" + name
}

// ExportMarkdown stores markdown under name (relative to the prefix) and
// returns the full object key and a link to it.
func (c *Client) ExportMarkdown(ctx context.Context, name, markdown string) (key, link string, err error) {
	key = c.Key(name)
	_, err = c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          strings.NewReader(markdown),
		ContentLength: aws.Int64(int64(len(markdown))),
		ContentType:   aws.String(markdownContentType),
	})
	if err != nil {
		return "", "", fmt.Errorf("s3 upload %s/%s: %w", c.bucket, key, err)
	}

	if c.publicURL != "" {
		return key, c.FileURL(key), nil
	}
	link, err = c.PresignedURL(ctx, key, c.linkTTL)
	if err != nil {
		return "", "", err
	}
	return key, link, nil
}

// FileURL returns the public URL for a key. Only meaningful when PublicURL
// is configured or the bucket allows anonymous reads.
func (c *Client) FileURL(key string) string {
	if c.publicURL != "" {
		return c.publicURL + "/" + key
	}
	return c.endpoint + "/" + c.bucket + "/" + key
}

// PresignedURL generates a pre-signed GET URL for an exported object.
// S3 caps the expiry at 7 days.
func (c *Client) PresignedURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	req, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", fmt.Errorf("s3 presign %s/%s: %w", c.bucket, key, err)
	}
	return req.URL, nil
}

// Bucket returns the export bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}
