// Package blobs stores record attachments in an S3 compatible bucket.
// Clients never receive credentials: they upload through presigned PUT URLs
// and ask the server to delete objects they no longer reference.
package blobs

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	sc "github.com/dmitrijs2005/tripkeeper/internal/server/config"
)

type presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type objectDeleter interface {
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store presigns uploads and deletes objects in one bucket.
type S3Store struct {
	bucket   string
	endpoint string
	expires  time.Duration

	presign presigner
	objects objectDeleter
}

// NewS3Store builds the S3 clients from static credentials. Path style
// addressing keeps MinIO compatible endpoints working.
func NewS3Store(ctx context.Context, c *sc.Config) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(c.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			c.S3RootUser, c.S3RootPassword, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load s3 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(c.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return &S3Store{
		bucket:   c.S3Bucket,
		endpoint: c.S3BaseEndpoint,
		expires:  c.PresignValidityDuration,
		presign:  s3.NewPresignClient(client),
		objects:  client,
	}, nil
}

// PresignPut returns a URL the caller can PUT the object key to.
func (s *S3Store) PresignPut(ctx context.Context, key, contentType string) (string, error) {
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	req, err := s.presign.PresignPutObject(ctx, in, s3.WithPresignExpires(s.expires))
	if err != nil {
		return "", fmt.Errorf("presign put %s: %w", key, err)
	}
	return req.URL, nil
}

// PublicURL is the address of key under the bucket endpoint.
func (s *S3Store) PublicURL(key string) string {
	escaped := make([]string, 0, 4)
	for _, seg := range strings.Split(key, "/") {
		escaped = append(escaped, url.PathEscape(seg))
	}
	return strings.TrimRight(s.endpoint, "/") + "/" + s.bucket + "/" + strings.Join(escaped, "/")
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.objects.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
