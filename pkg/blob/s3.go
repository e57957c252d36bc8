package blob

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/rotisserie/eris"
)

// S3Config configures an S3 or S3-compatible bucket.
type S3Config struct {
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	PathStyle     bool
	ACL           string
	PublicBaseURL string
	MaxRetries    int
}

// S3Storage stores objects in an S3 bucket.
type S3Storage struct {
	client    s3iface.S3API
	bucket    string
	acl       string
	publicURL string
}

// NewS3Storage builds a session from cfg. Static credentials are used when
// an access key is given, otherwise the default AWS credential chain.
func NewS3Storage(cfg S3Config) (*S3Storage, error) {
	if cfg.Bucket == "" {
		return nil, eris.New("blob: s3 bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg := &aws.Config{
		Region:           aws.String(region),
		S3ForcePathStyle: aws.Bool(cfg.PathStyle),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	if cfg.MaxRetries > 0 {
		awsCfg.MaxRetries = aws.Int(cfg.MaxRetries)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, eris.Wrap(err, "blob: s3 session")
	}

	return &S3Storage{
		client:    s3.New(sess),
		bucket:    cfg.Bucket,
		acl:       cfg.ACL,
		publicURL: s3PublicBase(cfg, region),
	}, nil
}

func (s *S3Storage) Upload(ctx context.Context, key, contentType string, data []byte, progress ProgressFunc) (Object, error) {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          newProgressReader(data, progress),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	}
	if s.acl != "" {
		in.ACL = aws.String(s.acl)
	}

	if _, err := s.client.PutObjectWithContext(ctx, in); err != nil {
		return Object{}, eris.Wrapf(err, "blob: s3 put %s", key)
	}
	return Object{Key: key, URL: joinURL(s.publicURL, key)}, nil
}

func (s *S3Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return eris.Wrapf(err, "blob: s3 delete %s", key)
	}
	return nil
}

// s3PublicBase picks the URL prefix objects are served from: an explicit
// public URL, the custom endpoint, or the AWS virtual-hosted bucket URL.
func s3PublicBase(cfg S3Config, region string) string {
	switch {
	case cfg.PublicBaseURL != "":
		return cfg.PublicBaseURL
	case cfg.Endpoint != "" && cfg.PathStyle:
		return strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	case cfg.Endpoint != "":
		scheme, host, ok := strings.Cut(cfg.Endpoint, "://")
		if !ok {
			return fmt.Sprintf("https://%s.%s", cfg.Bucket, strings.TrimRight(cfg.Endpoint, "/"))
		}
		return fmt.Sprintf("%s://%s.%s", scheme, cfg.Bucket, strings.TrimRight(host, "/"))
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, region)
	}
}
