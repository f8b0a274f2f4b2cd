package media

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3Config points the store at a bucket. PublicEndpoint is what clients use
// to fetch objects; it may differ from Endpoint (a CDN, or R2's public host).
type S3Config struct {
	Endpoint       string
	PublicEndpoint string
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	SSLDisabled    bool
}

// S3Store keeps uploads in one bucket with public-read objects. Object URLs
// are <PublicEndpoint>/<Bucket>/<prefix>/<uuid>-<name>.
type S3Store struct {
	uploader *s3manager.Uploader
	client   *s3.S3
	cfg      S3Config
}

func NewS3Store(cfg S3Config) (*S3Store, error) {
	sess, err := session.NewSession(&aws.Config{
		Region:           aws.String(cfg.Region),
		Credentials:      credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
		Endpoint:         aws.String(cfg.Endpoint),
		S3ForcePathStyle: aws.Bool(true),
		DisableSSL:       aws.Bool(cfg.SSLDisabled),
	})
	if err != nil {
		return nil, fmt.Errorf("media: creating s3 session: %w", err)
	}
	if cfg.PublicEndpoint == "" {
		cfg.PublicEndpoint = cfg.Endpoint
	}
	cfg.PublicEndpoint = strings.TrimSuffix(cfg.PublicEndpoint, "/")

	return &S3Store{
		uploader: s3manager.NewUploader(sess),
		client:   s3.New(sess),
		cfg:      cfg,
	}, nil
}

func (s *S3Store) Save(ctx context.Context, prefix, filename string, data []byte, mime string) (string, error) {
	key := prefix + "/" + objectName(filename)

	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ACL:         aws.String("public-read"),
		ContentType: aws.String(mime),
	})
	if err != nil {
		return "", fmt.Errorf("media: upload failed: %w, bucket %s, key %s", err, s.cfg.Bucket, key)
	}
	return s.publicURL(key), nil
}

func (s *S3Store) Delete(ctx context.Context, url string) error {
	key, err := s.objectKey(url)
	if err != nil {
		return err
	}

	_, err = s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("media: delete failed: %w, bucket %s, key %s", err, s.cfg.Bucket, key)
	}
	return nil
}

func (s *S3Store) publicURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", s.cfg.PublicEndpoint, s.cfg.Bucket, key)
}

// objectKey is the inverse of publicURL.
func (s *S3Store) objectKey(url string) (string, error) {
	key, ok := strings.CutPrefix(url, s.cfg.PublicEndpoint+"/"+s.cfg.Bucket+"/")
	if !ok || key == "" {
		return "", fmt.Errorf("media: %q is not an object in bucket %s", url, s.cfg.Bucket)
	}
	return key, nil
}
