package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/rs/zerolog/log"
)

// SpacesStorage reads s3://bucket/key locations from DigitalOcean Spaces or any S3 endpoint.
type SpacesStorage struct {
	client *s3.S3
}

func NewSpacesStorage(endpoint, region, accessKey, secretKey string) (*SpacesStorage, error) {
	config := &aws.Config{
		Region:           aws.String(region),
		S3ForcePathStyle: aws.Bool(false),
	}
	if endpoint != "" {
		config.Endpoint = aws.String(endpoint)
	}
	if accessKey != "" {
		config.Credentials = credentials.NewStaticCredentials(accessKey, secretKey, "")
	}

	sess, err := session.NewSession(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &SpacesStorage{client: s3.New(sess)}, nil
}

func (ss *SpacesStorage) Open(ctx context.Context, location string) (*Object, error) {
	bucket, key, err := ParseS3Location(location)
	if err != nil {
		return nil, err
	}

	out, err := ss.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		log.Error().Err(err).Str("bucket", bucket).Str("key", key).Msg("Failed to get object from Spaces")
		return nil, fmt.Errorf("failed to get from Spaces: %w", err)
	}

	size := int64(-1)
	if out.ContentLength != nil {
		size = aws.Int64Value(out.ContentLength)
	}
	return &Object{Body: out.Body, Size: size}, nil
}

// ParseS3Location splits s3://bucket/key.
func ParseS3Location(location string) (bucket, key string, err error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", fmt.Errorf("invalid object location %q: %w", location, err)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Scheme != "s3" || u.Host == "" || key == "" {
		return "", "", fmt.Errorf("invalid object location %q", location)
	}
	return u.Host, key, nil
}
