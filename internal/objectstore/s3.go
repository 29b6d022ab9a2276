package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/brandonfcohen1/gnarmap/internal/errs"
)

// connectTimeout bounds each attempt of a store operation and
// totalTimeout bounds all attempts of it together, per spec.md §5's
// download timeout/retry policy, which this repo applies uniformly to
// R2/S3 object fetch and put (SNODAS HTTP download itself is out of
// scope, but R2 object access is not). connectTimeout is a deadline on
// the whole attempt, not a dial-only timeout.
const (
	connectTimeout = 30 * time.Second
	totalTimeout   = 300 * time.Second
	maxRetries     = 3
)

// S3Store is an S3-compatible object store addressed through the
// Cloudflare R2 endpoint derived from the account ID; there is no
// standard AWS S3 endpoint mode.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// R2Credentials carries the three environment-sourced values spec.md
// §6 names for a remote R2 destination.
type R2Credentials struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
}

// R2CredentialsFromEnv reads R2_ACCOUNT_ID, R2_ACCESS_KEY_ID, and
// R2_SECRET_ACCESS_KEY from the environment.
func R2CredentialsFromEnv() (R2Credentials, bool) {
	account, ok1 := os.LookupEnv("R2_ACCOUNT_ID")
	key, ok2 := os.LookupEnv("R2_ACCESS_KEY_ID")
	secret, ok3 := os.LookupEnv("R2_SECRET_ACCESS_KEY")
	if !ok1 || !ok2 || !ok3 {
		return R2Credentials{}, false
	}
	return R2Credentials{AccountID: account, AccessKeyID: key, SecretAccessKey: secret}, true
}

// NewS3Store builds an S3-compatible Store for bucket/prefix using
// creds' R2 endpoint. Region is fixed to "auto", the value R2 expects.
func NewS3Store(ctx context.Context, bucket, prefix string, creds R2Credentials) (*S3Store, error) {
	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", creds.AccountID)

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			creds.AccessKeyID, creds.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &S3Store{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *S3Store) key(k string) string { return joinKey(s.prefix, k) }

func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	return withRetry(ctx, func(ctx context.Context) error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(s.key(key)),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentType),
		})
		if err != nil {
			return fmt.Errorf("put %s: %w", key, err)
		}
		return nil
	})
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := withRetry(ctx, func(ctx context.Context) error {
		resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(key)),
		})
		if err != nil {
			if isNotFound(err) {
				return fmt.Errorf("get %s: %w", key, errs.ErrNotFound)
			}
			return fmt.Errorf("get %s: %w", key, err)
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("get %s: read body: %w", key, err)
		}
		out = data
		return nil
	})
	return out, err
}

func isNotFound(err error) bool {
	var re *smithyhttp.ResponseError
	if errors.As(err, &re) {
		return re.HTTPStatusCode() == 404
	}
	return false
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix := s.key(prefix)
	var keys []string
	err := withRetry(ctx, func(ctx context.Context) error {
		keys = nil
		var token *string
		for {
			resp, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
				Bucket:            aws.String(s.bucket),
				Prefix:            aws.String(fullPrefix),
				ContinuationToken: token,
			})
			if err != nil {
				return fmt.Errorf("list %s: %w", prefix, err)
			}
			for _, obj := range resp.Contents {
				full := aws.ToString(obj.Key)
				rel := full
				if len(full) >= len(fullPrefix) {
					rel = full[len(fullPrefix):]
				}
				for len(rel) > 0 && rel[0] == '/' {
					rel = rel[1:]
				}
				keys = append(keys, rel)
			}
			if resp.IsTruncated == nil || !*resp.IsTruncated {
				break
			}
			token = resp.NextContinuationToken
		}
		return nil
	})
	return keys, err
}

func (s *S3Store) PutFile(ctx context.Context, localPath, key string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("put file %s: %w", localPath, err)
	}
	return s.Put(ctx, key, data, ContentTypeFor(key))
}

func (s *S3Store) GetFile(ctx context.Context, key, localPath string) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("get file %s: %w", key, err)
	}
	if err := os.WriteFile(localPath, data, 0o644); err != nil {
		return fmt.Errorf("get file %s: %w", key, err)
	}
	return nil
}

// withRetry runs fn with up to maxRetries retries and exponential
// backoff 2^attempt seconds, bounding each whole attempt by
// connectTimeout and all attempts together by totalTimeout, per
// spec.md §5.
func withRetry(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, totalTimeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		callCtx, cancelCall := context.WithTimeout(ctx, connectTimeout)
		err := fn(callCtx)
		cancelCall()
		if err == nil {
			return nil
		}
		if errors.Is(err, errs.ErrNotFound) {
			return err
		}
		lastErr = err
		if attempt == maxRetries {
			break
		}
		delay := time.Duration(math.Pow(2, float64(attempt))) * time.Second
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(delay):
		}
	}
	return lastErr
}
