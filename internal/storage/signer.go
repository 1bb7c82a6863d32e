package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gophercloud/gophercloud/v2"
	"github.com/gophercloud/gophercloud/v2/openstack/objectstorage/v1/objects"

	"github.com/aravindh-murugesan/paperscout-go/internal/credentials"
)

// Supported signing backends.
const (
	BackendS3    = "s3"
	BackendSwift = "swift"
)

// SignRequest describes one object URL to mint.
type SignRequest struct {
	Key         string
	FileName    string
	Disposition Disposition
	Expires     time.Duration
}

// Signer mints time-limited GET URLs. It is built from one credential bundle
// and discarded when the bundle is replaced.
type Signer interface {
	Sign(ctx context.Context, req SignRequest) (string, error)
}

// Target selects where objects live.
type Target struct {
	Backend   string `mapstructure:"backend"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
}

// NewSigner builds the backend-specific signer for t from b.
func NewSigner(t Target, b credentials.Bundle) (Signer, error) {
	if t.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is not configured")
	}
	switch t.Backend {
	case "", BackendS3:
		return newS3Signer(t, b), nil
	case BackendSwift:
		return newSwiftSigner(t, b)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", t.Backend)
	}
}

// s3Signer presigns against any S3-compatible store, including OSS
// endpoints in S3 mode.
type s3Signer struct {
	presign *s3.PresignClient
	bucket  string
}

func newS3Signer(t Target, b credentials.Bundle) *s3Signer {
	opts := s3.Options{
		Region:       t.Region,
		Credentials:  awscreds.NewStaticCredentialsProvider(b.AccessKeyID, b.AccessKeySecret, b.SessionToken),
		UsePathStyle: t.PathStyle,
	}
	if t.Endpoint != "" {
		opts.BaseEndpoint = aws.String(t.Endpoint)
	}
	return &s3Signer{
		presign: s3.NewPresignClient(s3.New(opts)),
		bucket:  t.Bucket,
	}
}

func (s *s3Signer) Sign(ctx context.Context, req SignRequest) (string, error) {
	out, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(s.bucket),
		Key:                        aws.String(req.Key),
		ResponseContentDisposition: aws.String(req.Disposition.Header(req.FileName)),
	}, s3.WithPresignExpires(req.Expires))
	if err != nil {
		return "", fmt.Errorf("presign %s/%s: %w", s.bucket, req.Key, err)
	}
	return out.URL, nil
}

// swiftSigner mints Swift TempURLs, using the bundle secret as the temp-url
// key. The endpoint is the account URL, e.g. https://host/v1/AUTH_project.
type swiftSigner struct {
	client    *gophercloud.ServiceClient
	container string
	key       string
}

func newSwiftSigner(t Target, b credentials.Bundle) (*swiftSigner, error) {
	if !strings.Contains(t.Endpoint, "/v1/") {
		return nil, fmt.Errorf("swift endpoint %q must be an account URL containing /v1/", t.Endpoint)
	}
	provider := &gophercloud.ProviderClient{}
	provider.SetToken(b.SessionToken)

	return &swiftSigner{
		client: &gophercloud.ServiceClient{
			ProviderClient: provider,
			Endpoint:       gophercloud.NormalizeURL(t.Endpoint),
			Type:           "object-store",
		},
		container: t.Bucket,
		key:       b.AccessKeySecret,
	}, nil
}

func (s *swiftSigner) Sign(ctx context.Context, req SignRequest) (string, error) {
	raw, err := objects.CreateTempURL(ctx, s.client, s.container, req.Key, objects.CreateTempURLOpts{
		Method:     objects.GET,
		TTL:        int(req.Expires / time.Second),
		TempURLKey: s.key,
	})
	if err != nil {
		return "", fmt.Errorf("tempurl %s/%s: %w", s.container, req.Key, err)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	if req.Disposition == Inline {
		q.Set("inline", "")
	}
	q.Set("filename", req.FileName)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
