package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Client is the slice of the AWS S3 API the remote backend uses.
// Abstracting it keeps the backend testable with an in-memory fake.
type S3Client interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// S3Config carries the remote endpoint settings.
type S3Config struct {
	EndpointURL     string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
}

// SignatureVersion selects the signing algorithm for an endpoint. Tencent
// COS only accepts the legacy v2 signature; everything else speaks v4.
func SignatureVersion(endpointURL string) string {
	if strings.Contains(endpointURL, "myqcloud.com") {
		return "s3"
	}
	return "s3v4"
}

// NewS3Client builds an S3 client for an S3-compatible vendor using
// virtual-hosted addressing. For v2-only vendors the outgoing requests are
// re-signed by a transport wrapper, since the SDK itself only implements
// v4.
func NewS3Client(ctx context.Context, cfg S3Config) (S3Client, error) {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	httpClient := &http.Client{Timeout: 60 * time.Second}
	if SignatureVersion(cfg.EndpointURL) == "s3" {
		httpClient.Transport = &sigV2Transport{
			base:      http.DefaultTransport,
			accessKey: cfg.AccessKeyID,
			secretKey: cfg.SecretAccessKey,
			bucket:    cfg.Bucket,
		}
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		awsconfig.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.EndpointURL)
		o.UsePathStyle = false // virtual-hosted addressing, uniformly
	})
	return client, nil
}

// sigV2Transport rewrites each request's Authorization header with a legacy
// AWS signature v2 before it leaves the process. The SDK still produces its
// v4 signature first; vendors that require v2 ignore unknown x-amz-*
// headers and validate only the v2 Authorization value.
type sigV2Transport struct {
	base      http.RoundTripper
	accessKey string
	secretKey string
	bucket    string
}

func (t *sigV2Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())

	date := time.Now().UTC().Format(http.TimeFormat)
	r.Header.Set("Date", date)

	stringToSign := strings.Join([]string{
		r.Method,
		r.Header.Get("Content-MD5"),
		r.Header.Get("Content-Type"),
		date,
		t.canonicalizedAmzHeaders(r) + t.canonicalizedResource(r),
	}, "\n")

	mac := hmac.New(sha1.New, []byte(t.secretKey))
	mac.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	r.Header.Set("Authorization", fmt.Sprintf("AWS %s:%s", t.accessKey, signature))
	return t.base.RoundTrip(r)
}

// canonicalizedAmzHeaders folds x-amz-* headers into the v2 string to sign.
func (t *sigV2Transport) canonicalizedAmzHeaders(r *http.Request) string {
	var keys []string
	for k := range r.Header {
		if lk := strings.ToLower(k); strings.HasPrefix(lk, "x-amz-") {
			keys = append(keys, lk)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k + ":" + strings.Join(r.Header.Values(http.CanonicalHeaderKey(k)), ",") + "\n")
	}
	return sb.String()
}

// canonicalizedResource is "/<bucket><path>" under virtual-hosted
// addressing.
func (t *sigV2Transport) canonicalizedResource(r *http.Request) string {
	return "/" + t.bucket + r.URL.EscapedPath()
}
