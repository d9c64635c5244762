package transfer

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"

	"github.com/yurykabanov/sitebackuper/pkg/domain"
)

const s3DefaultRegion = "us-east-1"

func S3Service() Service {
	return Service{
		Info: domain.ServiceInfo{
			Type: domain.ServiceTypeS3,
			Name: "S3",
			Fields: []domain.ServiceField{
				{Key: "endpoint", Label: "Endpoint", Placeholder: "https://s3.amazonaws.com"},
				{Key: "region", Label: "Region", Placeholder: s3DefaultRegion},
				{Key: "bucket", Label: "Bucket", Required: true},
				{Key: "access_key_id", Label: "Access Key ID", Required: true},
				{Key: "secret_access_key", Label: "Secret Access Key", Required: true, Secret: true},
				{Key: "prefix", Label: "Key Prefix", Placeholder: "backups/"},
			},
		},
		Factory: func(creds domain.Credentials) (domain.Transfer, error) {
			return NewS3(creds)
		},
	}
}

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type S3 struct {
	client s3API
	bucket string
	prefix string
}

func NewS3(creds domain.Credentials) (*S3, error) {
	if creds["bucket"] == "" || creds["access_key_id"] == "" || creds["secret_access_key"] == "" {
		return nil, domain.ErrMissingCredentials
	}

	region := creds["region"]
	if region == "" {
		region = s3DefaultRegion
	}

	opts := s3.Options{
		Region:      region,
		Credentials: credentials.NewStaticCredentialsProvider(creds["access_key_id"], creds["secret_access_key"], ""),
	}

	// custom endpoints are S3 compatible stores which rarely support virtual hosted buckets
	if endpoint := creds["endpoint"]; endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
		opts.UsePathStyle = true
	}

	return newS3WithClient(s3.New(opts), creds["bucket"], creds["prefix"]), nil
}

func newS3WithClient(client s3API, bucket, prefix string) *S3 {
	return &S3{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

func (t *S3) key(name string) string {
	if t.prefix == "" {
		return name
	}
	return path.Join(t.prefix, name)
}

func (t *S3) Upload(ctx context.Context, localPath string) (domain.TransferResult, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return domain.TransferResult{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return domain.TransferResult{}, err
	}

	key := t.key(filepath.Base(localPath))

	_, err = t.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(t.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("application/zip"),
	})
	if err != nil {
		return domain.TransferResult{}, errors.Wrap(err, "s3")
	}

	return domain.TransferResult{
		Url:  "s3://" + t.bucket + "/" + key,
		Path: key,
	}, nil
}

func (t *S3) Download(ctx context.Context, remotePath, localDest string) error {
	out, err := t.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(remotePath),
	})
	if err != nil {
		return errors.Wrap(err, "s3")
	}
	defer out.Body.Close()

	return errors.Wrap(writeFile(localDest, out.Body), "s3")
}

func (t *S3) Remove(ctx context.Context, remotePath string) error {
	_, err := t.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(remotePath),
	})
	return errors.Wrap(err, "s3")
}
