// Package archivestore publishes assembled archives to S3.
package archivestore

import (
	"bytes"
	"context"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/keithlinneman/linnemanlabs-starter/internal/xerrors"
)

// PutObjectAPI is the part of the S3 client the publisher uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Object describes an archive to publish.
type Object struct {
	Filename string
	Data     []byte
	// Metadata is stored as S3 user metadata
	Metadata map[string]string
}

// S3Publisher writes archives to s3://{bucket}/{prefix}/{filename}.
type S3Publisher struct {
	client PutObjectAPI
	bucket string
	prefix string
}

func NewS3Publisher(client PutObjectAPI, bucket, prefix string) (*S3Publisher, error) {
	if client == nil {
		return nil, xerrors.New("s3 client is required")
	}
	if bucket == "" {
		return nil, xerrors.New("bucket is required")
	}
	return &S3Publisher{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

// Key returns the object key for filename.
func (p *S3Publisher) Key(filename string) string {
	if p.prefix == "" {
		return filename
	}
	return path.Join(p.prefix, filename)
}

// Publish uploads obj and returns its s3:// location.
func (p *S3Publisher) Publish(ctx context.Context, obj Object) (string, error) {
	if obj.Filename == "" || strings.Contains(obj.Filename, "/") {
		return "", xerrors.Newf("invalid archive filename %q", obj.Filename)
	}
	key := p.Key(obj.Filename)
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(p.bucket),
		Key:                aws.String(key),
		Body:               bytes.NewReader(obj.Data),
		ContentLength:      aws.Int64(int64(len(obj.Data))),
		ContentType:        aws.String("application/zip"),
		ContentDisposition: aws.String(`attachment; filename="` + obj.Filename + `"`),
		Metadata:           obj.Metadata,
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "put S3 object s3://%s/%s", p.bucket, key)
	}
	return "s3://" + p.bucket + "/" + key, nil
}
