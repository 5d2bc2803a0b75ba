package main

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/xorcare/pointer"
)

type S3ClientInterface interface {
	// the returned size is -1 when S3 does not report a content length
	GetObjectStream(ctx context.Context, bucket string, key string) (io.ReadCloser, int64, error)
}

type JREDeployS3Client struct {
	awss3client *awss3.Client
}

func NewS3Client(ctx context.Context, endpoint string) (*JREDeployS3Client, error) {
	awscfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}

	var optFns []func(*awss3.Options)
	if endpoint != "" {
		const defaultRegion = "us-east-1"
		if awscfg.Region == "" {
			awscfg.Region = defaultRegion
		}
		optFns = append(optFns, func(o *awss3.Options) {
			o.BaseEndpoint = pointer.String(endpoint)
			o.UsePathStyle = true
		})
	}

	return &JREDeployS3Client{awss3client: awss3.NewFromConfig(awscfg, optFns...)}, nil
}

func (t JREDeployS3Client) GetObjectStream(ctx context.Context, bucket string, key string) (io.ReadCloser, int64, error) {
	output, err := t.awss3client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: pointer.String(bucket),
		Key:    pointer.String(key),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("error getting object s3://%s/%s: %w", bucket, key, err)
	}

	size := int64(-1)
	if output.ContentLength != nil {
		size = aws.ToInt64(output.ContentLength)
	}
	return output.Body, size, nil
}
