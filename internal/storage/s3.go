// Package storage holds the object store client used for document
// payloads too large to travel through the message queue.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/stratum-kg/stratum/internal/util"
)

// NewS3Client builds an S3 client from AWS_* environment variables.
// Returns nil when no endpoint is configured; S3 sources are then
// unavailable and document content travels inline.
func NewS3Client(ctx context.Context) *s3.Client {
	endpoint := util.GetEnv("AWS_ENDPOINT")
	if endpoint == "" {
		return nil
	}

	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(util.GetEnv("AWS_REGION")),
		config.WithBaseEndpoint(endpoint),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			util.GetEnv("AWS_ACCESS_KEY"),
			util.GetEnv("AWS_SECRET_KEY"),
			"",
		)),
	)
	if err != nil {
		return nil
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
}

// DocumentKey is the object key for a document's content, namespaced by
// workspace so deletes can target one workspace's objects.
func DocumentKey(workspace, documentID string) string {
	return fmt.Sprintf("%s/documents/%s.txt", workspace, documentID)
}

// PutDocument uploads document content and returns its object key.
func PutDocument(ctx context.Context, client *s3.Client, workspace, documentID, content string) (string, error) {
	bucket := util.GetEnv("AWS_BUCKET")
	key := DocumentKey(workspace, documentID)

	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(content),
		ContentType: aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload document to S3: %w", err)
	}

	return key, nil
}

// DeleteDocument removes a document's uploaded content, if any.
func DeleteDocument(ctx context.Context, client *s3.Client, workspace, documentID string) error {
	bucket := util.GetEnv("AWS_BUCKET")
	_, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(DocumentKey(workspace, documentID)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete document from S3: %w", err)
	}
	return nil
}

// DeleteWorkspace removes every object below the workspace prefix.
func DeleteWorkspace(ctx context.Context, client *s3.Client, workspace string) error {
	bucket := util.GetEnv("AWS_BUCKET")
	prefix := workspace + "/"

	listInput := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}

	for {
		listOutput, err := client.ListObjectsV2(ctx, listInput)
		if err != nil {
			return fmt.Errorf("failed to list objects in workspace %s: %w", workspace, err)
		}
		if len(listOutput.Contents) == 0 {
			break
		}

		var objectsToDelete []types.ObjectIdentifier
		for _, obj := range listOutput.Contents {
			objectsToDelete = append(objectsToDelete, types.ObjectIdentifier{Key: obj.Key})
		}

		_, err = client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{
				Objects: objectsToDelete,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to delete objects in workspace %s: %w", workspace, err)
		}

		if listOutput.IsTruncated != nil && *listOutput.IsTruncated {
			listInput.ContinuationToken = listOutput.NextContinuationToken
		} else {
			break
		}
	}

	return nil
}
