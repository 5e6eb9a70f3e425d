// Package publish uploads the built front-end artifact to the site
// bucket and purges the distribution's edge caches.
//
// Upload ordering matters: hashed assets go first with long-lived cache
// headers, and the entry document plus service worker go last with
// no-cache headers. A stale entry document pointing at assets that are
// not uploaded yet is worse than a stale asset referenced by a fresh
// entry document.
package publish

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

// Cache headers per object class
const (
	LongCacheControl = "public, max-age=31536000, immutable"
	NoCacheControl   = "no-cache, no-store, must-revalidate"
)

// Files that must always be revalidated by browsers and therefore get
// no-cache headers and upload last
var noCacheFiles = map[string]bool{
	"index.html":        true,
	"sw.js":             true,
	"service-worker.js": true,
}

const placeholderBody = `<!doctype html><html><head><meta charset="utf-8"><title>Deploying</title></head><body><p>Deployment in progress.</p></body></html>`

// S3API is the narrow object-storage surface the publisher needs.
// *s3.Client satisfies it.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// CloudFrontAPI is the narrow CDN surface the publisher needs.
// *cloudfront.Client satisfies it.
type CloudFrontAPI interface {
	CreateInvalidation(ctx context.Context, params *cloudfront.CreateInvalidationInput, optFns ...func(*cloudfront.Options)) (*cloudfront.CreateInvalidationOutput, error)
	GetInvalidation(ctx context.Context, params *cloudfront.GetInvalidationInput, optFns ...func(*cloudfront.Options)) (*cloudfront.GetInvalidationOutput, error)
}

// SyncOptions controls a directory sync
type SyncOptions struct {
	// DeleteOrphans removes remote objects with no local counterpart
	DeleteOrphans bool
}

// SyncSummary reports what a sync did
type SyncSummary struct {
	Uploaded    int
	Deleted     int
	NoCacheKeys []string
}

// Publisher uploads artifacts and drives invalidations to completion
type Publisher struct {
	s3           S3API
	cf           CloudFrontAPI
	pollInterval time.Duration
	timeout      time.Duration
}

// New creates a Publisher. pollInterval and timeout bound the
// invalidation wait loop.
func New(s3api S3API, cfapi CloudFrontAPI, pollInterval, timeout time.Duration) *Publisher {
	return &Publisher{s3: s3api, cf: cfapi, pollInterval: pollInterval, timeout: timeout}
}

// EnsurePlaceholder uploads a minimal entry document when the bucket
// has none yet, so the distribution serves something between phase one
// and the first real publish.
func (p *Publisher) EnsurePlaceholder(ctx context.Context, bucket string) error {
	out, err := p.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		Prefix:  aws.String("index.html"),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return fmt.Errorf("failed to list bucket %q: %w", bucket, err)
	}
	if len(out.Contents) > 0 {
		return nil
	}

	return p.putObject(ctx, bucket, "index.html", []byte(placeholderBody), NoCacheControl)
}

// SyncDirectory uploads every file under dir to the bucket, assets
// first with long-cache headers, then the entry document and service
// worker with no-cache headers. With DeleteOrphans it also removes
// remote objects that no longer exist locally.
func (p *Publisher) SyncDirectory(ctx context.Context, bucket, dir string, opts SyncOptions) (*SyncSummary, error) {
	local, err := listLocalFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(local) == 0 {
		return nil, fmt.Errorf("artifact directory %q is empty", dir)
	}

	assets, entries := partition(local)
	summary := &SyncSummary{}

	for _, key := range assets {
		if err := p.uploadFile(ctx, bucket, dir, key, LongCacheControl); err != nil {
			return nil, err
		}
		summary.Uploaded++
	}

	// Entry documents last: until these land, the edge keeps serving
	// the previous (consistent) entry document.
	for _, key := range entries {
		if err := p.uploadFile(ctx, bucket, dir, key, NoCacheControl); err != nil {
			return nil, err
		}
		summary.Uploaded++
		summary.NoCacheKeys = append(summary.NoCacheKeys, key)
	}

	if opts.DeleteOrphans {
		deleted, err := p.deleteOrphans(ctx, bucket, local)
		if err != nil {
			return nil, err
		}
		summary.Deleted = deleted
	}

	return summary, nil
}

// Invalidate purges the given paths from the distribution and blocks
// until the invalidation reaches its terminal state.
func (p *Publisher) Invalidate(ctx context.Context, distributionID string, paths []string) error {
	out, err := p.cf.CreateInvalidation(ctx, &cloudfront.CreateInvalidationInput{
		DistributionId: aws.String(distributionID),
		InvalidationBatch: &cftypes.InvalidationBatch{
			CallerReference: aws.String(uuid.NewString()),
			Paths: &cftypes.Paths{
				Items:    paths,
				Quantity: aws.Int32(int32(len(paths))),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create invalidation on distribution %q: %w", distributionID, err)
	}

	return p.waitInvalidation(ctx, distributionID, aws.ToString(out.Invalidation.Id))
}

func (p *Publisher) waitInvalidation(ctx context.Context, distributionID, invalidationID string) error {
	deadline := time.Now().Add(p.timeout)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		out, err := p.cf.GetInvalidation(ctx, &cloudfront.GetInvalidationInput{
			DistributionId: aws.String(distributionID),
			Id:             aws.String(invalidationID),
		})
		if err != nil {
			return fmt.Errorf("failed to check invalidation %q: %w", invalidationID, err)
		}

		if aws.ToString(out.Invalidation.Status) == "Completed" {
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("timed out after %s waiting for invalidation %q to complete", p.timeout, invalidationID)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.pollInterval):
		}
	}
}

func (p *Publisher) uploadFile(ctx context.Context, bucket, dir, key, cacheControl string) error {
	body, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
	if err != nil {
		return fmt.Errorf("failed to read artifact file %q: %w", key, err)
	}
	return p.putObject(ctx, bucket, key, body, cacheControl)
}

func (p *Publisher) putObject(ctx context.Context, bucket, key string, body []byte, cacheControl string) error {
	_, err := p.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(body),
		ContentType:  aws.String(contentType(key)),
		CacheControl: aws.String(cacheControl),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %q to bucket %q: %w", key, bucket, err)
	}
	return nil
}

func (p *Publisher) deleteOrphans(ctx context.Context, bucket string, local []string) (int, error) {
	localSet := make(map[string]bool, len(local))
	for _, key := range local {
		localSet[key] = true
	}

	var orphans []s3types.ObjectIdentifier
	var token *string
	for {
		out, err := p.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(bucket),
			ContinuationToken: token,
		})
		if err != nil {
			return 0, fmt.Errorf("failed to list bucket %q: %w", bucket, err)
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if !localSet[key] {
				orphans = append(orphans, s3types.ObjectIdentifier{Key: aws.String(key)})
			}
		}
		if out.NextContinuationToken == nil {
			break
		}
		token = out.NextContinuationToken
	}

	// DeleteObjects caps at 1000 keys per call
	for start := 0; start < len(orphans); start += 1000 {
		end := start + 1000
		if end > len(orphans) {
			end = len(orphans)
		}
		_, err := p.s3.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &s3types.Delete{Objects: orphans[start:end], Quiet: aws.Bool(true)},
		})
		if err != nil {
			return 0, fmt.Errorf("failed to delete orphaned objects from %q: %w", bucket, err)
		}
	}

	return len(orphans), nil
}

// listLocalFiles returns slash-separated keys for every regular file
// under dir, sorted for stable upload order.
func listLocalFiles(dir string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk artifact directory %q: %w", dir, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func partition(keys []string) (assets, entries []string) {
	for _, key := range keys {
		if noCacheFiles[filepath.Base(key)] {
			entries = append(entries, key)
		} else {
			assets = append(assets, key)
		}
	}
	return assets, entries
}

func contentType(key string) string {
	if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
