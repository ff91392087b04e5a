// Package storage fetches and persists documents by object-store URL.
package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	_ "github.com/viant/afsc/s3"

	"github.com/opendental/eob-processor/internal/errors"
)

// Gateway reads and writes objects addressed by full URLs
// (s3://bucket/key in production, mem:// in tests).
type Gateway struct {
	fs afs.Service
}

func New() *Gateway {
	return &Gateway{fs: afs.New()}
}

// JoinBucket builds the object URL for a logical path inside a bucket.
func JoinBucket(bucket, key string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, key)
}

// Fetch retrieves an object. A missing object yields STORE_001, any
// other failure STORE_002.
func (g *Gateway) Fetch(ctx context.Context, location string) ([]byte, error) {
	ok, err := g.fs.Exists(ctx, location)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrStorageTransport.Code, fmt.Sprintf("failed to stat %s", location))
	}
	if !ok {
		return nil, errors.New(errors.ErrObjectNotFound.Code, fmt.Sprintf("no object at %s", location))
	}

	data, err := g.fs.DownloadWithURL(ctx, location)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrStorageTransport.Code, fmt.Sprintf("failed to download %s", location))
	}
	return data, nil
}

// Store writes an object, overwriting any previous content.
func (g *Gateway) Store(ctx context.Context, location string, data []byte) error {
	if err := g.fs.Upload(ctx, location, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return errors.Wrap(err, errors.ErrStorageTransport.Code, fmt.Sprintf("failed to upload %s", location))
	}
	return nil
}
