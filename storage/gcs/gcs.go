// Package gcs stores blocks as objects in a Google Cloud Storage bucket, one
// object per block named by its CID string.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	gcstorage "cloud.google.com/go/storage"
	"github.com/ipfs/go-cid"
	"google.golang.org/api/googleapi"

	"xdao.co/dagstore/cidutil"
	"xdao.co/dagstore/storage"
)

// CAS is a bucket-backed block store. Objects are created with a
// does-not-exist precondition, so concurrent writers of the same block never
// overwrite each other.
type CAS struct {
	Client *gcstorage.Client
	Bucket string
	// Prefix is prepended to every object name (e.g. "blocks/").
	Prefix string
}

var _ storage.CAS = (*CAS)(nil)

func (c *CAS) object(id cid.Cid) *gcstorage.ObjectHandle {
	return c.Client.Bucket(c.Bucket).Object(c.Prefix + id.String())
}

func (c *CAS) Put(ctx context.Context, id cid.Cid, data []byte) error {
	if !id.Defined() {
		return storage.ErrInvalidCID
	}
	if err := cidutil.Verify(id, data); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrCIDMismatch, err)
	}

	w := c.object(id).If(gcstorage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs: write %s: %w", id, err)
	}
	err := w.Close()
	if err == nil {
		return nil
	}
	if isPreconditionFailed(err) {
		existing, gerr := c.Get(ctx, id)
		if gerr != nil || !bytes.Equal(existing, data) {
			return storage.ErrImmutable
		}
		return nil
	}
	return fmt.Errorf("gcs: write %s: %w", id, err)
}

func (c *CAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	rc, err := c.object(id).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcstorage.ErrObjectNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("gcs: read %s: %w", id, err)
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("gcs: read %s: %w", id, err)
	}
	if err := cidutil.Verify(id, body); err != nil {
		return nil, storage.ErrCIDMismatch
	}
	return body, nil
}

func (c *CAS) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if !id.Defined() {
		return false, nil
	}
	_, err := c.object(id).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcstorage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("gcs: stat %s: %w", id, err)
	}
	return true, nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
