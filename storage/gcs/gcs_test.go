package gcs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"testing"

	gcstorage "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"xdao.co/dagstore/storage"
	"xdao.co/dagstore/storage/testkit"
)

func TestIsPreconditionFailed(t *testing.T) {
	if !isPreconditionFailed(fmt.Errorf("close: %w", &googleapi.Error{Code: http.StatusPreconditionFailed})) {
		t.Fatalf("wrapped 412 not detected")
	}
	if isPreconditionFailed(&googleapi.Error{Code: http.StatusNotFound}) {
		t.Fatalf("404 treated as precondition failure")
	}
	if isPreconditionFailed(gcstorage.ErrObjectNotExist) {
		t.Fatalf("ErrObjectNotExist treated as precondition failure")
	}
}

// TestGCS_Conformance runs against a storage emulator such as fake-gcs-server
// when STORAGE_EMULATOR_HOST is set.
func TestGCS_Conformance(t *testing.T) {
	if os.Getenv("STORAGE_EMULATOR_HOST") == "" {
		t.Skip("STORAGE_EMULATOR_HOST not set")
	}
	ctx := context.Background()
	client, err := gcstorage.NewClient(ctx)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	const bucket = "dagstore-test"
	if err := client.Bucket(bucket).Create(ctx, "dagstore", nil); err != nil && !isConflict(err) {
		t.Fatalf("create bucket: %v", err)
	}

	n := 0
	newCAS := func(t *testing.T) storage.CAS {
		n++
		return &CAS{Client: client, Bucket: bucket, Prefix: fmt.Sprintf("%s/%d/", t.Name(), n)}
	}
	testkit.RunCASConformance(t, newCAS)
	testkit.RunConcurrentConformance(t, newCAS)
}

func isConflict(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusConflict
}
