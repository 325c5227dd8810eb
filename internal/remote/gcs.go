package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCS uploads to a single Google Cloud Storage bucket
type GCS struct {
	client *storage.Client
	bucket string
}

// NewGCS authenticates with a service account key file
func NewGCS(ctx context.Context, bucket, credentialsFile string, opts ...option.ClientOption) (*GCS, error) {
	if _, err := os.Stat(credentialsFile); err != nil {
		return nil, fmt.Errorf("service account key %s: %w", credentialsFile, err)
	}

	opts = append([]option.ClientOption{option.WithCredentialsFile(credentialsFile)}, opts...)
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCS{client: client, bucket: bucket}, nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}

// ObjectName is where localFile lands under destFolder
func ObjectName(localFile, destFolder string) string {
	return path.Join(destFolder, filepath.Base(localFile))
}

// UploadOrReplace looks the object up first so the write can be made
// conditional on what it found
func (g *GCS) UploadOrReplace(ctx context.Context, localFile, destFolder string) error {
	f, err := os.Open(localFile)
	if err != nil {
		return fmt.Errorf("open %s: %w", localFile, err)
	}
	defer f.Close()

	name := ObjectName(localFile, destFolder)
	obj := g.client.Bucket(g.bucket).Object(name)

	attrs, err := obj.Attrs(ctx)
	cond, err := conditionsFor(attrs, err)
	if err != nil {
		return fmt.Errorf("look up gs://%s/%s: %w", g.bucket, name, err)
	}

	w := obj.If(cond).NewWriter(ctx)
	w.ContentType = contentType(localFile)
	w.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("copy %s to gs://%s/%s: %w", localFile, g.bucket, name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish gs://%s/%s: %w", g.bucket, name, err)
	}
	return nil
}

// List returns the object names under destFolder
func (g *GCS) List(ctx context.Context, destFolder string) ([]string, error) {
	prefix := destFolder
	if prefix != "" {
		prefix = path.Clean(prefix) + "/"
	}

	var names []string
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list gs://%s/%s: %w", g.bucket, prefix, err)
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

// conditionsFor replaces an existing object only at the generation we saw and
// creates a missing one only if it is still missing
func conditionsFor(attrs *storage.ObjectAttrs, lookupErr error) (storage.Conditions, error) {
	switch {
	case errors.Is(lookupErr, storage.ErrObjectNotExist):
		return storage.Conditions{DoesNotExist: true}, nil
	case lookupErr != nil:
		return storage.Conditions{}, lookupErr
	}
	return storage.Conditions{GenerationMatch: attrs.Generation}, nil
}

func contentType(file string) string {
	switch filepath.Ext(file) {
	case ".csv":
		return "text/csv; charset=utf-8"
	case ".db":
		return "application/vnd.sqlite3"
	}
	return "application/octet-stream"
}
