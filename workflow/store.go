package workflow

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/force-h2020/wfmanager/errors"
	"github.com/force-h2020/wfmanager/natsclient"
)

// BucketName is the default KV bucket holding persisted workflow documents.
const BucketName = "wfmanager_workflows"

// Store persists workflow documents in a NATS KV bucket. Updates are
// revision-checked so two editors cannot silently overwrite each other.
type Store struct {
	bucket jetstream.KeyValue
}

// NewStore opens (creating if needed) the workflow bucket. An empty bucket
// name selects BucketName.
func NewStore(ctx context.Context, client *natsclient.Client, bucket string) (*Store, error) {
	if client == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "workflow", "NewStore", "nats client check")
	}
	if bucket == "" {
		bucket = BucketName
	}

	kv, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "Workflow documents",
		History:     10,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "workflow", "NewStore", "create KV bucket")
	}

	return &Store{bucket: kv}, nil
}

// OpenStore opens an existing workflow bucket for read-mostly use. Unlike
// NewStore it never creates the bucket; a missing bucket is
// errors.ErrKeyNotFound.
func OpenStore(ctx context.Context, client *natsclient.Client, bucket string) (*Store, error) {
	if client == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "workflow", "OpenStore", "nats client check")
	}
	if bucket == "" {
		bucket = BucketName
	}

	kv, err := client.GetKeyValueBucket(ctx, bucket)
	if err != nil {
		return nil, errors.Wrap(err, "workflow", "OpenStore", "open KV bucket")
	}
	return &Store{bucket: kv}, nil
}

// Create stores wf under name. It fails if name already exists.
func (s *Store) Create(ctx context.Context, name string, wf *Workflow) (uint64, error) {
	if name == "" {
		return 0, errors.WrapInvalid(errors.ErrInvalidData, "workflow", "Create", "name check")
	}
	data, err := Encode(wf)
	if err != nil {
		return 0, err
	}

	rev, err := s.bucket.Create(ctx, name, data)
	if err != nil {
		if natsclient.IsKVConflictError(err) {
			return 0, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrConflict, name),
				"workflow", "Create", "workflow already exists")
		}
		return 0, errors.WrapTransient(err, "workflow", "Create", "create in KV")
	}
	return rev, nil
}

// Get loads the workflow stored under name together with its revision.
func (s *Store) Get(ctx context.Context, name string) (*Workflow, uint64, error) {
	entry, err := s.bucket.Get(ctx, name)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, 0, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrKeyNotFound, name),
				"workflow", "Get", "lookup")
		}
		return nil, 0, errors.WrapTransient(err, "workflow", "Get", "get from KV")
	}

	wf, err := Decode(entry.Value())
	if err != nil {
		return nil, 0, err
	}
	return wf, entry.Revision(), nil
}

// Update replaces the document stored under name if its current revision
// equals revision, and returns the new revision.
func (s *Store) Update(ctx context.Context, name string, wf *Workflow, revision uint64) (uint64, error) {
	data, err := Encode(wf)
	if err != nil {
		return 0, err
	}

	rev, err := s.bucket.Update(ctx, name, data, revision)
	if err != nil {
		if natsclient.IsKVConflictError(err) {
			return 0, errors.WrapInvalid(fmt.Errorf("%w: %s at revision %d", errors.ErrConflict, name, revision),
				"workflow", "Update", "revision check")
		}
		return 0, errors.WrapTransient(err, "workflow", "Update", "update in KV")
	}
	return rev, nil
}

// Delete removes the workflow stored under name.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := s.bucket.Delete(ctx, name); err != nil {
		return errors.WrapTransient(err, "workflow", "Delete", "delete from KV")
	}
	return nil
}

// List returns the names of all stored workflows.
func (s *Store) List(ctx context.Context) ([]string, error) {
	keys, err := s.bucket.Keys(ctx)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrNoKeysFound) {
			return []string{}, nil
		}
		return nil, errors.WrapTransient(err, "workflow", "List", "list KV keys")
	}
	return keys, nil
}
