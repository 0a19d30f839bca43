/*
Copyright 2018 Gravitational, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package gcsstore implements blobstore.Store against a Google Cloud
// Storage bucket, the object-storage backend the core expects alongside
// the local filesystem one. Every operation retries transient transport
// errors with exponential backoff, unlike fsstore.
package gcsstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/cenkalti/backoff"
	"github.com/gravitational/trace"
	"google.golang.org/api/iterator"
)

// Store is a Google Cloud Storage-backed blobstore.Store.
type Store struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a Store writing into bucket under the optional keyPrefix.
func New(ctx context.Context, client *storage.Client, bucket, keyPrefix string) (*Store, error) {
	if bucket == "" {
		return nil, trace.BadParameter("missing bucket")
	}
	return &Store{client: client, bucket: bucket, prefix: keyPrefix}, nil
}

func (s *Store) key(name string) string {
	return s.prefix + name
}

// Put implements blobstore.Store.
func (s *Store) Put(ctx context.Context, name string, data io.Reader, mimeType string) error {
	body, err := ioutil.ReadAll(data)
	if err != nil {
		return trace.Wrap(err)
	}
	return retryTransient(ctx, "put "+name, func() error {
		w := s.object(name).NewWriter(ctx)
		if mimeType != "" {
			w.ContentType = mimeType
		}
		if _, err := io.Copy(w, bytes.NewReader(body)); err != nil {
			w.Close()
			return err
		}
		return w.Close()
	})
}

// Get implements blobstore.Store.
func (s *Store) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	var r *storage.Reader
	err := retryTransient(ctx, "get "+name, func() error {
		var getErr error
		r, getErr = s.object(name).NewReader(ctx)
		if getErr == storage.ErrObjectNotExist {
			return backoff.Permanent(getErr)
		}
		return getErr
	})
	if err != nil {
		if trace.Unwrap(err) == storage.ErrObjectNotExist || strings.Contains(err.Error(), storage.ErrObjectNotExist.Error()) {
			return nil, trace.NotFound("blob %q not found", name)
		}
		return nil, trace.Wrap(err)
	}
	return r, nil
}

// List implements blobstore.Store.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	err := retryTransient(ctx, "list "+prefix, func() error {
		out = nil
		it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: s.key(prefix)})
		for {
			attrs, err := it.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return err
			}
			out = append(out, strings.TrimPrefix(attrs.Name, s.prefix))
		}
		return nil
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	sort.Strings(out)
	return out, nil
}

// Delete implements blobstore.Store.
func (s *Store) Delete(ctx context.Context, name string) error {
	return retryTransient(ctx, "delete "+name, func() error {
		err := s.object(name).Delete(ctx)
		if err == storage.ErrObjectNotExist {
			return nil
		}
		return err
	})
}

// Move implements blobstore.Store by copying src to dst and then
// deleting src; the two steps are not atomic.
func (s *Store) Move(ctx context.Context, src, dst string) error {
	return retryTransient(ctx, fmt.Sprintf("move %s->%s", src, dst), func() error {
		srcObj := s.object(src)
		dstObj := s.object(dst)
		if _, err := dstObj.CopierFrom(srcObj).Run(ctx); err != nil {
			return err
		}
		return srcObj.Delete(ctx)
	})
}

// AccessInfo implements blobstore.Store.
func (s *Store) AccessInfo(name string) string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, s.key(name))
}

func (s *Store) object(name string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(s.key(name))
}
