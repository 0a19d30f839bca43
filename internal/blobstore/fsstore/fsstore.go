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

// Package fsstore implements blobstore.Store on top of a local
// directory, grounded on the teacher's lib/blob/fs content-addressed
// filesystem backend but name-addressed: a blob name maps directly to a
// relative path under the store's root, since task/result/status names
// are externally meaningful keys rather than content hashes.
package fsstore

import (
	"context"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gravitational/kubeface/internal/defaults"

	"github.com/gravitational/trace"
)

// Store is a local-filesystem blobstore.Store rooted at a directory.
type Store struct {
	root string
}

// New creates a filesystem store rooted at root, creating it and its
// temporary-file staging directory if necessary.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, trace.BadParameter("missing storage root")
	}
	s := &Store{root: root}
	for _, dir := range []string{s.root, s.tempDir()} {
		if err := os.MkdirAll(dir, defaults.SharedDirMask); err != nil {
			return nil, trace.ConvertSystemError(err)
		}
	}
	return s, nil
}

func (s *Store) tempDir() string {
	return filepath.Join(s.root, ".kubeface-tmp")
}

// path maps a blob name to its on-disk location. Blob names never
// contain ".." components (the naming schemas only ever emit
// cache-key/task-index/timestamp components), but we defend against a
// pathological name escaping the root regardless.
func (s *Store) path(name string) (string, error) {
	clean := filepath.Clean(name)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", trace.BadParameter("invalid blob name %q", name)
	}
	return filepath.Join(s.root, clean), nil
}

// Put implements blobstore.Store.
func (s *Store) Put(_ context.Context, name string, data io.Reader, _ string) error {
	target, err := s.path(name)
	if err != nil {
		return trace.Wrap(err)
	}
	if err := os.MkdirAll(filepath.Dir(target), defaults.SharedDirMask); err != nil {
		return trace.ConvertSystemError(err)
	}
	f, err := ioutil.TempFile(s.tempDir(), "blob")
	if err != nil {
		return trace.ConvertSystemError(err)
	}
	tmpName := f.Name()
	if _, err := io.Copy(f, data); err != nil {
		f.Close()
		os.Remove(tmpName)
		return trace.Wrap(err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpName)
		return trace.Wrap(err)
	}
	if err := os.Chmod(tmpName, defaults.SharedFileMask); err != nil {
		os.Remove(tmpName)
		return trace.ConvertSystemError(err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return trace.ConvertSystemError(err)
	}
	return nil
}

// Get implements blobstore.Store.
func (s *Store) Get(_ context.Context, name string) (io.ReadCloser, error) {
	target, err := s.path(name)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	f, err := os.Open(target)
	if err != nil {
		return nil, trace.ConvertSystemError(err)
	}
	return f, nil
}

// List implements blobstore.Store.
func (s *Store) List(_ context.Context, prefix string) ([]string, error) {
	var out []string
	err := filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if path == s.tempDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, prefix) {
			out = append(out, rel)
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
func (s *Store) Delete(_ context.Context, name string) error {
	target, err := s.path(name)
	if err != nil {
		return trace.Wrap(err)
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return trace.ConvertSystemError(err)
	}
	return nil
}

// Move implements blobstore.Store.
func (s *Store) Move(_ context.Context, src, dst string) error {
	srcPath, err := s.path(src)
	if err != nil {
		return trace.Wrap(err)
	}
	dstPath, err := s.path(dst)
	if err != nil {
		return trace.Wrap(err)
	}
	if err := os.MkdirAll(filepath.Dir(dstPath), defaults.SharedDirMask); err != nil {
		return trace.ConvertSystemError(err)
	}
	if err := os.Rename(srcPath, dstPath); err != nil {
		return trace.ConvertSystemError(err)
	}
	return nil
}

// AccessInfo implements blobstore.Store.
func (s *Store) AccessInfo(name string) string {
	target, err := s.path(name)
	if err != nil {
		return name
	}
	return target
}
