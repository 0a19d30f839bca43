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

// Package blobstoretest is a behavioral conformance suite run against
// every blobstore.Store implementation, grounded on the teacher's
// lib/blob/suite.BLOBSuite pattern of one shared suite exercised by each
// backend's own test file.
package blobstoretest

import (
	"bytes"
	"context"
	"io/ioutil"

	"github.com/gravitational/kubeface/internal/blobstore"

	"github.com/gravitational/trace"
	. "gopkg.in/check.v1" //nolint:revive,stylecheck // matches teacher's gocheck suite convention
)

// Suite exercises the full Store contract against whatever
// implementation the embedding test assigns to Store.
type Suite struct {
	Store blobstore.Store
}

// PutGetDelete verifies the basic write/read/delete cycle.
func (s *Suite) PutGetDelete(c *C) {
	ctx := context.Background()
	content := "hello, blob"
	c.Assert(s.Store.Put(ctx, "a/b", bytes.NewBufferString(content), ""), IsNil)

	r, err := s.Store.Get(ctx, "a/b")
	c.Assert(err, IsNil)
	out, err := ioutil.ReadAll(r)
	c.Assert(err, IsNil)
	c.Assert(r.Close(), IsNil)
	c.Assert(string(out), Equals, content)

	c.Assert(s.Store.Delete(ctx, "a/b"), IsNil)
	_, err = s.Store.Get(ctx, "a/b")
	c.Assert(trace.IsNotFound(err), Equals, true, Commentf("got %#v", err))
}

// PutOverwrites verifies Put is overwrite-safe.
func (s *Suite) PutOverwrites(c *C) {
	ctx := context.Background()
	c.Assert(s.Store.Put(ctx, "name", bytes.NewBufferString("v1"), ""), IsNil)
	c.Assert(s.Store.Put(ctx, "name", bytes.NewBufferString("v2"), ""), IsNil)

	r, err := s.Store.Get(ctx, "name")
	c.Assert(err, IsNil)
	out, err := ioutil.ReadAll(r)
	c.Assert(err, IsNil)
	c.Assert(string(out), Equals, "v2")
}

// DeleteIsIdempotent verifies deleting a missing blob is not an error.
func (s *Suite) DeleteIsIdempotent(c *C) {
	ctx := context.Background()
	c.Assert(s.Store.Delete(ctx, "never-existed"), IsNil)
	c.Assert(s.Store.Delete(ctx, "never-existed"), IsNil)
}

// ListByPrefix verifies prefix listing returns a lexicographically
// sorted view restricted to matching names.
func (s *Suite) ListByPrefix(c *C) {
	ctx := context.Background()
	for _, name := range []string{"result::t0::0", "result::t1::0", "input::t0"} {
		c.Assert(s.Store.Put(ctx, name, bytes.NewBufferString("x"), ""), IsNil)
	}
	names, err := s.Store.List(ctx, "result::")
	c.Assert(err, IsNil)
	c.Assert(names, DeepEquals, []string{"result::t0::0", "result::t1::0"})
}

// Move verifies the destination receives the source's content and the
// source no longer exists.
func (s *Suite) Move(c *C) {
	ctx := context.Background()
	c.Assert(s.Store.Put(ctx, "active::json::job.json", bytes.NewBufferString("{}"), "application/json"), IsNil)
	c.Assert(s.Store.Move(ctx, "active::json::job.json", "done::json::job.json"), IsNil)

	_, err := s.Store.Get(ctx, "active::json::job.json")
	c.Assert(trace.IsNotFound(err), Equals, true)

	r, err := s.Store.Get(ctx, "done::json::job.json")
	c.Assert(err, IsNil)
	out, err := ioutil.ReadAll(r)
	c.Assert(err, IsNil)
	c.Assert(string(out), Equals, "{}")
}

// AccessInfoIsNonEmpty verifies AccessInfo always returns something a
// human can look at in logs.
func (s *Suite) AccessInfoIsNonEmpty(c *C) {
	c.Assert(s.Store.AccessInfo("input::t0"), Not(Equals), "")
}
