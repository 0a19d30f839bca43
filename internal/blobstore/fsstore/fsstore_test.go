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

package fsstore

import (
	"testing"

	"github.com/gravitational/kubeface/internal/blobstore/blobstoretest"

	check "gopkg.in/check.v1"
)

func TestFSStore(t *testing.T) { check.TestingT(t) }

type FSStoreSuite struct {
	blobstoretest.Suite
}

var _ = check.Suite(&FSStoreSuite{})

func (s *FSStoreSuite) SetUpTest(c *check.C) {
	store, err := New(c.MkDir())
	c.Assert(err, check.IsNil)
	s.Suite.Store = store
}

func (s *FSStoreSuite) TestPutGetDelete(c *check.C)         { s.Suite.PutGetDelete(c) }
func (s *FSStoreSuite) TestPutOverwrites(c *check.C)        { s.Suite.PutOverwrites(c) }
func (s *FSStoreSuite) TestDeleteIsIdempotent(c *check.C)   { s.Suite.DeleteIsIdempotent(c) }
func (s *FSStoreSuite) TestListByPrefix(c *check.C)         { s.Suite.ListByPrefix(c) }
func (s *FSStoreSuite) TestMove(c *check.C)                 { s.Suite.Move(c) }
func (s *FSStoreSuite) TestAccessInfoIsNonEmpty(c *check.C) { s.Suite.AccessInfoIsNonEmpty(c) }

func (s *FSStoreSuite) TestRejectsEscapingNames(c *check.C) {
	store, err := New(c.MkDir())
	c.Assert(err, check.IsNil)
	_, err = store.path("../../etc/passwd")
	c.Assert(err, check.NotNil)
}
