/*
Copyright 2026 The Capsule Authors

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

package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertThenGet(t *testing.T) {
	c := New()
	c.Insert("k", []byte("v"), time.Minute)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func TestCleanUpRemovesExpired(t *testing.T) {
	c := New()
	c.Insert("k", []byte("v"), time.Millisecond)

	require.Eventually(t, func() bool {
		return c.CleanUp() >= 1
	}, time.Second, time.Millisecond*5)

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestReinsertResetsTTL(t *testing.T) {
	c := New()
	c.Insert("k", []byte("old"), time.Millisecond*10)
	time.Sleep(time.Millisecond * 20)

	// the first entry's TTL would have elapsed by now, but the second
	// insert replaced it before any clean_up ran.
	c.Insert("k", []byte("new"), time.Minute)
	removed := c.CleanUp()
	assert.Equal(t, 0, removed)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("new"), v)
}

func TestRemoveLeavesQueueConsistent(t *testing.T) {
	c := New()
	c.Insert("k", []byte("v"), time.Millisecond)
	c.Remove("k")

	time.Sleep(time.Millisecond * 10)
	removed := c.CleanUp()
	assert.Equal(t, 0, removed)

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestLen(t *testing.T) {
	c := New()
	assert.Equal(t, 0, c.Len())
	c.Insert("a", []byte("1"), time.Minute)
	c.Insert("b", []byte("2"), time.Minute)
	assert.Equal(t, 2, c.Len())
}
