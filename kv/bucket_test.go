// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kv

import (
	"errors"
	"reflect"
	"testing"
)

type mem map[string]string

func (m mem) Get(k []byte) ([]byte, error) {
	if v, ok := m[string(k)]; ok {
		return []byte(v), nil
	}
	return nil, errors.New("not found")
}

func (m mem) Has(k []byte) (bool, error) {
	_, ok := m[string(k)]
	return ok, nil
}

func (m mem) Put(k, v []byte) error {
	m[string(k)] = string(v)
	return nil
}

func (m mem) Delete(k []byte) error {
	delete(m, string(k))
	return nil
}

func (m mem) IsNotFound(err error) bool {
	return true
}

func TestBucketGetter(t *testing.T) {
	m := mem{}
	b := Bucket("b")

	getter := b.NewGetter(m)
	putter := b.NewPutter(m)

	if err := putter.Put([]byte("key"), []byte("value")); err != nil {
		t.Fatal(err)
	}
	if _, ok := m["bkey"]; !ok {
		t.Fatal("put should prepend bucket prefix")
	}

	v, err := getter.Get([]byte("key"))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(v, []byte("value")) {
		t.Fatalf("got %v", v)
	}

	has, err := getter.Has([]byte("key"))
	if err != nil {
		t.Fatal(err)
	}
	if !has {
		t.Fatal("should have key")
	}

	if err := putter.Delete([]byte("key")); err != nil {
		t.Fatal(err)
	}
	if _, ok := m["bkey"]; ok {
		t.Fatal("delete should remove prefixed key")
	}
}

func TestNestedBucket(t *testing.T) {
	m := mem{}

	inner := Bucket("b1").NewPutter(m)
	nested := Bucket("b2").NewPutter(inner)

	if err := nested.Put([]byte("key"), []byte("value")); err != nil {
		t.Fatal(err)
	}
	if _, ok := m["b1b2key"]; !ok {
		t.Fatal("nested buckets should chain prefixes")
	}
}
