// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package stackedmap implements a map stack with save-restore semantics.
//
// It backs the working set's checkpoint/revert machinery: one level is
// pushed per call depth, and popping a level reverts every Put since the
// matching Push.
package stackedmap

// StackedMap maintains maps in a stack.
// Each map inherits key/value of the map at lower level.
type StackedMap struct {
	src            MapGetter
	mapStack       stack[*level]
	keyRevisionMap map[any]*stack[int]
}

type level struct {
	kvs     map[any]any
	journal []*journalEntry
}

func newLevel() *level {
	return &level{kvs: make(map[any]any)}
}

type journalEntry struct {
	key   any
	value any
}

// MapGetter defines the getter method of the source map.
// It's consulted when a key is found in no level.
type MapGetter func(key any) (value any, exist bool, err error)

// New creates an instance of StackedMap.
// src acts as the source of data.
func New(src MapGetter) *StackedMap {
	return &StackedMap{
		src,
		stack[*level]{},
		make(map[any]*stack[int]),
	}
}

// Depth returns the depth of the stack.
func (sm *StackedMap) Depth() int {
	return len(sm.mapStack)
}

// Push pushes a new map on the stack.
// It returns the stack depth before push.
func (sm *StackedMap) Push() int {
	sm.mapStack.push(newLevel())
	return len(sm.mapStack) - 1
}

// Pop pops the map at the top of the stack.
// It reverts all Put operations since the last Push.
func (sm *StackedMap) Pop() {
	// pop key revisions
	top := sm.mapStack.top()
	for key := range top.kvs {
		revs := sm.keyRevisionMap[key]
		revs.pop()
		if len(*revs) == 0 {
			delete(sm.keyRevisionMap, key)
		}
	}
	sm.mapStack.pop()
}

// PopTo pops maps until the stack depth reaches depth.
// It panics when depth exceeds the current stack depth, which indicates
// a checkpoint nesting violation in the caller.
func (sm *StackedMap) PopTo(depth int) {
	if depth > len(sm.mapStack) {
		panic("stackedmap: checkpoint nesting violation")
	}
	for len(sm.mapStack) > depth {
		sm.Pop()
	}
}

// Get gets the value for the given key.
// The second return value indicates whether the key was found.
func (sm *StackedMap) Get(key any) (any, bool, error) {
	if revs, ok := sm.keyRevisionMap[key]; ok {
		lvl := sm.mapStack[revs.top()]
		if v, ok := lvl.kvs[key]; ok {
			return v, true, nil
		}
	}
	return sm.src(key)
}

// Put puts a key/value pair into the map at the stack top.
// It panics if the stack is empty.
func (sm *StackedMap) Put(key, value any) {
	top := sm.mapStack.top()
	if _, ok := top.kvs[key]; !ok {
		// record key revision for fast access, once per level
		rev := len(sm.mapStack) - 1
		if revs, ok := sm.keyRevisionMap[key]; ok {
			revs.push(rev)
		} else {
			sm.keyRevisionMap[key] = &stack[int]{rev}
		}
	}
	top.kvs[key] = value
	top.journal = append(top.journal, &journalEntry{key: key, value: value})
}

// Journal traverses the journal of all Put operations in order.
// The traversal stops when cb returns false.
func (sm *StackedMap) Journal(cb func(key, value any) bool) {
	for _, lvl := range sm.mapStack {
		for _, e := range lvl.journal {
			if !cb(e.key, e.value) {
				return
			}
		}
	}
}

// stack ops
type stack[T any] []T

func (s *stack[T]) pop() {
	*s = (*s)[:len(*s)-1]
}

func (s *stack[T]) push(v T) {
	*s = append(*s, v)
}

func (s stack[T]) top() T {
	return s[len(s)-1]
}
