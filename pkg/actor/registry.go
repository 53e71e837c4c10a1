// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package actor

import (
	"sync"

	cerrors "github.com/pingcap/tiactor/pkg/errors"
)

// Registry maps names to actor references. A name is bound to at most one
// actor and an actor holds at most one name.
type Registry struct {
	mu    sync.RWMutex
	names map[string]*Ref
	byID  map[ID]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		names: make(map[string]*Ref),
		byID:  make(map[ID]string),
	}
}

// Register binds name to ref. It fails with ErrActorNameTaken if the name
// is bound, or if ref already holds another name.
func (r *Registry) Register(name string, ref *Ref) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.names[name]; ok {
		return cerrors.ErrActorNameTaken.GenWithStackByArgs(name)
	}
	if old, ok := r.byID[ref.id]; ok {
		return cerrors.ErrActorNameTaken.GenWithStackByArgs(old)
	}
	r.names[name] = ref
	r.byID[ref.id] = name
	return nil
}

// Lookup returns the actor bound to name.
func (r *Registry) Lookup(name string) (*Ref, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ref, ok := r.names[name]
	return ref, ok
}

// NameOf returns the name bound to the actor with the given ID.
func (r *Registry) NameOf(id ID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byID[id]
	return name, ok
}

// Unregister removes the binding of name. It returns false if name is not
// bound.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.names[name]
	if !ok {
		return false
	}
	delete(r.names, name)
	delete(r.byID, ref.id)
	return true
}

// unregisterActor drops the name of a terminated actor.
func (r *Registry) unregisterActor(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name, ok := r.byID[id]; ok {
		delete(r.names, name)
		delete(r.byID, id)
	}
}

// Len returns the number of bound names.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}
