package framework

import (
	"container/list"
	"sync"
)

// Emitter keeps an explicit subscriber list per event kind.
// Emit delivers synchronously, in subscription order, to the subscribers
// present when the emission starts.
type Emitter[K comparable, V any] struct {
	subs map[K]*list.List
	lock sync.RWMutex
}

// Subscription is a registered listener.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Close removes the listener. Closing twice is a no-op.
func (s *Subscription) Close() error {
	if s != nil {
		s.once.Do(s.cancel)
	}
	return nil
}

// On registers fn for events of kind.
func (e *Emitter[K, V]) On(kind K, fn func(V)) *Subscription {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.subs == nil {
		e.subs = make(map[K]*list.List)
	}
	lst := e.subs[kind]
	if lst == nil {
		lst = list.New()
		e.subs[kind] = lst
	}
	elm := lst.PushBack(fn)
	return &Subscription{cancel: func() {
		e.lock.Lock()
		defer e.lock.Unlock()
		lst.Remove(elm)
		if lst.Len() == 0 && e.subs[kind] == lst {
			delete(e.subs, kind)
		}
	}}
}

// Emit delivers v to all listeners of kind and returns how many
// listeners received it.
func (e *Emitter[K, V]) Emit(kind K, v V) int {
	var handlers []func(V)
	e.lock.RLock()
	if lst := e.subs[kind]; lst != nil {
		handlers = make([]func(V), 0, lst.Len())
		for elm := lst.Front(); elm != nil; elm = elm.Next() {
			handlers = append(handlers, elm.Value.(func(V)))
		}
	}
	e.lock.RUnlock()
	for _, h := range handlers {
		h(v)
	}
	return len(handlers)
}

// Listeners returns the number of listeners of kind.
func (e *Emitter[K, V]) Listeners(kind K) int {
	e.lock.RLock()
	defer e.lock.RUnlock()
	if lst := e.subs[kind]; lst != nil {
		return lst.Len()
	}
	return 0
}
