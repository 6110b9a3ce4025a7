// Package inmemstore is the in-memory session store used in DEV/TEST mode.
package inmemstore

import (
	"context"
	"sync"

	"github.com/NguetchuissiBrunel/xccm-gateway/core/session"
)

type (
	Provider struct {
		mu      sync.Mutex
		clients map[string]*clientStore
	}

	clientStore struct {
		sync.RWMutex
		table map[string]string
		subs  []chan session.Event
	}
)

var _ session.Provider = (*Provider)(nil)

func NewProvider() *Provider {
	return &Provider{clients: make(map[string]*clientStore)}
}

func (p *Provider) ForClient(clientID string) session.Store {
	p.mu.Lock()
	defer p.mu.Unlock()
	cs, ok := p.clients[clientID]
	if !ok {
		cs = &clientStore{table: make(map[string]string)}
		p.clients[clientID] = cs
	}
	return cs
}

func (cs *clientStore) Get(_ context.Context, key string) (string, error) {
	cs.RLock()
	defer cs.RUnlock()
	if v, ok := cs.table[key]; ok {
		return v, nil
	}
	return "", session.ErrKeyNotFound
}

func (cs *clientStore) Set(_ context.Context, key, value string) error {
	cs.Lock()
	cs.table[key] = value
	subs := append([]chan session.Event(nil), cs.subs...)
	cs.Unlock()

	cs.notify(subs, session.Event{Key: key, Value: value})
	return nil
}

func (cs *clientStore) Delete(_ context.Context, keys ...string) error {
	cs.Lock()
	for _, key := range keys {
		delete(cs.table, key)
	}
	subs := append([]chan session.Event(nil), cs.subs...)
	cs.Unlock()

	for _, key := range keys {
		cs.notify(subs, session.Event{Key: key})
	}
	return nil
}

func (cs *clientStore) Watch(ctx context.Context) (<-chan session.Event, error) {
	sub := make(chan session.Event, 16)
	cs.Lock()
	cs.subs = append(cs.subs, sub)
	cs.Unlock()

	// unsubscribe on ctx done; the channel is left open for any concurrent
	// writer that copied the subscriber list before removal
	go func() {
		<-ctx.Done()
		cs.Lock()
		for i, s := range cs.subs {
			if s == sub {
				cs.subs = append(cs.subs[:i], cs.subs[i+1:]...)
				break
			}
		}
		cs.Unlock()
	}()
	return sub, nil
}

// notify drops events for subscribers that fell behind; the reconciler
// re-reads the store on every signal anyway.
func (cs *clientStore) notify(subs []chan session.Event, ev session.Event) {
	for _, sub := range subs {
		select {
		case sub <- ev:
		default:
		}
	}
}
