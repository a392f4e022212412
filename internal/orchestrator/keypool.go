package orchestrator

import (
	"encoding/hex"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// Key is one credential in a run's pool.
type Key struct {
	Index       int
	Credential  string
	Fingerprint string
}

// Fingerprint identifies a credential in logs without revealing it.
func Fingerprint(credential string) string {
	sum := blake2b.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:6])
}

// KeyPool tracks which credentials are exhausted during a single run. The
// exhausted set only grows until Reset.
type KeyPool struct {
	mu        sync.Mutex
	keys      []Key
	exhausted []bool
}

// NewKeyPool drops blank and duplicate credentials, keeping first-seen order.
func NewKeyPool(credentials []string) *KeyPool {
	p := &KeyPool{}
	seen := make(map[string]struct{}, len(credentials))
	for _, c := range credentials {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		p.keys = append(p.keys, Key{Index: len(p.keys), Credential: c, Fingerprint: Fingerprint(c)})
	}
	p.exhausted = make([]bool, len(p.keys))
	return p
}

func (p *KeyPool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.exhausted {
		p.exhausted[i] = false
	}
}

func (p *KeyPool) Len() int {
	return len(p.keys)
}

func (p *KeyPool) Key(i int) Key {
	return p.keys[i]
}

// Exhaust marks key i exhausted and returns how many keys remain usable.
func (p *KeyPool) Exhaust(i int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i >= 0 && i < len(p.exhausted) {
		p.exhausted[i] = true
	}
	return p.available()
}

func (p *KeyPool) IsExhausted(i int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.exhausted) {
		return true
	}
	return p.exhausted[i]
}

func (p *KeyPool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available()
}

func (p *KeyPool) available() int {
	n := 0
	for _, ex := range p.exhausted {
		if !ex {
			n++
		}
	}
	return n
}
