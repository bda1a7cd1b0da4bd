package client

import (
	"strings"
	"sync"
)

// fallbackSymbols maps common instrument names to broker ids. Demo and live
// ids are stable for the majors; used when the security-list exchange fails
// or returns nothing.
var fallbackSymbols = map[string]string{
	"EURUSD": "1", "GBPUSD": "2", "USDJPY": "4", "GBPJPY": "6",
	"AUDUSD": "9", "NZDUSD": "13", "USDCAD": "14", "USDCHF": "15",
	"XAUUSD": "41", "ETHUSD": "1002", "BTCUSD": "1001",
}

// SymbolMap is the bidirectional name/broker-id mapping, populated from the
// Security List response or the static fallback. Read-mostly after warm-up.
type SymbolMap struct {
	mu sync.RWMutex
	m  map[string]string // name -> id
}

// NewSymbolMap returns an empty map.
func NewSymbolMap() *SymbolMap {
	return &SymbolMap{m: make(map[string]string)}
}

// Put records one name -> id pair.
func (s *SymbolMap) Put(name, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[name] = id
}

// Resolve maps a symbol name to its broker id, case-insensitively.
func (s *SymbolMap) Resolve(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.m[name]; ok {
		return id, true
	}
	upper := strings.ToUpper(name)
	for k, v := range s.m {
		if strings.ToUpper(k) == upper {
			return v, true
		}
	}
	return "", false
}

// NameOf reverse-looks-up a broker id; returns the id itself when unknown.
func (s *SymbolMap) NameOf(id string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for name, sid := range s.m {
		if sid == id {
			return name
		}
	}
	return id
}

// Len reports how many symbols are mapped.
func (s *SymbolMap) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// Clear drops all entries ahead of a fresh security-list fetch.
func (s *SymbolMap) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m = make(map[string]string)
}

// LoadFallback installs the static table for names the broker did not
// supply. Broker-provided ids always win; the static ids are guesses.
func (s *SymbolMap) LoadFallback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, id := range fallbackSymbols {
		if _, ok := s.m[name]; !ok {
			s.m[name] = id
		}
	}
}
