package debugger

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

const firstHandle = 1000

// handles maps opaque integer references to scope keys. A reference is
// never reused and never remapped; reset only forgets existing mappings.
type handles struct {
	mu   sync.Mutex
	next int
	refs map[int]string
}

func newHandles() *handles {
	return &handles{next: firstHandle, refs: map[int]string{}}
}

func (h *handles) create(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	ref := h.next
	h.next++
	h.refs[ref] = key
	return ref
}

func (h *handles) get(ref int) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key, ok := h.refs[ref]
	return key, ok
}

func (h *handles) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refs = map[int]string{}
}

func (h *handles) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.refs)
}

// scopeSep joins a scope kind and a frame index. Kinds must not contain it.
const scopeSep = "_"

func scopeKey(kind string, frame int) string {
	return kind + scopeSep + strconv.Itoa(frame)
}

func parseScopeKey(key string) (string, int, error) {
	kind, index, ok := strings.Cut(key, scopeSep)
	if !ok {
		return "", 0, fmt.Errorf("malformed scope key %q", key)
	}
	frame, err := strconv.Atoi(index)
	if err != nil {
		return "", 0, fmt.Errorf("malformed scope key %q: %w", key, err)
	}
	return kind, frame, nil
}
