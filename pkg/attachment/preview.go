package attachment

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// blobScheme prefixes every preview handle URL.
const blobScheme = "blob:"

// ErrRevoked is returned when resolving a preview that was already released.
var ErrRevoked = errors.New("preview revoked")

// Previews is an in-memory blob store handing out revocable preview handles,
// the same contract a browser offers with object URLs. Every handle must be
// released exactly once; Outstanding reports handles that were not.
type Previews struct {
	mu    sync.Mutex
	blobs map[string]File

	acquired int
	released int
}

// NewPreviews returns an empty store.
func NewPreviews() *Previews {
	return &Previews{
		blobs: make(map[string]File),
	}
}

// Acquire registers f and returns a handle for displaying it.
func (p *Previews) Acquire(f File) *Preview {
	url := blobScheme + uuid.NewString()

	p.mu.Lock()
	p.blobs[url] = f
	p.acquired++
	p.mu.Unlock()

	return &Preview{URL: url, store: p}
}

// Resolve returns the file behind a live preview URL.
func (p *Previews) Resolve(url string) (File, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, ok := p.blobs[url]
	if !ok {
		return File{}, ErrRevoked
	}
	return f, nil
}

// Outstanding returns the number of handles acquired but not yet released.
func (p *Previews) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.blobs)
}

// Stats returns the total number of acquired and released handles.
func (p *Previews) Stats() (acquired, released int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquired, p.released
}

func (p *Previews) revoke(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.blobs[url]; ok {
		delete(p.blobs, url)
		p.released++
	}
}

// Preview is a revocable handle to an attachment held by a Previews store.
type Preview struct {
	URL string

	store *Previews
	once  sync.Once
}

// Release revokes the handle. Only the first call has an effect.
func (h *Preview) Release() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		h.store.revoke(h.URL)
	})
}
