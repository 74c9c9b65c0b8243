package parser

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/rlch/cuke"
)

// Loader parses feature files with caching, keyed by absolute path.
//
// The zero value is not usable; call NewLoader. Loaders are safe for
// concurrent use: the language server parses from multiple request handlers.
type Loader struct {
	mu    sync.Mutex
	cache map[string]*entry

	// ParseFunc parses one file's source. Defaults to Parse; the language
	// server overrides it to read from editor buffers.
	ParseFunc func(path string, src []byte) (*cuke.Feature, error)
}

type entry struct {
	feature *cuke.Feature
	err     error
}

// NewLoader creates an empty loader.
func NewLoader() *Loader {
	return &Loader{
		cache:     make(map[string]*entry),
		ParseFunc: Parse,
	}
}

// Load parses the feature file at path, returning a cached result when the
// path was loaded before. The error, too, is cached: a broken file stays
// broken until Invalidate.
func (l *Loader) Load(path string) (*cuke.Feature, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.cache[abs]; ok {
		return e.feature, e.err
	}

	e := &entry{}
	data, err := os.ReadFile(abs)
	if err != nil {
		e.err = &ParseError{Path: path, Err: err}
	} else {
		e.feature, e.err = l.ParseFunc(path, data)
	}
	l.cache[abs] = e

	return e.feature, e.err
}

// LoadSource parses src as the contents of path and caches the result,
// replacing any previous entry. The language server feeds edited buffers
// through here.
func (l *Loader) LoadSource(path string, src []byte) (*cuke.Feature, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	e := &entry{}
	e.feature, e.err = l.ParseFunc(path, src)

	l.mu.Lock()
	l.cache[abs] = e
	l.mu.Unlock()

	return e.feature, e.err
}

// Invalidate drops the cached entry for path, if any.
func (l *Loader) Invalidate(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}

	l.mu.Lock()
	delete(l.cache, abs)
	l.mu.Unlock()
}
