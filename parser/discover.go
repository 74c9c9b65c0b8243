package parser

import (
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/boyter/gocodewalker"

	"github.com/rlch/cuke"
)

// Discover collects the .feature files under each root, respecting .gitignore
// and .ignore files. Roots that are files are taken as-is. The result is
// sorted within each root so runs are reproducible.
func Discover(roots ...string) ([]string, error) {
	var out []string
	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if strings.HasSuffix(root, ".feature") {
				out = append(out, root)
			}

			continue
		}

		var files []string
		var mu sync.Mutex
		err = walkDir(root, func(path string) {
			mu.Lock()
			files = append(files, path)
			mu.Unlock()
		})
		if err != nil {
			return nil, err
		}
		sort.Strings(files)
		out = append(out, files...)
	}

	return out, nil
}

// walkDir walks a directory for .feature files, respecting .gitignore.
func walkDir(root string, callback func(path string)) error {
	fileListQueue := make(chan *gocodewalker.File, 100)

	fileWalker := gocodewalker.NewFileWalker(root, fileListQueue)
	fileWalker.AllowListExtensions = []string{"feature"}

	var walkErr error
	fileWalker.SetErrorHandler(func(e error) bool {
		walkErr = e

		return true
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for f := range fileListQueue {
			callback(f.Location)
		}
	}()

	if err := fileWalker.Start(); err != nil {
		return err
	}
	wg.Wait()

	return walkErr
}

// Features lazily discovers and parses the features under roots, yielding
// them in path order. Parse failures yield a nil feature with a *ParseError;
// the sequence continues with the remaining files.
func Features(roots ...string) iter.Seq2[*cuke.Feature, error] {
	return func(yield func(*cuke.Feature, error) bool) {
		paths, err := Discover(roots...)
		if err != nil {
			yield(nil, &ParseError{Path: strings.Join(roots, string(filepath.ListSeparator)), Err: err})

			return
		}
		for _, path := range paths {
			if !yield(ParseFile(path)) {
				return
			}
		}
	}
}
