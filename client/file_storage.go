package client

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileStorage keeps one file per key in a directory. Processes sharing the
// directory see each other's writes through fsnotify.
type FileStorage struct {
	dir string

	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	subscribers map[int]func(string)
	nextID      int
	done        chan struct{}
}

// NewFileStorage creates dir if needed
func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating storage dir: %w", err)
	}
	return &FileStorage{
		dir:         dir,
		subscribers: make(map[int]func(string)),
	}, nil
}

func (f *FileStorage) Get(key string) (string, bool, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading %s: %w", key, err)
	}
	return string(data), true, nil
}

// Set writes through a temp file and rename so readers never see a partial value
func (f *FileStorage) Set(key, value string) error {
	tmp, err := os.CreateTemp(f.dir, ".tmp-"+key+"-")
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), f.path(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (f *FileStorage) Delete(keys ...string) error {
	for _, key := range keys {
		if err := os.Remove(f.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("deleting %s: %w", key, err)
		}
	}
	return nil
}

// Subscribe starts the directory watcher on first use
func (f *FileStorage) Subscribe(fn func(key string)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.watcher == nil {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("creating watcher: %w", err)
		}
		if err := watcher.Add(f.dir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("watching %s: %w", f.dir, err)
		}
		f.watcher = watcher
		f.done = make(chan struct{})
		go f.watch(watcher, f.done)
	}

	id := f.nextID
	f.nextID++
	f.subscribers[id] = fn

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subscribers, id)
	}, nil
}

// Close stops the watcher; Get, Set and Delete keep working
func (f *FileStorage) Close() error {
	f.mu.Lock()
	watcher, done := f.watcher, f.done
	f.watcher, f.done = nil, nil
	f.mu.Unlock()

	if watcher == nil {
		return nil
	}
	err := watcher.Close()
	<-done
	return err
}

func (f *FileStorage) watch(watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			key := filepath.Base(event.Name)
			if strings.HasPrefix(key, ".") {
				continue
			}
			f.notify(key)
		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (f *FileStorage) notify(key string) {
	f.mu.Lock()
	fns := make([]func(string), 0, len(f.subscribers))
	for _, fn := range f.subscribers {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(key)
	}
}

func (f *FileStorage) path(key string) string {
	return filepath.Join(f.dir, key)
}
