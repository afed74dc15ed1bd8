package client

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/atedays1/ate-days-homebase-sub000/internal/domain"
	"github.com/atedays1/ate-days-homebase-sub000/internal/service"
	"github.com/atedays1/ate-days-homebase-sub000/internal/storage"
)

// source is one document to ingest, either a local file or an S3 object.
type source struct {
	Name   string
	Path   string
	Object *storage.ObjectLocation
}

func (s source) String() string {
	if s.Object != nil {
		return s.Object.String()
	}
	return s.Path
}

// objectStore is the part of the S3 client the ingest command reads with.
type objectStore interface {
	ListObjects(ctx context.Context, loc storage.ObjectLocation) ([]storage.ObjectMetadata, error)
	GetObject(ctx context.Context, loc storage.ObjectLocation) (io.ReadCloser, *storage.ObjectMetadata, error)
}

// expandLocal resolves files and directories into sources. Directories are
// walked recursively; hidden entries and unsupported extensions are skipped
// and documents are named by their path relative to the directory.
func expandLocal(paths []string) ([]source, error) {
	var sources []source
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}

		if !info.IsDir() {
			if _, err := domain.ContentTypeFromFilename(p); err != nil {
				return nil, fmt.Errorf("%s: %w", p, err)
			}
			sources = append(sources, source{Name: filepath.Base(p), Path: p})
			continue
		}

		found, err := walkDir(p)
		if err != nil {
			return nil, err
		}
		sources = append(sources, found...)
	}
	return sources, nil
}

func walkDir(root string) ([]source, error) {
	var sources []source
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !supported(p) {
			return nil
		}
		sources = append(sources, source{Name: documentName(root, p), Path: p})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}

	sort.Slice(sources, func(i, j int) bool { return sources[i].Name < sources[j].Name })
	return sources, nil
}

// expandS3 resolves an s3:// URI into sources. Prefixes list every supported
// object below them.
func expandS3(ctx context.Context, store objectStore, uri string) ([]source, error) {
	loc, err := storage.ParseS3URI(uri)
	if err != nil {
		return nil, err
	}

	if !loc.IsPrefix() {
		if !supported(loc.Key) {
			return nil, fmt.Errorf("%s: %w", uri, domain.ErrUnsupportedContentType)
		}
		return []source{{Name: path.Base(loc.Key), Object: &loc}}, nil
	}

	objects, err := store.ListObjects(ctx, loc)
	if err != nil {
		return nil, err
	}

	var sources []source
	for _, obj := range objects {
		if !supported(obj.Key) {
			continue
		}
		objLoc := storage.ObjectLocation{Bucket: loc.Bucket, Key: obj.Key}
		name := strings.TrimPrefix(obj.Key, loc.Key)
		sources = append(sources, source{Name: name, Object: &objLoc})
	}
	return sources, nil
}

func supported(name string) bool {
	_, err := domain.ContentTypeFromFilename(name)
	return err == nil
}

func documentName(root, p string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return filepath.Base(p)
	}
	return filepath.ToSlash(rel)
}

// lazyReader opens its source on the first Read so a batch of inputs does
// not hold every file or object open at once. It closes itself at EOF.
type lazyReader struct {
	open func() (io.ReadCloser, error)
	rc   io.ReadCloser
	done bool
}

func (l *lazyReader) Read(p []byte) (int, error) {
	if l.done {
		return 0, io.EOF
	}
	if l.rc == nil {
		rc, err := l.open()
		if err != nil {
			l.done = true
			return 0, err
		}
		l.rc = rc
	}

	n, err := l.rc.Read(p)
	if err == io.EOF {
		l.Close()
	}
	return n, err
}

func (l *lazyReader) Close() error {
	l.done = true
	if l.rc == nil {
		return nil
	}
	err := l.rc.Close()
	l.rc = nil
	return err
}

// inputs turns sources into ingest inputs with lazily opened bodies.
func inputs(ctx context.Context, store objectStore, sources []source, force bool) ([]service.IngestInput, []*lazyReader) {
	out := make([]service.IngestInput, 0, len(sources))
	readers := make([]*lazyReader, 0, len(sources))
	for _, src := range sources {
		src := src
		r := &lazyReader{open: func() (io.ReadCloser, error) {
			if src.Object != nil {
				if store == nil {
					return nil, fmt.Errorf("%s: s3 is not configured", src)
				}
				body, _, err := store.GetObject(ctx, *src.Object)
				return body, err
			}
			return os.Open(src.Path)
		}}
		readers = append(readers, r)
		out = append(out, service.IngestInput{Name: src.Name, Body: r, Force: force})
	}
	return out, readers
}
