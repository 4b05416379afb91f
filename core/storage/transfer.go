package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/spf13/afero"
)

// ErrNoBlobs is returned when nothing matches the source stem.
var ErrNoBlobs = errors.New("no blobs match source")

// Transfer copies a record's blobs. Every file whose name starts with the stem of
// srcPath (the name without extension) is copied into dstDir. Existing files are kept.
type Transfer interface {
	Copy(ctx context.Context, srcPath, dstDir string) error
}

// splitStem returns the directory and the extension-less name of a blob path.
func splitStem(p string) (dir, stem string) {
	dir, name := path.Split(p)
	return strings.TrimSuffix(dir, "/"), strings.TrimSuffix(name, path.Ext(name))
}

// FileTransfer copies blobs between mounted file systems.
type FileTransfer struct {
	fs afero.Fs
}

// NewFileTransfer creates a transfer on fs. A nil fs means the OS file system.
func NewFileTransfer(fs afero.Fs) *FileTransfer {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &FileTransfer{fs: fs}
}

func (t *FileTransfer) Copy(ctx context.Context, srcPath, dstDir string) error {
	dir, stem := splitStem(filepath.ToSlash(srcPath))
	if stem == "" {
		return fmt.Errorf("invalid source path %q", srcPath)
	}

	matches, err := afero.Glob(t.fs, filepath.Join(filepath.FromSlash(dir), escapeGlob(stem)+"*"))
	if err != nil {
		return fmt.Errorf("match %s: %w", srcPath, err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("%w: %s", ErrNoBlobs, srcPath)
	}

	if err := t.fs.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dstDir, err)
	}

	copied := 0
	for _, src := range matches {
		if err := ctx.Err(); err != nil {
			return err
		}
		info, err := t.fs.Stat(src)
		if err != nil {
			return fmt.Errorf("stat %s: %w", src, err)
		}
		if info.IsDir() {
			continue
		}
		if err := t.copyFile(src, filepath.Join(dstDir, filepath.Base(src)), info.Mode()); err != nil {
			return err
		}
		copied++
	}
	if copied == 0 {
		return fmt.Errorf("%w: %s", ErrNoBlobs, srcPath)
	}
	return nil
}

// copyFile writes through a temporary name so a partial copy is never taken for a blob.
func (t *FileTransfer) copyFile(src, dst string, mode os.FileMode) error {
	exists, err := afero.Exists(t.fs, dst)
	if err != nil {
		return fmt.Errorf("stat %s: %w", dst, err)
	}
	if exists {
		return nil
	}

	in, err := t.fs.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	tmp := dst + ".part"
	out, err := t.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = t.fs.Remove(tmp)
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		_ = t.fs.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := t.fs.Rename(tmp, dst); err != nil {
		_ = t.fs.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`)
	return r.Replace(s)
}

// ObjectTransfer copies blobs between buckets with server-side copies. Paths have the
// form "bucket/key".
type ObjectTransfer struct {
	client Client
}

// NewObjectTransfer creates a transfer on client.
func NewObjectTransfer(client Client) *ObjectTransfer {
	return &ObjectTransfer{client: client}
}

func splitBucket(p string) (bucket, key string) {
	p = strings.TrimPrefix(p, "/")
	bucket, key, _ = strings.Cut(p, "/")
	return bucket, key
}

func (t *ObjectTransfer) Copy(ctx context.Context, srcPath, dstDir string) error {
	srcBucket, srcKey := splitBucket(srcPath)
	dstBucket, dstPrefix := splitBucket(dstDir)
	if srcBucket == "" || srcKey == "" || dstBucket == "" {
		return fmt.Errorf("invalid object paths %q -> %q", srcPath, dstDir)
	}

	dir, stem := splitStem(srcKey)
	prefix := stem
	if dir != "" {
		prefix = dir + "/" + stem
	}

	copied := 0
	for obj := range t.client.ListObjects(ctx, srcBucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return fmt.Errorf("list %s/%s: %w", srcBucket, prefix, obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}

		dstKey := path.Join(dstPrefix, path.Base(obj.Key))
		exists, err := t.exists(ctx, dstBucket, dstKey)
		if err != nil {
			return err
		}
		if !exists {
			_, err = t.client.CopyObject(ctx,
				minio.CopyDestOptions{Bucket: dstBucket, Object: dstKey},
				minio.CopySrcOptions{Bucket: srcBucket, Object: obj.Key})
			if err != nil {
				return fmt.Errorf("copy %s/%s: %w", srcBucket, obj.Key, err)
			}
		}
		copied++
	}
	if copied == 0 {
		return fmt.Errorf("%w: %s", ErrNoBlobs, srcPath)
	}
	return nil
}

func (t *ObjectTransfer) exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := t.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, fmt.Errorf("stat %s/%s: %w", bucket, key, err)
}

// Mode selects a transfer implementation.
type Mode string

const (
	ModeFile   Mode = "file"
	ModeObject Mode = "object"
)

// NewTransfer builds the transfer for mode. Object mode connects with cfg.
func NewTransfer(mode Mode, cfg Config) (Transfer, error) {
	switch mode {
	case ModeFile, "":
		return NewFileTransfer(nil), nil
	case ModeObject:
		client, err := NewClient(cfg)
		if err != nil {
			return nil, err
		}
		return NewObjectTransfer(client), nil
	default:
		return nil, fmt.Errorf("unknown transfer mode %q", mode)
	}
}
