// SPDX-License-Identifier: MIT

package storage

import (
	"bytes"
	"context"
	"image"
	"io"

	"github.com/minio/minio-go/v7"
)

// Remote is a thin Storage variant over an S3-compatible bucket,
// grounded on the teacher's osmviews-builder upload path
// (cmd/osmviews-builder/storage.go), for publishing finished tile
// outputs. It only implements the write/list/exists subset a
// publishing step needs; every read and filesystem-shape capability
// returns ErrUnsupported since no stage reads its own inputs back from
// the bucket mid-pipeline.
type Remote struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewRemote returns a Remote-backed Storage writing under prefix in
// bucket via an already-configured minio client.
func NewRemote(client *minio.Client, bucket, prefix string) *Remote {
	return &Remote{client: client, bucket: bucket, prefix: prefix}
}

func (r *Remote) key(path string) string {
	if r.prefix == "" {
		return path
	}
	return r.prefix + "/" + path
}

func (r *Remote) CreateDirAll(path string) error { return nil } // buckets have no directories

func (r *Remote) List(path string) ([]string, error) {
	ctx := context.Background()
	var out []string
	for obj := range r.client.ListObjects(ctx, r.bucket, minio.ListObjectsOptions{
		Prefix:    r.key(path),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		out = append(out, obj.Key)
	}
	return out, nil
}

func (r *Remote) Exists(path string) bool {
	_, err := r.client.StatObject(context.Background(), r.bucket, r.key(path), minio.StatObjectOptions{})
	return err == nil
}

func (r *Remote) Open(path string) (ReadSeekCloser, error) {
	return nil, ErrUnsupported
}

// remoteWriter buffers the full object in memory and uploads on
// Close, matching PutObject's need for a definite length.
type remoteWriter struct {
	r    *Remote
	path string
	buf  bytes.Buffer
}

func (w *remoteWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }
func (w *remoteWriter) Seek(offset int64, whence int) (int64, error) {
	return 0, ErrUnsupported
}
func (w *remoteWriter) Close() error {
	_, err := w.r.client.PutObject(context.Background(), w.r.bucket, w.r.key(w.path),
		bytes.NewReader(w.buf.Bytes()), int64(w.buf.Len()), minio.PutObjectOptions{})
	return err
}

func (r *Remote) Create(path string) (WriteSeekCloser, error) {
	return &remoteWriter{r: r, path: path}, nil
}

func (r *Remote) ReadToString(path string) (string, error) { return "", ErrUnsupported }
func (r *Remote) RemoveFile(path string) error {
	return r.client.RemoveObject(context.Background(), r.bucket, r.key(path), minio.RemoveObjectOptions{})
}
func (r *Remote) RemoveDirAll(path string) error { return ErrUnsupported }

func (r *Remote) FileSize(path string) (int64, error) {
	info, err := r.client.StatObject(context.Background(), r.bucket, r.key(path), minio.StatObjectOptions{})
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}

func (r *Remote) Copy(from, to string) error {
	_, err := r.client.CopyObject(context.Background(),
		minio.CopyDestOptions{Bucket: r.bucket, Object: r.key(to)},
		minio.CopySrcOptions{Bucket: r.bucket, Object: r.key(from)})
	return err
}

func (r *Remote) ReadImagePNG(path string) (image.Image, error)      { return nil, ErrUnsupported }
func (r *Remote) ReadShapefile(path string) (ReadSeekCloser, error) { return nil, ErrUnsupported }
func (r *Remote) ExtractZip(archive, target string) error           { return ErrUnsupported }

var _ io.Closer = (*remoteWriter)(nil)
