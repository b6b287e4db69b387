// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type ObjectInfo struct {
	Key  string
	Size int64
}

// Storage is the subset of object storage operations this tool needs.
// The production implementation talks to an S3-compatible server through
// minio; tests use FakeStorage from storage_test.go.
type Storage interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
	FGetObject(ctx context.Context, bucket, key, localpath string) error
}

type remoteStorage struct {
	client *minio.Client
}

func (s *remoteStorage) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return s.client.BucketExists(ctx, bucket)
}

func (s *remoteStorage) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	opts := minio.ListObjectsOptions{Prefix: prefix, Recursive: true}
	result := make([]ObjectInfo, 0)
	for f := range s.client.ListObjects(ctx, bucket, opts) {
		if f.Err != nil {
			return nil, f.Err
		}
		result = append(result, ObjectInfo{Key: f.Key, Size: f.Size})
	}
	return result, nil
}

func (s *remoteStorage) FGetObject(ctx context.Context, bucket, key, localpath string) error {
	return s.client.FGetObject(ctx, bucket, key, localpath, minio.GetObjectOptions{})
}

// NewStorage sets up a client for accessing S3-compatible object storage.
func NewStorage(keypath string) (Storage, error) {
	data, err := os.ReadFile(keypath)
	if err != nil {
		return nil, err
	}

	var config struct{ Endpoint, Key, Secret string }
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.Key, config.Secret, ""),
		Secure: true,
	})
	if err != nil {
		return nil, err
	}

	client.SetAppInfo("TiffStatsBuilder", "0.1")
	return &remoteStorage{client: client}, nil
}

// TiffObject is one raster tile awaiting processing: its storage key and
// the group label derived from its location under the listing prefix.
type TiffObject struct {
	Key   string
	Group string
}

// ListTiffs lists the TIFF files under a bucket prefix, sorted by key
// for a reproducible processing order. The group is the subdirectory of
// the key relative to the prefix, or "root" for files directly under it.
func ListTiffs(ctx context.Context, s Storage, bucket, prefix string) ([]TiffObject, error) {
	files, err := s.List(ctx, bucket, prefix)
	if err != nil {
		return nil, err
	}
	tiffs := make([]TiffObject, 0, len(files))
	for _, f := range files {
		lower := strings.ToLower(f.Key)
		if !strings.HasSuffix(lower, ".tif") && !strings.HasSuffix(lower, ".tiff") {
			continue
		}
		tiffs = append(tiffs, TiffObject{Key: f.Key, Group: groupForKey(f.Key, prefix)})
	}
	sort.Slice(tiffs, func(i, j int) bool { return tiffs[i].Key < tiffs[j].Key })
	return tiffs, nil
}

func groupForKey(key, prefix string) string {
	rel := strings.TrimPrefix(key, prefix)
	dir := path.Dir(rel)
	if dir == "." || dir == "/" || dir == "" {
		return "root"
	}
	return dir
}

// downloadTiff fetches one tile into cachedir. The caller removes the
// file as soon as the tile has been folded into the aggregate; tiles can
// be large relative to memory and disk, so never more than one per
// worker exists at a time.
func downloadTiff(ctx context.Context, s Storage, bucket string, obj TiffObject, cachedir string) (string, error) {
	if err := os.MkdirAll(cachedir, os.ModePerm); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(cachedir, "*.tif")
	if err != nil {
		return "", err
	}
	localpath := f.Name()
	if err := f.Close(); err != nil {
		return "", err
	}
	if err := s.FGetObject(ctx, bucket, obj.Key, localpath); err != nil {
		os.Remove(localpath)
		return "", fmt.Errorf("fetching %s: %w", obj.Key, err)
	}
	return localpath, nil
}
