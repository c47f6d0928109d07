package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/bitfantasy/nimo-mis/internal/mis/entity"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig MinIO 连接配置
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinIOStore 基于对象存储的文档库
// A folder is a zero-byte marker object "<folder>/" whose user metadata holds the folder
// attributes; files are objects under that prefix with their attributes in user metadata.
type MinIOStore struct {
	client *minio.Client
	bucket string
}

// NewMinIOStore 创建 MinIO 文档库
func NewMinIOStore(cfg MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinIOStore{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("make bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *MinIOStore) FolderExists(ctx context.Context, folder string) (bool, error) {
	marker, err := folderMarker(folder)
	if err != nil {
		return false, err
	}
	_, err = s.client.StatObject(ctx, s.bucket, marker, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat folder %s: %w", folder, err)
	}
	return true, nil
}

func (s *MinIOStore) CreateFolder(ctx context.Context, folder string) error {
	exists, err := s.FolderExists(ctx, folder)
	if err != nil {
		return err
	}
	if exists {
		return ErrFolderExists
	}
	marker, _ := folderMarker(folder)
	opts := minio.PutObjectOptions{ContentType: "application/x-directory"}
	// If-None-Match: * keeps a concurrent creator's marker and its attributes
	opts.SetMatchETagExcept("*")
	_, err = s.client.PutObject(ctx, s.bucket, marker, bytes.NewReader(nil), 0, opts)
	if err != nil {
		if isPreconditionFailed(err) {
			return ErrFolderExists
		}
		return fmt.Errorf("create folder %s: %w", folder, err)
	}
	return nil
}

func (s *MinIOStore) ListFiles(ctx context.Context, folder string) ([]entity.StoredFile, error) {
	exists, err := s.FolderExists(ctx, folder)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrFolderNotFound
	}
	prefix, _ := folderMarker(folder)

	var files []entity.StoredFile
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list folder %s: %w", folder, obj.Err)
		}
		// 跳过文件夹标记与子目录
		if obj.Key == prefix || strings.HasSuffix(obj.Key, "/") {
			continue
		}
		// listings carry no user metadata, stat each object
		info, err := s.client.StatObject(ctx, s.bucket, obj.Key, minio.StatObjectOptions{})
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", obj.Key, err)
		}
		files = append(files, storedFile(info, prefix))
	}
	return files, nil
}

func (s *MinIOStore) AddFile(ctx context.Context, folder, name string, content []byte, overwrite bool) (*entity.StoredFile, error) {
	prefix, err := folderMarker(folder)
	if err != nil {
		return nil, err
	}
	if _, err := cleanName(name); err != nil {
		return nil, err
	}
	key := prefix + name

	if !overwrite {
		_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
		if err == nil {
			return nil, ErrFileExists
		}
		if !isNoSuchKey(err) {
			return nil, fmt.Errorf("stat %s: %w", key, err)
		}
	}

	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: contentType(name),
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", key, err)
	}

	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	file := storedFile(info, prefix)
	return &file, nil
}

func (s *MinIOStore) SetFolderAttribute(ctx context.Context, folder, attr, value string) error {
	marker, err := folderMarker(folder)
	if err != nil {
		return err
	}
	if err := s.setMetadata(ctx, marker, attr, value); err != nil {
		if isNoSuchKey(err) {
			return ErrFolderNotFound
		}
		return fmt.Errorf("set folder attribute %s on %s: %w", attr, folder, err)
	}
	return nil
}

func (s *MinIOStore) SetFileAttribute(ctx context.Context, folder, name, attr, value string) error {
	prefix, err := folderMarker(folder)
	if err != nil {
		return err
	}
	if _, err := cleanName(name); err != nil {
		return err
	}
	if err := s.setMetadata(ctx, prefix+name, attr, value); err != nil {
		if isNoSuchKey(err) {
			return ErrFileNotFound
		}
		return fmt.Errorf("set file attribute %s on %s/%s: %w", attr, folder, name, err)
	}
	return nil
}

// FolderAttributes returns the attributes set on a folder.
func (s *MinIOStore) FolderAttributes(ctx context.Context, folder string) (map[string]string, error) {
	marker, err := folderMarker(folder)
	if err != nil {
		return nil, err
	}
	info, err := s.client.StatObject(ctx, s.bucket, marker, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrFolderNotFound
		}
		return nil, fmt.Errorf("stat folder %s: %w", folder, err)
	}
	attrs := make(map[string]string, len(info.UserMetadata))
	for k, v := range info.UserMetadata {
		attrs[k] = v
	}
	return attrs, nil
}

// setMetadata rewrites an object's user metadata in place with one attribute changed.
func (s *MinIOStore) setMetadata(ctx context.Context, key, attr, value string) error {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return err
	}
	meta := mergeMetadata(info.UserMetadata, attr, value)

	_, err = s.client.CopyObject(ctx,
		minio.CopyDestOptions{
			Bucket:          s.bucket,
			Object:          key,
			UserMetadata:    meta,
			ReplaceMetadata: true,
		},
		minio.CopySrcOptions{
			Bucket: s.bucket,
			Object: key,
		},
	)
	return err
}

func folderMarker(folder string) (string, error) {
	p, err := cleanFolder(folder)
	if err != nil {
		return "", err
	}
	return p + "/", nil
}

// mergeMetadata copies existing metadata and sets attr, dropping keys that differ only in case.
func mergeMetadata(existing map[string]string, attr, value string) map[string]string {
	meta := make(map[string]string, len(existing)+1)
	for k, v := range existing {
		if strings.EqualFold(k, attr) {
			continue
		}
		meta[k] = v
	}
	meta[attr] = value
	return meta
}

func storedFile(info minio.ObjectInfo, prefix string) entity.StoredFile {
	attrs := make(map[string]string, len(info.UserMetadata))
	for k, v := range info.UserMetadata {
		attrs[k] = v
	}
	return entity.StoredFile{
		Name:       strings.TrimPrefix(info.Key, prefix),
		Path:       info.Key,
		Size:       info.Size,
		ModifiedAt: info.LastModified,
		Attributes: attrs,
	}
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

func isPreconditionFailed(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "PreconditionFailed" || resp.StatusCode == http.StatusPreconditionFailed
}
