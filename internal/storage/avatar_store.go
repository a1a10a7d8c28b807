// Package storage はアバター画像のオブジェクトストレージ永続化を提供する。
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
)

// minioAPI は*minio.Clientのうち使用するメソッドを抽象化したインターフェース。
// 実サーバーなしでのテストを可能にする。
type minioAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// minioClientWrapper は*minio.ClientをminioAPIに適合させる。
type minioClientWrapper struct{ c *minio.Client }

func (w minioClientWrapper) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	return w.c.BucketExists(ctx, bucketName)
}

func (w minioClientWrapper) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	return w.c.MakeBucket(ctx, bucketName, opts)
}

func (w minioClientWrapper) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return w.c.PutObject(ctx, bucketName, objectName, reader, objectSize, opts)
}

func (w minioClientWrapper) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	return w.c.RemoveObject(ctx, bucketName, objectName, opts)
}

// allowedContentTypes はアバターとして受け付ける画像形式と拡張子の対応。
var allowedContentTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// AvatarStore はアバター画像をS3互換ストレージに保存する。
type AvatarStore struct {
	api           minioAPI
	bucket        string
	publicBaseURL string
}

// NewAvatarStore は*minio.Clientを使用するAvatarStoreを生成する。
// バケットが存在しない場合は作成する。
func NewAvatarStore(ctx context.Context, client *minio.Client, bucket, publicBaseURL string) (*AvatarStore, error) {
	return NewAvatarStoreWithAPI(ctx, minioClientWrapper{c: client}, bucket, publicBaseURL)
}

// NewAvatarStoreWithAPI はモック可能なAPIを注入してAvatarStoreを生成する（テスト用）。
func NewAvatarStoreWithAPI(ctx context.Context, api minioAPI, bucket, publicBaseURL string) (*AvatarStore, error) {
	s := &AvatarStore{
		api:           api,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}

	if err := s.ensureBucketExists(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
	}

	return s, nil
}

// ensureBucketExists はバケットが存在しない場合に作成する。
func (s *AvatarStore) ensureBucketExists(ctx context.Context) error {
	exists, err := s.api.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		if err := s.api.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// AllowedContentType はアバターとして受け付けるContent-Typeかを返す。
func AllowedContentType(contentType string) bool {
	_, ok := allowedContentTypes[strings.ToLower(contentType)]
	return ok
}

// Upload はアバター画像を保存し、公開URLを返す。
// オブジェクトキーはユーザーIDから決定するため、再アップロードで上書きされる。
func (s *AvatarStore) Upload(ctx context.Context, userID string, reader io.Reader, size int64, contentType string) (string, error) {
	ext, ok := allowedContentTypes[strings.ToLower(contentType)]
	if !ok {
		return "", fmt.Errorf("unsupported content type: %s", contentType)
	}

	key := fmt.Sprintf("avatars/%s.%s", userID, ext)
	_, err := s.api.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload avatar: %w", err)
	}

	return fmt.Sprintf("%s/%s/%s", s.publicBaseURL, s.bucket, key), nil
}

// Delete はユーザーのアバター画像を削除する。
// 拡張子が不明なため、許可形式すべてのキーを削除対象にする。
func (s *AvatarStore) Delete(ctx context.Context, userID string) error {
	for _, ext := range allowedContentTypes {
		key := fmt.Sprintf("avatars/%s.%s", userID, ext)
		if err := s.api.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("failed to delete avatar: %w", err)
		}
	}
	return nil
}
