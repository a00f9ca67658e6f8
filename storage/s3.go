package storage

import (
	"context"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"

	"train-orchestrator/core/models"
	"train-orchestrator/core/trainerrors"
)

// S3Store keeps artifacts in an S3 bucket using the same key layout as the
// filesystem store: {prefix}/{tenant}/models/{name}_{ulid}{ext}. GetPath
// returns an s3:// URI rather than a local path.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store builds a store from the default AWS credential chain. An
// empty region keeps the chain's own region; prefix may be empty.
func NewS3Store(ctx context.Context, bucket, prefix, region string) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "loading AWS config")
	}
	return &S3Store{client: s3.NewFromConfig(cfg), bucket: bucket, prefix: prefix}, nil
}

// Save implements ArtifactStore
func (s *S3Store) Save(ctx context.Context, tenantID, modelName, srcPath string, labels []string) (models.ModelMeta, error) {
	if err := checkComponent("tenantID", tenantID); err != nil {
		return models.ModelMeta{}, err
	}

	name := versionedName(modelName, path.Ext(srcPath))
	key := s.modelKey(tenantID, name)

	file, err := os.Open(srcPath)
	if err != nil {
		return models.ModelMeta{}, errors.Wrapf(err, "opening model %s", modelName)
	}
	defer file.Close()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		return models.ModelMeta{}, errors.Wrapf(err, "uploading model %s", modelName)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key + labelsSuffix),
		Body:   strings.NewReader(joinLabels(labels)),
	})
	if err != nil {
		return models.ModelMeta{}, errors.Wrapf(err, "uploading labels for %s", modelName)
	}

	meta := models.ModelMeta{
		ModelName: name,
		Path:      s.uri(key),
		Labels:    labels,
	}
	if t, ok := versionTime(name); ok {
		meta.CreatedAt = t
	}
	return meta, nil
}

// List implements ArtifactStore
func (s *S3Store) List(ctx context.Context, tenantID string) ([]models.ModelMeta, error) {
	if err := checkComponent("tenantID", tenantID); err != nil {
		return nil, err
	}

	objects, err := s.listObjects(ctx, s.modelKey(tenantID, ""))
	if err != nil {
		return nil, err
	}

	var metas []models.ModelMeta
	for _, obj := range objects {
		key := aws.ToString(obj.Key)
		name := path.Base(key)
		if strings.HasSuffix(name, labelsSuffix) {
			continue
		}
		meta := models.ModelMeta{
			ModelName: name,
			Path:      s.uri(key),
		}
		if t, ok := versionTime(name); ok {
			meta.CreatedAt = t
		} else if obj.LastModified != nil {
			meta.CreatedAt = *obj.LastModified
		}
		labels, err := s.readLabels(ctx, key+labelsSuffix)
		if err != nil {
			return nil, err
		}
		meta.Labels = labels
		metas = append(metas, meta)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].ModelName < metas[j].ModelName })
	return metas, nil
}

// GetPath implements ArtifactStore
func (s *S3Store) GetPath(ctx context.Context, tenantID, modelName string) (string, error) {
	if err := checkComponent("tenantID", tenantID); err != nil {
		return "", err
	}

	objects, err := s.listObjects(ctx, s.modelKey(tenantID, modelStem(modelName)))
	if err != nil {
		return "", err
	}

	var newest string
	for _, obj := range objects {
		key := aws.ToString(obj.Key)
		if strings.HasSuffix(key, labelsSuffix) {
			continue
		}
		if key > newest {
			newest = key
		}
	}
	if newest == "" {
		return "", &trainerrors.ErrNotFound{Type: "model", Value: modelName}
	}
	return s.uri(newest), nil
}

// Delete implements ArtifactStore
func (s *S3Store) Delete(ctx context.Context, tenantID, modelName string) (bool, error) {
	if err := checkComponent("tenantID", tenantID); err != nil {
		return false, err
	}

	objects, err := s.listObjects(ctx, s.modelKey(tenantID, modelStem(modelName)))
	if err != nil {
		return false, err
	}
	if len(objects) == 0 {
		return false, nil
	}

	removed := false
	var ids []types.ObjectIdentifier
	for _, obj := range objects {
		ids = append(ids, types.ObjectIdentifier{Key: obj.Key})
		if !strings.HasSuffix(aws.ToString(obj.Key), labelsSuffix) {
			removed = true
		}
	}
	_, err = s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return false, errors.Wrapf(err, "deleting model %s", modelName)
	}
	return removed, nil
}

func (s *S3Store) listObjects(ctx context.Context, prefix string) ([]types.Object, error) {
	var objects []types.Object
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "listing objects")
		}
		objects = append(objects, page.Contents...)
	}
	return objects, nil
}

func (s *S3Store) readLabels(ctx context.Context, key string) ([]string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "reading labels")
	}
	defer out.Body.Close()

	content, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading labels")
	}
	return splitLabels(string(content)), nil
}

func (s *S3Store) modelKey(tenantID, name string) string {
	return path.Join(s.prefix, tenantID, "models") + "/" + name
}

func (s *S3Store) uri(key string) string {
	return "s3://" + s.bucket + "/" + key
}
