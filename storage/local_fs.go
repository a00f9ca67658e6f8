package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"train-orchestrator/core/models"
	"train-orchestrator/core/trainerrors"
)

// LocalFSStore keeps artifacts on the local filesystem, laid out as
// root/{tenant}/models/{name}_{ulid}{ext} with a {file}.labels sidecar
// next to each model.
type LocalFSStore struct {
	root string
}

// NewLocalFSStore creates the root directory if needed.
func NewLocalFSStore(root string) (*LocalFSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating artifact root")
	}
	return &LocalFSStore{root: root}, nil
}

// Save implements ArtifactStore
func (s *LocalFSStore) Save(ctx context.Context, tenantID, modelName, srcPath string, labels []string) (models.ModelMeta, error) {
	if err := checkComponent("tenantID", tenantID); err != nil {
		return models.ModelMeta{}, err
	}
	dir := s.modelsDir(tenantID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return models.ModelMeta{}, errors.Wrap(err, "creating tenant model dir")
	}

	name := versionedName(modelName, filepath.Ext(srcPath))
	dest := filepath.Join(dir, name)
	if err := copyFile(srcPath, dest); err != nil {
		return models.ModelMeta{}, errors.Wrapf(err, "storing model %s", modelName)
	}
	if err := os.WriteFile(dest+labelsSuffix, []byte(joinLabels(labels)), 0o644); err != nil {
		return models.ModelMeta{}, errors.Wrapf(err, "storing labels for %s", modelName)
	}

	meta := models.ModelMeta{
		ModelName: name,
		Path:      dest,
		Labels:    labels,
	}
	if t, ok := versionTime(name); ok {
		meta.CreatedAt = t
	}
	return meta, nil
}

// List implements ArtifactStore. Results are sorted by stored name, which
// groups versions of one model together oldest to newest.
func (s *LocalFSStore) List(ctx context.Context, tenantID string) ([]models.ModelMeta, error) {
	if err := checkComponent("tenantID", tenantID); err != nil {
		return nil, err
	}
	dir := s.modelsDir(tenantID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "listing models")
	}

	var metas []models.ModelMeta
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasSuffix(name, labelsSuffix) {
			continue
		}
		meta := models.ModelMeta{
			ModelName: name,
			Path:      filepath.Join(dir, name),
		}
		if t, ok := versionTime(name); ok {
			meta.CreatedAt = t
		} else if info, err := entry.Info(); err == nil {
			meta.CreatedAt = info.ModTime()
		}
		if content, err := os.ReadFile(filepath.Join(dir, name+labelsSuffix)); err == nil {
			meta.Labels = splitLabels(string(content))
		}
		metas = append(metas, meta)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].ModelName < metas[j].ModelName })
	return metas, nil
}

// GetPath implements ArtifactStore. When several versions match the name
// the newest one wins.
func (s *LocalFSStore) GetPath(ctx context.Context, tenantID, modelName string) (string, error) {
	if err := checkComponent("tenantID", tenantID); err != nil {
		return "", err
	}
	dir := s.modelsDir(tenantID)
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return "", errors.Wrap(err, "resolving model path")
	}

	prefix := modelStem(modelName)
	var newest string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasSuffix(name, labelsSuffix) {
			continue
		}
		if strings.HasPrefix(name, prefix) && name > newest {
			newest = name
		}
	}
	if newest == "" {
		return "", &trainerrors.ErrNotFound{Type: "model", Value: modelName}
	}
	return filepath.Join(dir, newest), nil
}

// Delete implements ArtifactStore. Every version of the name is removed
// along with its labels sidecar.
func (s *LocalFSStore) Delete(ctx context.Context, tenantID, modelName string) (bool, error) {
	if err := checkComponent("tenantID", tenantID); err != nil {
		return false, err
	}
	dir := s.modelsDir(tenantID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrap(err, "deleting model")
	}

	prefix := modelStem(modelName)
	removed := false
	var result *multierror.Error
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if !strings.HasSuffix(name, labelsSuffix) {
			removed = true
		}
	}
	return removed, result.ErrorOrNil()
}

func (s *LocalFSStore) modelsDir(tenantID string) string {
	return filepath.Join(s.root, tenantID, "models")
}

// checkComponent rejects values that would escape the tenant directory.
func checkComponent(name, value string) error {
	if value == "" || value == "." || value == ".." || strings.ContainsAny(value, `/\`) {
		return &trainerrors.ErrInvalidArgument{Name: name, Value: value, Message: "not a valid path component"}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
