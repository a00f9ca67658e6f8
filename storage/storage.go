// Package storage keeps trained model artifacts and their label sets.
// Stores are tenant scoped: every tenant sees only its own models.
package storage

import (
	"context"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid"

	"train-orchestrator/core/models"
)

// ArtifactStore persists model files under a per-tenant namespace.
//
// Save copies the file at srcPath into the store under a fresh versioned
// name derived from modelName, so repeated saves of the same name never
// overwrite each other. GetPath resolves a model name to the newest stored
// version and returns trainerrors.ErrNotFound when nothing matches. Delete
// removes every stored version of the name and reports whether anything
// was removed.
type ArtifactStore interface {
	Save(ctx context.Context, tenantID, modelName, srcPath string, labels []string) (models.ModelMeta, error)
	List(ctx context.Context, tenantID string) ([]models.ModelMeta, error)
	GetPath(ctx context.Context, tenantID, modelName string) (string, error)
	Delete(ctx context.Context, tenantID, modelName string) (bool, error)
}

// labelsSuffix marks the sidecar file holding a model's class names.
const labelsSuffix = ".labels"

var entropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
var entropyMu sync.Mutex

// newULID returns a lowercase ULID. ULIDs from one process are strictly
// increasing, so lexicographic order on stored names is creation order.
func newULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return strings.ToLower(ulid.MustNew(ulid.Now(), entropy).String())
}

// versionedName builds the stored file name for a model: the bare name,
// a ULID and the source file's extension.
func versionedName(modelName, ext string) string {
	return modelStem(modelName) + "_" + newULID() + ext
}

// modelStem strips any directory part and extension from a model name, so
// both "detector" and "detector.pt" address the same stored versions.
func modelStem(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// versionTime recovers the creation time embedded in a stored file name.
func versionTime(name string) (time.Time, bool) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	i := strings.LastIndex(base, "_")
	if i < 0 {
		return time.Time{}, false
	}
	token := base[i+1:]
	if len(token) != ulid.EncodedSize {
		return time.Time{}, false
	}
	id, err := ulid.Parse(strings.ToUpper(token))
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(id.Time()), true
}

// splitLabels turns sidecar file content back into a label list.
func splitLabels(content string) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	return strings.Split(content, "\n")
}

// joinLabels renders a label list for the sidecar file.
func joinLabels(labels []string) string {
	return strings.Join(labels, "\n")
}
