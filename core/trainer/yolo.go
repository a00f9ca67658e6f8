package trainer

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"train-orchestrator/core/models"
	"train-orchestrator/core/trainerrors"
)

// YOLOTrainer drives an ultralytics YOLO backend in a Python subprocess.
// Each invocation stages a small driver script in a scratch directory,
// passes its parameters through the child environment and reads the
// result back from a JSON file the driver writes before exiting.
type YOLOTrainer struct {
	python  string
	workDir string
}

// NewYOLOTrainer creates a trainer that shells out to the given Python
// interpreter. workDir is used for staging driver scripts and result files.
func NewYOLOTrainer(python, workDir string) *YOLOTrainer {
	if python == "" {
		python = "python3"
	}
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &YOLOTrainer{python: python, workDir: workDir}
}

// Train implements Trainer
func (t *YOLOTrainer) Train(ctx context.Context, req TrainRequest) (*TrainResult, error) {
	stage, err := t.stageDriver("train", trainDriverScript)
	if err != nil {
		return nil, err
	}
	defer stage.cleanup()

	env := []string{
		"TRAIN_BASE_MODEL=" + req.BaseModelRef,
		"TRAIN_DATASET=" + req.DatasetRef,
		"TRAIN_EPOCHS=" + strconv.Itoa(req.EpochCount),
		"TRAIN_DEVICE=" + req.Device,
		"TRAIN_RESULT_FILE=" + stage.resultFile,
	}
	if err := t.runDriver(ctx, stage.script, env); err != nil {
		return nil, &trainerrors.ErrCapability{Op: "train", Err: err}
	}

	data, err := os.ReadFile(stage.resultFile)
	if err != nil {
		return nil, &trainerrors.ErrCapability{Op: "train", Err: errors.Wrap(err, "reading driver result")}
	}
	result, err := parseTrainResult(data)
	if err != nil {
		return nil, &trainerrors.ErrCapability{Op: "train", Err: err}
	}
	return result, nil
}

// Predict implements Predictor
func (t *YOLOTrainer) Predict(ctx context.Context, modelPath string, images []string, opts PredictOptions) ([]models.ImageResult, error) {
	stage, err := t.stageDriver("infer", inferDriverScript)
	if err != nil {
		return nil, err
	}
	defer stage.cleanup()

	imagesJSON, err := json.Marshal(images)
	if err != nil {
		return nil, errors.Wrap(err, "encoding image list")
	}
	env := []string{
		"INFER_MODEL_PATH=" + modelPath,
		"INFER_IMAGES=" + string(imagesJSON),
		"INFER_CONF=" + strconv.FormatFloat(opts.ConfThreshold, 'f', -1, 64),
		"INFER_IOU=" + strconv.FormatFloat(opts.IOUThreshold, 'f', -1, 64),
		"INFER_RESULT_FILE=" + stage.resultFile,
	}
	if err := t.runDriver(ctx, stage.script, env); err != nil {
		return nil, &trainerrors.ErrCapability{Op: "infer", Err: err}
	}

	data, err := os.ReadFile(stage.resultFile)
	if err != nil {
		return nil, &trainerrors.ErrCapability{Op: "infer", Err: errors.Wrap(err, "reading driver result")}
	}
	return parsePredictResult(data), nil
}

type driverStage struct {
	dir        string
	script     string
	resultFile string
}

func (s *driverStage) cleanup() {
	if err := os.RemoveAll(s.dir); err != nil {
		log.WithError(err).Warnf("Failed to remove driver scratch dir %s", s.dir)
	}
}

// stageDriver writes the driver script into a fresh scratch directory
func (t *YOLOTrainer) stageDriver(kind, script string) (*driverStage, error) {
	dir, err := os.MkdirTemp(t.workDir, kind+"-driver-")
	if err != nil {
		return nil, errors.Wrap(err, "creating driver scratch dir")
	}
	scriptPath := filepath.Join(dir, "driver.py")
	if err := os.WriteFile(scriptPath, []byte(script), 0o644); err != nil {
		os.RemoveAll(dir)
		return nil, errors.Wrap(err, "writing driver script")
	}
	return &driverStage{
		dir:        dir,
		script:     scriptPath,
		resultFile: filepath.Join(dir, "result.json"),
	}, nil
}

// runDriver executes the staged script and streams its output into the logger
func (t *YOLOTrainer) runDriver(ctx context.Context, script string, extraEnv []string) error {
	cmd := exec.CommandContext(ctx, t.python, script)
	cmd.Env = append(os.Environ(), extraEnv...)
	cmd.Stdout = log.StandardLogger().Writer()
	cmd.Stderr = log.StandardLogger().Writer()
	cmd.WaitDelay = 5 * time.Second
	cmd.Cancel = func() error {
		log.Debug("Sending termination signal to driver")
		return terminateProcess(cmd)
	}
	setNewProcessGroup(cmd)

	log.Debugf("Launching driver: %v", cmd)

	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "driver could not launch")
	}
	if err := cmd.Wait(); err != nil {
		return errors.Wrap(err, "driver exited with error")
	}
	return nil
}

func parseTrainResult(data []byte) (*TrainResult, error) {
	root := gjson.ParseBytes(data)
	saveDir := root.Get("save_dir").String()
	if saveDir == "" {
		return nil, errors.New("driver result missing save_dir")
	}
	result := &TrainResult{ArtifactDir: saveDir}
	for _, e := range root.Get("epochs").Array() {
		result.Epochs = append(result.Epochs, EpochMetrics{
			Loss: e.Get("loss").Float(),
			MAP:  e.Get("mAP").Float(),
		})
	}
	for _, n := range root.Get("names").Array() {
		result.Labels = append(result.Labels, n.String())
	}
	return result, nil
}

func parsePredictResult(data []byte) []models.ImageResult {
	var out []models.ImageResult
	for _, r := range gjson.GetBytes(data, "results").Array() {
		img := models.ImageResult{Image: r.Get("image").String()}
		for _, p := range r.Get("predictions").Array() {
			pred := models.Prediction{
				Score: p.Get("score").Float(),
				Label: int(p.Get("label").Int()),
			}
			for i, v := range p.Get("bbox").Array() {
				if i > 3 {
					break
				}
				pred.BBox[i] = v.Float()
			}
			img.Predictions = append(img.Predictions, pred)
		}
		out = append(out, img)
	}
	return out
}

// trainDriverScript runs one training cycle and reports per-epoch box loss
// and mAP plus the backend's save directory and class names.
const trainDriverScript = `import json
import os

from ultralytics import YOLO


def main():
    model = YOLO(os.environ["TRAIN_BASE_MODEL"])
    results = model.train(
        data=os.environ["TRAIN_DATASET"],
        epochs=int(os.environ["TRAIN_EPOCHS"]),
        device=os.environ["TRAIN_DEVICE"] or None,
    )
    try:
        losses = [float(v) for v in results.box.losses]
        maps = [float(v) for v in results.box.maps]
    except Exception:
        losses, maps = [], []
    count = max(len(losses), len(maps))
    epochs = [
        {
            "loss": losses[i] if i < len(losses) else 0.0,
            "mAP": maps[i] if i < len(maps) else 0.0,
        }
        for i in range(count)
    ]
    names = getattr(results, "names", None)
    if isinstance(names, dict):
        names = [names[k] for k in sorted(names)]
    out = {
        "epochs": epochs,
        "save_dir": str(results.save_dir),
        "names": list(names or []),
    }
    with open(os.environ["TRAIN_RESULT_FILE"], "w") as f:
        json.dump(out, f)


if __name__ == "__main__":
    main()
`

// inferDriverScript runs detection over a list of images with one model.
const inferDriverScript = `import json
import os

from ultralytics import YOLO


def main():
    model = YOLO(os.environ["INFER_MODEL_PATH"])
    images = json.loads(os.environ["INFER_IMAGES"])
    conf = float(os.environ["INFER_CONF"])
    iou = float(os.environ["INFER_IOU"])
    results = []
    for image in images:
        preds = model(image, conf=conf, iou=iou)
        detections = []
        for pred in preds:
            for box in getattr(pred, "boxes", []):
                x1, y1, x2, y2 = [float(v) for v in box.xyxy[0]]
                detections.append({
                    "bbox": [x1, y1, x2, y2],
                    "score": float(box.conf),
                    "label": int(box.cls),
                })
        results.append({"image": image, "predictions": detections})
    with open(os.environ["INFER_RESULT_FILE"], "w") as f:
        json.dump({"results": results}, f)


if __name__ == "__main__":
    main()
`
