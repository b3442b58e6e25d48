package userstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/hicsail/kidney-web/internal/application/ports"
	"github.com/hicsail/kidney-web/internal/domain/userpath"
)

type cascadeStep struct {
	stage userpath.Category
	key   string
}

// cascadeSteps resolves every key before anything is deleted, so a bad path
// is rejected without touching the backend.
func cascadeSteps(userID, relativePath string) ([]cascadeStep, error) {
	steps := make([]cascadeStep, 0, len(userpath.Categories))
	for _, stage := range userpath.Categories {
		key, err := userpath.DerivedKey(userID, stage, relativePath)
		if err != nil {
			return nil, err
		}
		steps = append(steps, cascadeStep{stage: stage, key: key})
	}
	return steps, nil
}

// Delete removes the input at relativePath together with its mask and
// width-info sidecar. Derived artifacts go first; a missing artifact counts
// as deleted. If a derived delete fails the input is left in place and the
// returned error names the stage.
func (s *Store) Delete(ctx context.Context, userID, relativePath string) (CascadeResult, error) {
	const op = "delete"
	result := CascadeResult{RelativePath: relativePath}

	steps, err := cascadeSteps(userID, relativePath)
	if err != nil {
		return result, s.reject(op, userID, relativePath, err)
	}

	for _, step := range steps {
		outcome := StageOutcome{Stage: step.stage, Key: step.key}

		err := s.storage.Delete(ctx, s.bucket, step.key)
		switch {
		case err == nil:
			outcome.Status = StageDeleted
		case errors.Is(err, ports.ErrObjectNotFound):
			outcome.Status = StageAbsent
		default:
			outcome.Status = StageFailed
			result.Stages = append(result.Stages, outcome)
			return result, s.stageFailure(userID, step, err)
		}
		result.Stages = append(result.Stages, outcome)
	}

	s.metrics.IncrementCounter("userstore.delete.success", nil)
	s.logger.Info("Deleted input and derived artifacts",
		"user_id", userID,
		"relative_path", relativePath,
	)
	return result, nil
}

func (s *Store) stageFailure(userID string, step cascadeStep, err error) error {
	s.metrics.IncrementCounter("userstore.delete.failure", map[string]string{"stage": string(step.stage)})
	s.logger.Error("Cascade delete stopped",
		"user_id", userID,
		"stage", string(step.stage),
		"key", step.key,
		"error", err.Error(),
	)
	if step.stage == userpath.Inputs {
		return errBackendUnavailable("delete", step.key, err)
	}
	return errCascadeAborted(step.key, step.stage, err)
}

// DeleteKey deletes by full input key, as posted by the file browser.
func (s *Store) DeleteKey(ctx context.Context, userID, key string) (CascadeResult, error) {
	const op = "delete"

	k, err := userpath.ParseOwned(userID, key)
	if err != nil {
		return CascadeResult{}, s.reject(op, userID, key, err)
	}
	cat, ok := k.Category()
	if !ok || cat != userpath.Inputs || k.Folder || k.Relative() == "" {
		return CascadeResult{}, s.reject(op, userID, key, fmt.Errorf("%w: not an input file", userpath.ErrForeignKey))
	}
	return s.Delete(ctx, userID, k.Relative())
}

// ResultKeys resolves the prediction artifact keys for the input at
// relativePath.
func (s *Store) ResultKeys(userID, relativePath string) (ResultKeys, error) {
	const op = "result_keys"

	steps, err := cascadeSteps(userID, relativePath)
	if err != nil {
		return ResultKeys{}, s.reject(op, userID, relativePath, err)
	}

	var keys ResultKeys
	for _, step := range steps {
		switch step.stage {
		case userpath.Inputs:
			keys.Input = step.key
		case userpath.MeasurementMasks:
			keys.Mask = step.key
		case userpath.WidthInfoJSONs:
			keys.WidthInfo = step.key
		}
	}
	return keys, nil
}
