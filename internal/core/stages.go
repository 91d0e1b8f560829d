package core

// Stage is one step of a card extraction run.
type Stage string

const (
	StageValidateInput  Stage = "validate_input"
	StagePatternExtract Stage = "pattern_extract"
	StageLinkEntities   Stage = "link_entities"
	StageLLMExtract     Stage = "llm_extract"
	StagePersistResults Stage = "persist_results"
	StageBroadcast      Stage = "broadcast"
	StageDone           Stage = "done"
)

var stageOrder = []Stage{
	StageValidateInput,
	StagePatternExtract,
	StageLinkEntities,
	StageLLMExtract,
	StagePersistResults,
	StageBroadcast,
}

// StageCount is the number of working stages, excluding StageDone.
var StageCount = len(stageOrder)

// Index is the 1-based position of the stage; StageDone is StageCount+1.
func (s Stage) Index() int {
	for i, st := range stageOrder {
		if st == s {
			return i + 1
		}
	}
	return StageCount + 1
}

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// NextStage is the run's transition function. Only a failed ValidateInput
// ends the run early; every other failure continues with the next stage.
func NextStage(stage Stage, status Status) Stage {
	if stage == StageValidateInput && status == StatusFailed {
		return StageDone
	}
	for i, st := range stageOrder {
		if st == stage && i+1 < len(stageOrder) {
			return stageOrder[i+1]
		}
	}
	return StageDone
}

// Outcome is the typed result of one stage.
type Outcome[T any] struct {
	Value  T
	Status Status
	Err    error
}

func succeeded[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v, Status: StatusSucceeded}
}

func skipped[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v, Status: StatusSkipped}
}

// recovered is an empty success that still carries the error, for stages
// whose problems must not stop the run.
func recovered[T any](v T, err error) Outcome[T] {
	return Outcome[T]{Value: v, Status: StatusSucceeded, Err: err}
}

// failed keeps v as the value so later stages can treat the stage as an
// empty success.
func failed[T any](v T, err error) Outcome[T] {
	return Outcome[T]{Value: v, Status: StatusFailed, Err: err}
}
