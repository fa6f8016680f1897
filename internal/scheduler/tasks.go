package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskTaxonomyRebuild = "taxonomy.rebuild"

type TaxonomyRebuildPayload struct {
	Seeds       []string `json:"seeds,omitempty"`
	RequestedBy string   `json:"requestedBy,omitempty"`
}

func NewTaxonomyRebuildTask(payload TaxonomyRebuildPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTaxonomyRebuild, data), nil
}

func ParseTaxonomyRebuildPayload(task *asynq.Task) (TaxonomyRebuildPayload, error) {
	var payload TaxonomyRebuildPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return TaxonomyRebuildPayload{}, err
	}
	return payload, nil
}
