package queue

import (
	"encoding/json"
	"fmt"
)

type TaskType string

const (
	TaskGenerate   TaskType = "generate"
	TaskRegenerate TaskType = "regenerate"
	TaskCleanup    TaskType = "cleanup"
)

// Scope of a regenerate task.
const (
	ScopeFailed = "failed"
	ScopeAll    = "all"
)

// Task is one stream entry. Fields travel as flat string values.
type Task struct {
	Type    TaskType `json:"type"`
	BatchID string   `json:"batchId,omitempty"`
	Scope   string   `json:"scope,omitempty"`
}

func (t Task) Values() map[string]any {
	values := map[string]any{"type": string(t.Type)}
	if t.BatchID != "" {
		values["batchId"] = t.BatchID
	}
	if t.Scope != "" {
		values["scope"] = t.Scope
	}
	return values
}

func DecodeTask(values map[string]interface{}) (Task, error) {
	bytes, err := json.Marshal(values)
	if err != nil {
		return Task{}, err
	}
	var task Task
	if err := json.Unmarshal(bytes, &task); err != nil {
		return Task{}, fmt.Errorf("decode task: %w", err)
	}
	return task, nil
}
