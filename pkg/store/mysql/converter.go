package mysql

import (
	"strconv"
	"time"

	"traingrid/internal/model"
	"traingrid/pkg/constants"
)

// FromJobDomain converts a domain job and its distributed state to the
// MySQL row shape.
func FromJobDomain(job *model.Job, dist *model.DistributedStatus) *Job {
	if job == nil {
		return nil
	}

	row := &Job{
		JobID:         job.ID,
		Status:        job.Status.String(),
		Resources:     resourcesToJSON(job.Resources),
		IsDistributed: job.IsDistributed,
		NumWorkers:    job.NumWorkers,
		Error:         job.Error,
		WebhookURL:    job.WebhookURL,
		Orphaned:      job.Orphaned,
		CreatedAt:     job.CreatedAt,
		StartedAt:     job.StartedAt,
		CompletedAt:   job.CompletedAt,
	}
	if dist != nil {
		row.AllocatedWorkers = JSONStringArray(dist.AllocatedWorkers)
		row.MasterIP = dist.MasterIP
		row.Results = resultsToJSON(dist.WorkerResults)
	}
	return row
}

// ToJobDomain converts a MySQL row back to the domain job
func ToJobDomain(row *Job) *model.Job {
	if row == nil {
		return nil
	}
	return &model.Job{
		ID:            row.JobID,
		Status:        constants.JobStatus(row.Status),
		Resources:     resourcesFromJSON(row.Resources),
		IsDistributed: row.IsDistributed,
		NumWorkers:    row.NumWorkers,
		WebhookURL:    row.WebhookURL,
		Error:         row.Error,
		Orphaned:      row.Orphaned,
		CreatedAt:     row.CreatedAt,
		StartedAt:     row.StartedAt,
		CompletedAt:   row.CompletedAt,
	}
}

// FromWorkerDomain converts a domain worker to a snapshot row
func FromWorkerDomain(worker *model.Worker, snapshotAt time.Time) *WorkerSnapshot {
	if worker == nil {
		return nil
	}
	return &WorkerSnapshot{
		WorkerID:           worker.ID,
		Platform:           worker.Platform.String(),
		Status:             string(worker.Status),
		GPUAvailable:       worker.GPU.Available,
		GPUName:            worker.GPU.Name,
		GPUMemoryGB:        worker.GPU.MemoryGB,
		ActiveJobs:         worker.ActiveJobs,
		TotalJobsCompleted: worker.TotalJobsCompleted,
		LastHeartbeat:      worker.LastHeartbeat,
		RegisteredAt:       worker.RegisteredAt,
		SnapshotAt:         snapshotAt,
	}
}

func resourcesToJSON(res model.ResourceRequirements) JSONMap {
	out := JSONMap{}
	if res.GPUCount > 0 {
		out["gpu_count"] = res.GPUCount
	}
	if res.CPUCores > 0 {
		out["cpu_cores"] = res.CPUCores
	}
	if res.MemoryGB > 0 {
		out["memory_gb"] = res.MemoryGB
	}
	if res.RequiresGPU {
		out["requires_gpu"] = true
	}
	if res.PreferredPlatform != "" {
		out["preferred_platform"] = res.PreferredPlatform
	}
	if res.Priority != "" {
		out["priority"] = res.Priority
	}
	if res.EstimatedTimeMinutes > 0 {
		out["estimated_time_minutes"] = res.EstimatedTimeMinutes
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func resourcesFromJSON(m JSONMap) model.ResourceRequirements {
	var res model.ResourceRequirements
	if m == nil {
		return res
	}
	res.GPUCount = int(asFloat(m["gpu_count"]))
	res.CPUCores = int(asFloat(m["cpu_cores"]))
	res.MemoryGB = asFloat(m["memory_gb"])
	if v, ok := m["requires_gpu"].(bool); ok {
		res.RequiresGPU = v
	}
	if v, ok := m["preferred_platform"].(string); ok {
		res.PreferredPlatform = v
	}
	if v, ok := m["priority"].(string); ok {
		res.Priority = v
	}
	res.EstimatedTimeMinutes = int(asFloat(m["estimated_time_minutes"]))
	return res
}

// asFloat reads a numeric JSONMap value. Values scanned from the database
// arrive as float64, values that never left memory keep their Go type.
func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

func resultsToJSON(results map[int]map[string]interface{}) JSONMap {
	if len(results) == 0 {
		return nil
	}
	out := make(JSONMap, len(results))
	for rank, metrics := range results {
		out["rank_"+strconv.Itoa(rank)] = metrics
	}
	return out
}
