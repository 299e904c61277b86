package worker

import (
	"math/rand"

	"render-orchestrator/internal/domain/model"
	"render-orchestrator/internal/domain/ports/adapter"
)

// variant sampling settings: steps and CFG per quality tier
var variantSteps = map[model.WorkflowVariant]int{
	model.VariantDraft:    12,
	model.VariantStandard: 25,
	model.VariantHigh:     40,
}

var variantCFG = map[model.WorkflowVariant]float64{
	model.VariantDraft:    5.5,
	model.VariantStandard: 7.0,
	model.VariantHigh:     8.0,
}

// BuildWorkflow serializes a job into the backend-executable node
// graph. Node ids follow the backend's convention of stringified
// integers; connections reference [nodeID, outputIndex].
func BuildWorkflow(job *model.Job) adapter.WorkflowGraph {
	seed := int64(rand.Int63())
	if job.Params.Seed != nil {
		seed = *job.Params.Seed
	}
	steps := variantSteps[job.Variant]
	if steps == 0 {
		steps = variantSteps[model.VariantStandard]
	}
	cfg := variantCFG[job.Variant]
	if cfg == 0 {
		cfg = variantCFG[model.VariantStandard]
	}

	g := adapter.WorkflowGraph{
		"1": {
			ClassType: "CheckpointLoaderSimple",
			Inputs:    map[string]any{"ckpt_name": job.Params.ModelName},
		},
		"2": {
			ClassType: "CLIPTextEncode",
			Inputs:    map[string]any{"text": job.Params.Prompt, "clip": []any{"1", 1}},
		},
		"3": {
			ClassType: "CLIPTextEncode",
			Inputs:    map[string]any{"text": job.Params.NegativePrompt, "clip": []any{"1", 1}},
		},
		"5": {
			ClassType: "KSampler",
			Inputs: map[string]any{
				"seed":      seed,
				"steps":     steps,
				"cfg":       cfg,
				"model":     []any{"1", 0},
				"positive":  []any{"2", 0},
				"negative":  []any{"3", 0},
				"latent":    []any{"4", 0},
				"sampler":   "euler",
				"scheduler": "normal",
				"denoise":   1.0,
			},
		},
		"6": {
			ClassType: "VAEDecode",
			Inputs:    map[string]any{"samples": []any{"5", 0}, "vae": []any{"1", 2}},
		},
	}

	if job.Kind == model.JobKindVideo && job.Params.FrameCount > 1 {
		g["4"] = adapter.WorkflowNode{
			ClassType: "EmptyLatentVideo",
			Inputs: map[string]any{
				"width":  job.Params.Width,
				"height": job.Params.Height,
				"length": job.Params.FrameCount,
			},
		}
		g["7"] = adapter.WorkflowNode{
			ClassType: "SaveAnimatedWEBP",
			Inputs:    map[string]any{"images": []any{"6", 0}, "filename_prefix": job.ID},
		}
	} else {
		g["4"] = adapter.WorkflowNode{
			ClassType: "EmptyLatentImage",
			Inputs: map[string]any{
				"width":      job.Params.Width,
				"height":     job.Params.Height,
				"batch_size": 1,
			},
		}
		g["7"] = adapter.WorkflowNode{
			ClassType: "SaveImage",
			Inputs:    map[string]any{"images": []any{"6", 0}, "filename_prefix": job.ID},
		}
	}

	return g
}
