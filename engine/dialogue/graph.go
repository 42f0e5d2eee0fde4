package dialogue

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	nodex "github.com/leadflowhq/leadflow/engine/flow"
)

func (e *Engine) compileHandleExtractionGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.GraphInput, nodex.GraphOutput]()

	if err := graph.AddLambdaNode("validate_extraction",
		compose.InvokableLambda(func(ctx context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateExtraction(in, e.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_extraction: %w", err)
	}

	if err := graph.AddLambdaNode("load_or_create",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.LoadOrCreateConversation(ctx, in, e.store)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node load_or_create: %w", err)
	}

	if err := graph.AddLambdaNode("merge_slots",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.MergeSlots(in, e.policy)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node merge_slots: %w", err)
	}

	if err := graph.AddLambdaNode("record_objection",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.RecordObjection(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node record_objection: %w", err)
	}

	if err := graph.AddLambdaNode("recompute_score",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.RecomputeFitScore(in, e.calc)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node recompute_score: %w", err)
	}

	if err := graph.AddLambdaNode("advance_stage",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.AdvanceStage(in, e.requirements, e.calc.Threshold())
		}),
	); err != nil {
		return nil, fmt.Errorf("add node advance_stage: %w", err)
	}

	if err := graph.AddLambdaNode("save_state",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.SaveConversation(ctx, in, e.store)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node save_state: %w", err)
	}

	if err := graph.AddLambdaNode("finalize",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			return nodex.Finalize(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_extraction"},
		{"validate_extraction", "load_or_create"},
		{"load_or_create", "merge_slots"},
		{"merge_slots", "record_objection"},
		{"record_objection", "recompute_score"},
		{"recompute_score", "advance_stage"},
		{"advance_stage", "save_state"},
		{"save_state", "finalize"},
		{"finalize", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("dialogue.handle_extraction"))
	if err != nil {
		return nil, fmt.Errorf("compile dialogue graph: %w", err)
	}
	return runner, nil
}
