package dag

import (
	"io"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"
	"github.com/pkg/errors"
	"gopkg.in/go-playground/colors.v1" //nolint
)

// stateRGB maps task states to node fill colours, matching the usual scheduler UI palette.
var stateRGB = map[string][3]uint8{
	"PENDING":         {211, 211, 211},
	"RUNNING":         {0, 255, 0},
	"SUCCESS":         {0, 128, 0},
	"FAILED":          {255, 0, 0},
	"UP_FOR_RETRY":    {255, 215, 0},
	"UPSTREAM_FAILED": {255, 165, 0},
}

// StateColor returns the hex fill colour for a task state. Unknown states are white.
func StateColor(state string) (string, error) {
	rgb, ok := stateRGB[state]
	if !ok {
		rgb = [3]uint8{255, 255, 255}
	}

	color, err := colors.RGB(rgb[0], rgb[1], rgb[2])
	if err != nil {
		return "", errors.Wrapf(err, "unable to get colour for %s", state)
	}
	return color.ToHEX().String(), nil
}

// DOT writes the DAG in Graphviz DOT format. When states is non-nil each task is
// filled with the colour of its state.
func (d *DAG) DOT(w io.Writer, states map[string]string) error {
	tasks, err := d.Tasks()
	if err != nil {
		return err
	}

	g := graph.New(taskHash, graph.Directed())
	for _, task := range tasks {
		options := []func(*graph.VertexProperties){
			graph.VertexAttribute("shape", "box"),
		}
		if states != nil {
			state := states[task.ID]
			color, err := StateColor(state)
			if err != nil {
				return err
			}
			options = append(options,
				graph.VertexAttribute("style", "filled"),
				graph.VertexAttribute("fillcolor", color),
				graph.VertexAttribute("xlabel", state),
			)
		}
		if err := g.AddVertex(task, options...); err != nil {
			return errors.Wrapf(err, "unable to add vertex %s", task.ID)
		}
	}

	edges, err := d.Edges()
	if err != nil {
		return err
	}
	for _, edge := range edges {
		if err := g.AddEdge(edge[0], edge[1]); err != nil {
			return errors.Wrapf(err, "unable to add edge from %s to %s", edge[0], edge[1])
		}
	}

	if err := draw.DOT(g, w, draw.GraphAttribute("label", d.ID), draw.GraphAttribute("rankdir", "LR")); err != nil {
		return errors.Wrap(err, "unable to render dot")
	}
	return nil
}
