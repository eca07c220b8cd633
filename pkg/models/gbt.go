package models

import (
	"context"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// treeNode is one node of a regression tree stored in a flat slice. Leaves
// have Feature == -1.
type treeNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
}

type regressionTree struct {
	Nodes []treeNode `json:"nodes"`
}

func (t *regressionTree) predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// booster is a squared-loss gradient-boosted ensemble for a single output.
type booster struct {
	Base         float64          `json:"base"`
	LearningRate float64          `json:"learningRate"`
	Trees        []regressionTree `json:"trees"`
}

func (b *booster) predict(x []float64) float64 {
	out := b.Base
	for i := range b.Trees {
		out += b.LearningRate * b.Trees[i].predict(x)
	}
	return out
}

type treeGrower struct {
	x        [][]float64
	sorted   [][]int // per feature, sample indices ordered by value
	assign   []int   // node currently holding each sample
	residual []float64
	maxDepth int
	minLeaf  int
	nodes    []treeNode
}

// sortByFeature orders sample indices by each feature once per fit.
func sortByFeature(x [][]float64) [][]int {
	if len(x) == 0 {
		return nil
	}
	out := make([][]int, len(x[0]))
	for f := range out {
		order := make([]int, len(x))
		for i := range order {
			order[i] = i
		}
		slices.SortStableFunc(order, func(a, b int) int {
			switch {
			case x[a][f] < x[b][f]:
				return -1
			case x[a][f] > x[b][f]:
				return 1
			}
			return 0
		})
		out[f] = order
	}
	return out
}

// fitBooster boosts cfg.Estimators trees on residuals of y. ctx is checked
// between trees.
func fitBooster(ctx context.Context, x [][]float64, sorted [][]int, y []float64, cfg EnsembleConfig) (*booster, error) {
	b := &booster{Base: stat.Mean(y, nil), LearningRate: cfg.LearningRate}

	pred := make([]float64, len(y))
	for i := range pred {
		pred[i] = b.Base
	}
	residual := make([]float64, len(y))
	idx := make([]int, len(y))

	for range cfg.Estimators {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		floats.SubTo(residual, y, pred)
		if floats.Norm(residual, 2) < 1e-12 {
			break
		}
		for i := range idx {
			idx[i] = i
		}
		g := &treeGrower{
			x:        x,
			sorted:   sorted,
			assign:   make([]int, len(y)),
			residual: residual,
			maxDepth: cfg.MaxDepth,
			minLeaf:  cfg.MinSamplesLeaf,
		}
		g.grow(idx, 0)
		tree := regressionTree{Nodes: g.nodes}
		for i := range pred {
			pred[i] += b.LearningRate * tree.predict(x[i])
		}
		b.Trees = append(b.Trees, tree)
	}
	return b, nil
}

// grow appends the subtree for idx and returns its node index.
func (g *treeGrower) grow(idx []int, depth int) int {
	sum := 0.0
	for _, i := range idx {
		sum += g.residual[i]
	}
	self := len(g.nodes)
	for _, i := range idx {
		g.assign[i] = self
	}
	g.nodes = append(g.nodes, treeNode{Feature: -1, Value: sum / float64(len(idx))})

	if depth >= g.maxDepth || len(idx) < 2*g.minLeaf {
		return self
	}
	feature, threshold, ok := g.bestSplit(self, len(idx), sum)
	if !ok {
		return self
	}

	var left, right []int
	for _, i := range idx {
		if g.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := g.grow(left, depth+1)
	r := g.grow(right, depth+1)
	g.nodes[self] = treeNode{Feature: feature, Threshold: threshold, Left: l, Right: r, Value: g.nodes[self].Value}
	return self
}

// bestSplit scans every feature for the threshold with the largest
// reduction in squared error among the count samples held by node.
func (g *treeGrower) bestSplit(node, count int, total float64) (int, float64, bool) {
	parent := total * total / float64(count)
	bestGain := 1e-12
	bestFeature, bestThreshold := -1, 0.0

	for f, order := range g.sorted {
		left := 0.0
		nl := 0
		prev := -1
		for _, i := range order {
			if g.assign[i] != node {
				continue
			}
			if prev >= 0 {
				lo, hi := g.x[prev][f], g.x[i][f]
				nr := count - nl
				if lo != hi && nl >= g.minLeaf && nr >= g.minLeaf {
					right := total - left
					gain := left*left/float64(nl) + right*right/float64(nr) - parent
					if gain > bestGain {
						bestGain = gain
						bestFeature = f
						bestThreshold = lo + (hi-lo)/2
						if bestThreshold >= hi {
							bestThreshold = lo
						}
					}
				}
			}
			left += g.residual[i]
			nl++
			prev = i
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}
