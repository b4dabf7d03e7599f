package forest

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

//Params controls how a forest is grown
type Params struct {
	Trees           int
	MinSamplesSplit int
	//MaxDepth limits tree depth, zero means unlimited
	MaxDepth int
	Seed     int64
}

//DefaultParams returns 100 fully grown trees seeded with 42
func DefaultParams() Params {
	return Params{Trees: 100, MinSamplesSplit: 2, Seed: 42}
}

//Node is a split or, when Left is negative, a leaf
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

//Tree is a regression tree stored as a flat node array rooted at index 0
type Tree struct {
	Nodes []Node `json:"nodes"`
}

//Forest is an ensemble of regression trees fitted on bootstrap samples
type Forest struct {
	Width int    `json:"width"`
	Trees []Tree `json:"trees"`
}

//Fit grows a forest mapping rows of X to y. Tree i draws its bootstrap sample from a source
//seeded with Seed+i, so the result does not depend on scheduling.
func Fit(ctx context.Context, X [][]float64, y []float64, p Params) (*Forest, error) {
	if len(X) == 0 {
		return nil, errors.New("no training rows")
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("%d rows but %d labels", len(X), len(y))
	}
	if p.Trees < 1 {
		return nil, fmt.Errorf("forest needs at least one tree, got %d", p.Trees)
	}
	if p.MinSamplesSplit < 2 {
		p.MinSamplesSplit = 2
	}

	width := len(X[0])
	for idx, row := range X {
		if len(row) != width {
			return nil, fmt.Errorf("row %d has %d columns, want %d", idx, len(row), width)
		}
	}

	trees := make([]Tree, p.Trees)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i := range trees {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			rng := rand.New(rand.NewSource(p.Seed + int64(i)))
			sample := make([]int, len(X))
			for j := range sample {
				sample[j] = rng.Intn(len(X))
			}

			b := &builder{x: X, y: y, width: width, params: p}
			b.grow(sample, 0)
			trees[i] = Tree{Nodes: b.nodes}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Forest{Width: width, Trees: trees}, nil
}

//Predict returns the mean prediction of all trees
func (f *Forest) Predict(x []float64) float64 {
	sum := 0.0
	for idx := range f.Trees {
		sum += f.Trees[idx].predict(x)
	}
	return sum / float64(len(f.Trees))
}

//Check verifies that a decoded forest is structurally sound
func (f *Forest) Check() error {
	if len(f.Trees) == 0 {
		return errors.New("forest has no trees")
	}

	for t, tree := range f.Trees {
		if len(tree.Nodes) == 0 {
			return fmt.Errorf("tree %d has no nodes", t)
		}
		for n, node := range tree.Nodes {
			if node.Left < 0 {
				continue
			}
			if node.Left <= n || node.Right <= n || node.Left >= len(tree.Nodes) || node.Right >= len(tree.Nodes) {
				return fmt.Errorf("tree %d node %d has out of range children", t, n)
			}
			if node.Feature < 0 || node.Feature >= f.Width {
				return fmt.Errorf("tree %d node %d splits on unknown feature %d", t, n, node.Feature)
			}
		}
	}

	return nil
}

func (t Tree) predict(x []float64) float64 {
	n := t.Nodes[0]
	for n.Left >= 0 {
		if x[n.Feature] <= n.Threshold {
			n = t.Nodes[n.Left]
		} else {
			n = t.Nodes[n.Right]
		}
	}
	return n.Value
}

type builder struct {
	x      [][]float64
	y      []float64
	width  int
	params Params
	nodes  []Node
}

func (b *builder) grow(rows []int, depth int) int {
	labels := make([]float64, len(rows))
	for idx, r := range rows {
		labels[idx] = b.y[r]
	}

	self := len(b.nodes)
	b.nodes = append(b.nodes, Node{Left: -1, Right: -1, Value: stat.Mean(labels, nil)})

	if len(rows) < b.params.MinSamplesSplit {
		return self
	}
	if b.params.MaxDepth > 0 && depth >= b.params.MaxDepth {
		return self
	}
	if floats.Max(labels) == floats.Min(labels) {
		return self
	}

	feature, threshold, ok := b.bestSplit(rows)
	if !ok {
		return self
	}

	var left, right []int
	for _, r := range rows {
		if b.x[r][feature] <= threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)

	b.nodes[self].Feature = feature
	b.nodes[self].Threshold = threshold
	b.nodes[self].Left = l
	b.nodes[self].Right = r

	return self
}

//bestSplit finds the feature and midpoint threshold with the lowest summed squared error.
//The first candidate wins on ties.
func (b *builder) bestSplit(rows []int) (int, float64, bool) {
	n := len(rows)

	totalSum, totalSq := 0.0, 0.0
	for _, r := range rows {
		totalSum += b.y[r]
		totalSq += b.y[r] * b.y[r]
	}

	bestFeature, bestThreshold, bestSSE, found := 0, 0.0, 0.0, false
	sorted := make([]int, n)

	for f := 0; f < b.width; f++ {
		copy(sorted, rows)
		sort.SliceStable(sorted, func(i, j int) bool {
			return b.x[sorted[i]][f] < b.x[sorted[j]][f]
		})

		leftSum, leftSq := 0.0, 0.0
		for k := 1; k < n; k++ {
			prev := sorted[k-1]
			leftSum += b.y[prev]
			leftSq += b.y[prev] * b.y[prev]

			lo, hi := b.x[prev][f], b.x[sorted[k]][f]
			if lo == hi {
				continue
			}

			rightSum, rightSq := totalSum-leftSum, totalSq-leftSq
			sse := (leftSq - leftSum*leftSum/float64(k)) + (rightSq - rightSum*rightSum/float64(n-k))

			if !found || sse < bestSSE {
				bestFeature, bestThreshold, bestSSE, found = f, (lo+hi)/2, sse, true
			}
		}
	}

	return bestFeature, bestThreshold, found
}
