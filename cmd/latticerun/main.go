// Copyright 2025 The Lattice ML Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// latticerun loads an LGRF model, prints its interface and optionally
// runs it with seeded random inputs.
//
// Usage:
//
//	latticerun [flags] model.lgrf
//
// With -runs 0 only the model summary is printed. Dynamic input
// dimensions are run as size 1.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"time"

	"k8s.io/klog/v2"

	"github.com/lattice-ml/lattice/model"
	"github.com/lattice-ml/lattice/tensor"
)

var (
	runs    = flag.Int("runs", 1, "number of inference runs (0 = just print the model summary)")
	seed    = flag.Int64("seed", 42, "seed for the random input values")
	workers = flag.Int("workers", 0, "worker count (0 = one per CPU, 1 = serial)")
	timed   = flag.Bool("time", false, "print per-operator timings for the last run")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "latticerun: %s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	if flag.NArg() != 1 {
		return fmt.Errorf("expected exactly one model file, got %d arguments", flag.NArg())
	}
	path := flag.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	m, err := model.LoadWithConfig(data, model.Config{Workers: *workers})
	if err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}

	fmt.Printf("%s: %d nodes, %d operators (%s)\n",
		path, len(m.Graph().Nodes), len(m.Plan().Order()), model.VectorInfo())
	printValues("inputs", m.Inputs())
	printValues("outputs", m.Outputs())
	if *runs == 0 {
		return nil
	}

	rng := rand.New(rand.NewSource(*seed))
	inputs := make(map[string]*tensor.Tensor, len(m.Inputs()))
	defer func() {
		for _, t := range inputs {
			t.Release()
		}
	}()
	for _, info := range m.Inputs() {
		t, err := randomTensor(rng, info)
		if err != nil {
			return fmt.Errorf("building input %q: %w", info.Name, err)
		}
		inputs[info.Name] = t
	}

	var (
		outs    map[string]*tensor.Tensor
		timings []model.NodeTiming
		total   time.Duration
	)
	for i := 0; i < *runs; i++ {
		start := time.Now()
		if *timed && i == *runs-1 {
			outs, timings, err = m.RunTimed(ctx, inputs)
		} else {
			outs, err = m.Run(ctx, inputs)
		}
		if err != nil {
			return err
		}
		total += time.Since(start)
		if i < *runs-1 {
			for _, t := range outs {
				t.Release()
			}
		}
	}
	fmt.Printf("ran %d time(s), avg %v\n", *runs, total/time.Duration(*runs))

	names := make([]string, 0, len(outs))
	for name := range outs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t := outs[name]
		fmt.Printf("  %s: %s %v\n", name, t.DType(), t.Shape())
		t.Release()
	}

	if *timed {
		fmt.Println("timings:")
		for _, nt := range timings {
			fmt.Printf("  %4d %-20s %-20q %v\n", nt.Node, nt.Op, nt.Name, nt.Duration)
		}
	}
	return nil
}

func printValues(label string, infos []model.ValueInfo) {
	fmt.Printf("%s:\n", label)
	for _, info := range infos {
		fmt.Printf("  %s: %s %v\n", info.Name, info.DType, info.Dims)
	}
}

// randomTensor builds a seeded random tensor matching info; dynamic
// dims become 1.
func randomTensor(rng *rand.Rand, info model.ValueInfo) (*tensor.Tensor, error) {
	shape := make(tensor.Shape, len(info.Dims))
	for i, d := range info.Dims {
		if d == -1 {
			d = 1
		}
		shape[i] = d
	}
	t, err := tensor.New(shape, info.DType)
	if err != nil {
		return nil, err
	}
	switch info.DType {
	case tensor.Float32:
		vals := tensor.Values[float32](t)
		for i := range vals {
			vals[i] = rng.Float32()*2 - 1
		}
	case tensor.Int32:
		vals := tensor.Values[int32](t)
		for i := range vals {
			vals[i] = rng.Int31n(10)
		}
	case tensor.Uint8:
		vals := tensor.Values[uint8](t)
		for i := range vals {
			vals[i] = uint8(rng.Intn(256))
		}
	case tensor.Bool:
		vals := tensor.Values[bool](t)
		for i := range vals {
			vals[i] = rng.Intn(2) == 1
		}
	}
	return t, nil
}
