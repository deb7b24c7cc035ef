// Copyright (C) 2017 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/gfxtrace/gfxtrace/core/data/chunk"
	"github.com/gfxtrace/gfxtrace/core/data/section"
	"github.com/gfxtrace/gfxtrace/core/log"
	"github.com/gfxtrace/gfxtrace/gfxtrace/cmds"
)

type (
	// Summary counts chunks by kind.
	Summary       map[chunk.Kind]int
	SummaryRecord struct {
		Name  string
		Count int
	}
	SummaryList []SummaryRecord
)

func (s Summary) Add(k chunk.Kind) { s[k]++ }

func (s Summary) List() SummaryList {
	result := SummaryList{}
	for k, count := range s {
		result = append(result, SummaryRecord{Name: cmds.Name(k), Count: count})
	}
	sort.Sort(result)
	return result
}

func (s Summary) Format(f fmt.State, c rune) {
	s.List().Format(f, c)
}

func (l SummaryList) Len() int           { return len(l) }
func (l SummaryList) Swap(i, j int)      { l[i], l[j] = l[j], l[i] }
func (l SummaryList) Less(i, j int) bool { return l[i].Name < l[j].Name }
func (l SummaryList) Format(f fmt.State, c rune) {
	for _, r := range l {
		fmt.Fprintf(f, "%s : %d\n", r.Name, r.Count)
	}
}

// summarise prints the chunk kinds of the trace at path. With verbose every
// chunk is decoded and printed in full.
func summarise(ctx context.Context, path string, verbose bool) error {
	in, err := section.Open(path)
	if err != nil {
		return log.Err(ctx, err, "Unable to open trace")
	}
	defer in.Close()
	s, err := readSummary(ctx, in, verbose, os.Stdout)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "%v", s)
	return nil
}

func readSummary(ctx context.Context, in section.Source, verbose bool, w io.Writer) (Summary, error) {
	r, err := in.ReadSection(section.FrameCapture)
	if err != nil {
		return nil, log.Err(ctx, err, "Unable to read trace")
	}
	stream, err := chunk.NewStreamReader(r)
	if err != nil {
		return nil, log.Err(ctx, err, "Unable to read trace")
	}
	s := Summary{}
	for {
		c, err := stream.Next()
		switch {
		case err == io.EOF:
			return s, nil
		case err != nil:
			return nil, log.Err(ctx, err, "Unable to read chunk")
		}
		s.Add(c.Kind)
		if !verbose {
			continue
		}
		if c.Truncated {
			fmt.Fprintf(w, "%v\n", c)
			continue
		}
		st, err := chunk.Decode(c)
		if err != nil {
			log.W(ctx, "Chunk %v: %v", c, err)
			continue
		}
		fmt.Fprintf(w, "%s ", cmds.Name(c.Kind))
		st.Print(w)
	}
}
