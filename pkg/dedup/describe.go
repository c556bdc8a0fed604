// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dedup

import (
	"fmt"
	"math"

	"github.com/xlab/treeprint"
)

// Describe renders the layout of a set, e.g.
//
//	weak dedup
//	├── cols: 2
//	├── capacity: 1024
//	...
func Describe(d Dedup) string {
	return DescribeTree(d).String()
}

func DescribeTree(d Dedup) treeprint.Tree {
	st := d.Stats()
	tree := treeprint.NewWithRoot(fmt.Sprintf("%s dedup", st.Flavor))
	tree.AddNode(fmt.Sprintf("cols: %d", st.Cols))
	tree.AddNode(fmt.Sprintf("capacity: %d", st.Capacity))
	tree.AddNode(fmt.Sprintf("rows: %d", st.Rows))
	tree.AddNode(fmt.Sprintf("buckets: %d", st.Buckets))
	tree.AddNode(fmt.Sprintf("weak: %v", st.Weak))
	switch x := d.(type) {
	case *StrongDedup:
		strong := tree.AddBranch("strong")
		if at := x.StrongCapacity(); at == math.MaxInt {
			strong.AddNode("weakenAt: never")
		} else {
			strong.AddNode(fmt.Sprintf("weakenAt: %d", at))
		}
	case *WeakCrossSourceDedup:
		cross := tree.AddBranch("cross-source")
		cross.AddNode(fmt.Sprintf("bucketWidth: %d", x.BucketWidth()))
		cross.AddNode(fmt.Sprintf("maxSources: %d", MaxSources))
	}
	state, users := d.base().rel.current()
	rel := tree.AddBranch("release")
	rel.AddNode(fmt.Sprintf("state: %s", state))
	rel.AddNode(fmt.Sprintf("rebindUsers: %d", users))
	return tree
}
