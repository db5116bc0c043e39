package broadphase

import (
	"math"
)

/// Returned by query callbacks. Return false to terminate the query.
type TreeQueryCallback func(proxyID int) bool

/// Returned by ray cast callbacks. Return 0 to terminate, the input max
/// fraction to continue, or a value in between to clip the ray.
type TreeRayCastCallback func(input RayCastInput, proxyID int) float64

const NullNode = -1

type treeNode[T any] struct {
	/// Enlarged AABB
	aabb AABB

	userData T

	// parent when allocated, next when free
	parent int

	child1 int
	child2 int

	// leaf = 0, free node = -1
	height int
}

func (node treeNode[T]) isLeaf() bool {
	return node.child1 == NullNode
}

/// A dynamic AABB tree broad-phase, inspired by Nathanael Presson's btDbvt.
/// A dynamic tree arranges data in a binary tree to accelerate
/// queries such as volume queries and ray casts. Leafs are proxies
/// with an AABB. In the tree we expand the proxy AABB by the extension
/// so that the proxy AABB is bigger than the client object. This allows the client
/// object to move by small amounts without triggering a tree update.
///
/// Nodes are pooled and relocatable, so we use node indices rather than pointers.
type DynamicTree[T any] struct {
	root int

	nodes     []treeNode[T]
	nodeCount int
	freeList  int

	leafCount      int
	insertionCount int

	extension  float64
	multiplier float64

	// Reused between queries. Nil while a query is running.
	stack *GrowableStack[int]
}

func NewDynamicTree[T any](extension, multiplier float64) *DynamicTree[T] {
	tree := &DynamicTree[T]{
		root:       NullNode,
		extension:  extension,
		multiplier: multiplier,
		stack:      NewGrowableStack[int](256),
	}

	const initialCapacity = 16
	tree.nodes = make([]treeNode[T], initialCapacity)

	// Build a linked list for the free list.
	for i := 0; i < initialCapacity-1; i++ {
		tree.nodes[i].parent = i + 1
		tree.nodes[i].height = -1
	}
	tree.nodes[initialCapacity-1].parent = NullNode
	tree.nodes[initialCapacity-1].height = -1
	tree.freeList = 0

	return tree
}

func (tree *DynamicTree[T]) checkProxy(proxyID int) {
	Assert(0 <= proxyID && proxyID < len(tree.nodes))
	Assert(tree.nodes[proxyID].height == 0)
}

/// Get proxy user data.
func (tree *DynamicTree[T]) GetUserData(proxyID int) T {
	tree.checkProxy(proxyID)
	return tree.nodes[proxyID].userData
}

/// Get the fat AABB for a proxy.
func (tree *DynamicTree[T]) GetFatAABB(proxyID int) AABB {
	tree.checkProxy(proxyID)
	return tree.nodes[proxyID].aabb
}

/// Get the fat AABB enclosing every proxy. ok is false for an empty tree.
func (tree *DynamicTree[T]) GetRootAABB() (aabb AABB, ok bool) {
	if tree.root == NullNode {
		return AABB{}, false
	}
	return tree.nodes[tree.root].aabb, true
}

/// Number of live proxies.
func (tree *DynamicTree[T]) ProxyCount() int {
	return tree.leafCount
}

// Allocate a node from the pool. Grow the pool if necessary.
func (tree *DynamicTree[T]) allocateNode() int {
	// Expand the node pool as needed.
	if tree.freeList == NullNode {
		Assert(tree.nodeCount == len(tree.nodes))

		// The free list is empty. Rebuild a bigger pool.
		oldCapacity := len(tree.nodes)
		tree.nodes = append(tree.nodes, make([]treeNode[T], oldCapacity)...)
		capacity := len(tree.nodes)

		// Build a linked list for the free list. The parent
		// pointer becomes the "next" pointer.
		for i := oldCapacity; i < capacity-1; i++ {
			tree.nodes[i].parent = i + 1
			tree.nodes[i].height = -1
		}
		tree.nodes[capacity-1].parent = NullNode
		tree.nodes[capacity-1].height = -1
		tree.freeList = oldCapacity
	}

	// Peel a node off the free list.
	nodeID := tree.freeList
	node := &tree.nodes[nodeID]
	tree.freeList = node.parent

	var zero T
	node.parent = NullNode
	node.child1 = NullNode
	node.child2 = NullNode
	node.height = 0
	node.userData = zero
	tree.nodeCount++

	return nodeID
}

// Return a node to the pool.
func (tree *DynamicTree[T]) freeNode(nodeID int) {
	Assert(0 <= nodeID && nodeID < len(tree.nodes))
	Assert(0 < tree.nodeCount)

	var zero T
	tree.nodes[nodeID].userData = zero
	tree.nodes[nodeID].parent = tree.freeList
	tree.nodes[nodeID].height = -1
	tree.freeList = nodeID
	tree.nodeCount--
}

/// Create a proxy in the tree as a leaf node. We return the index
/// of the node instead of a pointer so that we can grow
/// the node pool.
func (tree *DynamicTree[T]) CreateProxy(aabb AABB, userData T) int {
	proxyID := tree.allocateNode()

	// Fatten the aabb.
	tree.nodes[proxyID].aabb = aabb.Enlarged(tree.extension)
	tree.nodes[proxyID].userData = userData
	tree.nodes[proxyID].height = 0

	tree.insertLeaf(proxyID)
	tree.leafCount++

	return proxyID
}

/// Destroy a proxy. Destroying a free node is a caller error and panics.
func (tree *DynamicTree[T]) DestroyProxy(proxyID int) {
	tree.checkProxy(proxyID)
	Assert(tree.nodes[proxyID].isLeaf())

	tree.removeLeaf(proxyID)
	tree.freeNode(proxyID)
	tree.leafCount--
}

/// Move a proxy with a swepted AABB. If the proxy has moved outside of its fattened AABB,
/// then the proxy is removed from the tree and re-inserted. Otherwise
/// the function returns immediately.
/// @return true if the proxy was re-inserted.
func (tree *DynamicTree[T]) MoveProxy(proxyID int, aabb AABB, displacement Vec2) bool {
	tree.checkProxy(proxyID)
	Assert(tree.nodes[proxyID].isLeaf())

	if tree.nodes[proxyID].aabb.Contains(aabb) {
		return false
	}

	tree.removeLeaf(proxyID)

	// Extend AABB.
	b := aabb.Enlarged(tree.extension)

	// Predict AABB displacement.
	d := displacement.Mul(tree.multiplier)

	if d[0] < 0.0 {
		b.LowerBound[0] += d[0]
	} else {
		b.UpperBound[0] += d[0]
	}

	if d[1] < 0.0 {
		b.LowerBound[1] += d[1]
	} else {
		b.UpperBound[1] += d[1]
	}

	tree.nodes[proxyID].aabb = b

	tree.insertLeaf(proxyID)

	return true
}

/// Query an AABB for overlapping proxies. The callback
/// is called for each proxy whose fat AABB overlaps the supplied AABB.
func (tree *DynamicTree[T]) Query(queryCallback TreeQueryCallback, aabb AABB) {
	stack := tree.stack
	if stack == nil {
		// Re-entrant query from inside a callback.
		stack = NewGrowableStack[int](64)
	}
	tree.stack = nil
	defer func() {
		stack.Reset()
		tree.stack = stack
	}()

	stack.Push(tree.root)

	for stack.GetCount() > 0 {
		nodeID, _ := stack.Pop()
		if nodeID == NullNode {
			continue
		}

		node := &tree.nodes[nodeID]

		if TestOverlapBoundingBoxes(node.aabb, aabb) {
			if node.isLeaf() {
				if !queryCallback(nodeID) {
					return
				}
			} else {
				stack.Push(node.child1)
				stack.Push(node.child2)
			}
		}
	}
}

/// Ray-cast against the proxies in the tree. This relies on the callback
/// to perform a exact ray-cast in the case were the proxy contains a shape.
/// The callback also performs the any collision filtering. This has performance
/// roughly equal to k * log(n), where k is the number of collisions and n is the
/// number of proxies in the tree.
func (tree *DynamicTree[T]) RayCast(rayCastCallback TreeRayCastCallback, input RayCastInput) {
	p1 := input.P1
	p2 := input.P2
	r := p2.Sub(p1)
	Assert(Vec2LengthSquared(r) > 0.0)
	Vec2Normalize(&r)

	// v is perpendicular to the segment.
	v := Vec2CrossScalarVector(1.0, r)
	absV := Vec2Abs(v)

	// Separating axis for segment (Gino, p80).
	// |dot(v, p1 - c)| > dot(|v|, h)

	maxFraction := input.MaxFraction

	// Build a bounding box for the segment.
	t := p1.Add(p2.Sub(p1).Mul(maxFraction))
	segmentAABB := MakeAABB(Vec2Min(p1, t), Vec2Max(p1, t))

	stack := NewGrowableStack[int](64)
	stack.Push(tree.root)

	for stack.GetCount() > 0 {
		nodeID, _ := stack.Pop()
		if nodeID == NullNode {
			continue
		}

		node := &tree.nodes[nodeID]

		if !TestOverlapBoundingBoxes(node.aabb, segmentAABB) {
			continue
		}

		c := node.aabb.GetCenter()
		h := node.aabb.GetExtents()
		separation := math.Abs(v.Dot(p1.Sub(c))) - absV.Dot(h)
		if separation > 0.0 {
			continue
		}

		if node.isLeaf() {
			subInput := RayCastInput{P1: input.P1, P2: input.P2, MaxFraction: maxFraction}

			value := rayCastCallback(subInput, nodeID)

			if value == 0.0 {
				// The client has terminated the ray cast.
				return
			}

			if value > 0.0 {
				// Update segment bounding box.
				maxFraction = value
				t := p1.Add(p2.Sub(p1).Mul(maxFraction))
				segmentAABB = MakeAABB(Vec2Min(p1, t), Vec2Max(p1, t))
			}
		} else {
			stack.Push(node.child1)
			stack.Push(node.child2)
		}
	}
}

func (tree *DynamicTree[T]) insertLeaf(leaf int) {
	tree.insertionCount++

	if tree.root == NullNode {
		tree.root = leaf
		tree.nodes[tree.root].parent = NullNode
		return
	}

	// Find the best sibling for this node
	leafAABB := tree.nodes[leaf].aabb
	index := tree.root
	for !tree.nodes[index].isLeaf() {
		child1 := tree.nodes[index].child1
		child2 := tree.nodes[index].child2

		area := tree.nodes[index].aabb.GetPerimeter()
		combinedArea := tree.nodes[index].aabb.Union(leafAABB).GetPerimeter()

		// Cost of creating a new parent for this node and the new leaf
		cost := 2.0 * combinedArea

		// Minimum cost of pushing the leaf further down the tree
		inheritanceCost := 2.0 * (combinedArea - area)

		// Cost of descending into each child
		cost1 := tree.descendCost(child1, leafAABB) + inheritanceCost
		cost2 := tree.descendCost(child2, leafAABB) + inheritanceCost

		// Descend according to the minimum cost.
		if cost < cost1 && cost < cost2 {
			break
		}

		if cost1 < cost2 {
			index = child1
		} else {
			index = child2
		}
	}

	sibling := index

	// Create a new parent.
	oldParent := tree.nodes[sibling].parent
	newParent := tree.allocateNode()
	tree.nodes[newParent].parent = oldParent
	tree.nodes[newParent].aabb.CombineTwoInPlace(leafAABB, tree.nodes[sibling].aabb)
	tree.nodes[newParent].height = tree.nodes[sibling].height + 1

	if oldParent != NullNode {
		// The sibling was not the root.
		if tree.nodes[oldParent].child1 == sibling {
			tree.nodes[oldParent].child1 = newParent
		} else {
			tree.nodes[oldParent].child2 = newParent
		}
	} else {
		// The sibling was the root.
		tree.root = newParent
	}

	tree.nodes[newParent].child1 = sibling
	tree.nodes[newParent].child2 = leaf
	tree.nodes[sibling].parent = newParent
	tree.nodes[leaf].parent = newParent

	// Walk back up the tree fixing heights and AABBs
	tree.refit(tree.nodes[leaf].parent)
}

func (tree *DynamicTree[T]) descendCost(child int, leafAABB AABB) float64 {
	node := &tree.nodes[child]
	newArea := leafAABB.Union(node.aabb).GetPerimeter()
	if node.isLeaf() {
		return newArea
	}
	return newArea - node.aabb.GetPerimeter()
}

func (tree *DynamicTree[T]) refit(index int) {
	for index != NullNode {
		index = tree.balance(index)

		child1 := tree.nodes[index].child1
		child2 := tree.nodes[index].child2

		Assert(child1 != NullNode)
		Assert(child2 != NullNode)

		tree.nodes[index].height = 1 + MaxInt(tree.nodes[child1].height, tree.nodes[child2].height)
		tree.nodes[index].aabb.CombineTwoInPlace(tree.nodes[child1].aabb, tree.nodes[child2].aabb)

		index = tree.nodes[index].parent
	}
}

func (tree *DynamicTree[T]) removeLeaf(leaf int) {
	if leaf == tree.root {
		tree.root = NullNode
		return
	}

	parent := tree.nodes[leaf].parent
	grandParent := tree.nodes[parent].parent
	sibling := tree.nodes[parent].child1
	if sibling == leaf {
		sibling = tree.nodes[parent].child2
	}

	if grandParent != NullNode {
		// Destroy parent and connect sibling to grandParent.
		if tree.nodes[grandParent].child1 == parent {
			tree.nodes[grandParent].child1 = sibling
		} else {
			tree.nodes[grandParent].child2 = sibling
		}
		tree.nodes[sibling].parent = grandParent
		tree.freeNode(parent)

		// Adjust ancestor bounds.
		tree.refit(grandParent)
	} else {
		tree.root = sibling
		tree.nodes[sibling].parent = NullNode
		tree.freeNode(parent)
	}
}

// Perform a left or right rotation if node A is imbalanced.
// Returns the new root index.
func (tree *DynamicTree[T]) balance(iA int) int {
	Assert(iA != NullNode)

	A := &tree.nodes[iA]
	if A.isLeaf() || A.height < 2 {
		return iA
	}

	iB := A.child1
	iC := A.child2
	B := &tree.nodes[iB]
	C := &tree.nodes[iC]

	balance := C.height - B.height

	// Rotate C up
	if balance > 1 {
		iF := C.child1
		iG := C.child2
		F := &tree.nodes[iF]
		G := &tree.nodes[iG]

		// Swap A and C
		C.child1 = iA
		C.parent = A.parent
		A.parent = iC

		// A's old parent should point to C
		tree.replaceChild(C.parent, iA, iC)

		// Rotate
		if F.height > G.height {
			C.child2 = iF
			A.child2 = iG
			G.parent = iA
			A.aabb.CombineTwoInPlace(B.aabb, G.aabb)
			C.aabb.CombineTwoInPlace(A.aabb, F.aabb)

			A.height = 1 + MaxInt(B.height, G.height)
			C.height = 1 + MaxInt(A.height, F.height)
		} else {
			C.child2 = iG
			A.child2 = iF
			F.parent = iA
			A.aabb.CombineTwoInPlace(B.aabb, F.aabb)
			C.aabb.CombineTwoInPlace(A.aabb, G.aabb)

			A.height = 1 + MaxInt(B.height, F.height)
			C.height = 1 + MaxInt(A.height, G.height)
		}

		return iC
	}

	// Rotate B up
	if balance < -1 {
		iD := B.child1
		iE := B.child2
		D := &tree.nodes[iD]
		E := &tree.nodes[iE]

		// Swap A and B
		B.child1 = iA
		B.parent = A.parent
		A.parent = iB

		// A's old parent should point to B
		tree.replaceChild(B.parent, iA, iB)

		// Rotate
		if D.height > E.height {
			B.child2 = iD
			A.child1 = iE
			E.parent = iA
			A.aabb.CombineTwoInPlace(C.aabb, E.aabb)
			B.aabb.CombineTwoInPlace(A.aabb, D.aabb)

			A.height = 1 + MaxInt(C.height, E.height)
			B.height = 1 + MaxInt(A.height, D.height)
		} else {
			B.child2 = iE
			A.child1 = iD
			D.parent = iA
			A.aabb.CombineTwoInPlace(C.aabb, D.aabb)
			B.aabb.CombineTwoInPlace(A.aabb, E.aabb)

			A.height = 1 + MaxInt(C.height, D.height)
			B.height = 1 + MaxInt(A.height, E.height)
		}

		return iB
	}

	return iA
}

func (tree *DynamicTree[T]) replaceChild(parent, oldChild, newChild int) {
	if parent == NullNode {
		tree.root = newChild
		return
	}
	if tree.nodes[parent].child1 == oldChild {
		tree.nodes[parent].child1 = newChild
	} else {
		Assert(tree.nodes[parent].child2 == oldChild)
		tree.nodes[parent].child2 = newChild
	}
}

/// Get the height of the binary tree.
func (tree *DynamicTree[T]) GetHeight() int {
	if tree.root == NullNode {
		return 0
	}

	return tree.nodes[tree.root].height
}

/// Get the ratio of the sum of the node areas to the root area.
func (tree *DynamicTree[T]) GetAreaRatio() float64 {
	if tree.root == NullNode {
		return 0.0
	}

	rootArea := tree.nodes[tree.root].aabb.GetPerimeter()

	totalArea := 0.0
	for i := range tree.nodes {
		node := &tree.nodes[i]
		if node.height < 0 {
			// Free node in pool
			continue
		}

		totalArea += node.aabb.GetPerimeter()
	}

	return totalArea / rootArea
}

// Compute the height of a sub-tree.
func (tree *DynamicTree[T]) computeHeight(nodeID int) int {
	node := &tree.nodes[nodeID]
	if node.isLeaf() {
		return 0
	}

	return 1 + MaxInt(tree.computeHeight(node.child1), tree.computeHeight(node.child2))
}

func (tree *DynamicTree[T]) validateStructure(index int) {
	if index == NullNode {
		return
	}

	if index == tree.root {
		Assert(tree.nodes[index].parent == NullNode)
	}

	node := &tree.nodes[index]
	child1 := node.child1
	child2 := node.child2

	if node.isLeaf() {
		Assert(child2 == NullNode)
		Assert(node.height == 0)
		return
	}

	Assert(0 <= child1 && child1 < len(tree.nodes))
	Assert(0 <= child2 && child2 < len(tree.nodes))

	Assert(tree.nodes[child1].parent == index)
	Assert(tree.nodes[child2].parent == index)

	tree.validateStructure(child1)
	tree.validateStructure(child2)
}

func (tree *DynamicTree[T]) validateMetrics(index int) {
	if index == NullNode {
		return
	}

	node := &tree.nodes[index]
	if node.isLeaf() {
		return
	}

	child1 := node.child1
	child2 := node.child2

	height := 1 + MaxInt(tree.nodes[child1].height, tree.nodes[child2].height)
	Assert(node.height == height)

	var aabb AABB
	aabb.CombineTwoInPlace(tree.nodes[child1].aabb, tree.nodes[child2].aabb)

	Assert(aabb.LowerBound == node.aabb.LowerBound)
	Assert(aabb.UpperBound == node.aabb.UpperBound)

	tree.validateMetrics(child1)
	tree.validateMetrics(child2)
}

/// Validate this tree. For testing. Panics on a broken invariant.
func (tree *DynamicTree[T]) Validate() {
	tree.validateStructure(tree.root)
	tree.validateMetrics(tree.root)

	freeCount := 0
	freeIndex := tree.freeList
	for freeIndex != NullNode {
		Assert(0 <= freeIndex && freeIndex < len(tree.nodes))
		freeIndex = tree.nodes[freeIndex].parent
		freeCount++
	}

	if tree.root != NullNode {
		Assert(tree.GetHeight() == tree.computeHeight(tree.root))
	}
	Assert(tree.nodeCount+freeCount == len(tree.nodes))
}

/// Get the maximum balance of an node in the tree. The balance is the difference
/// in height of the two children of a node.
func (tree *DynamicTree[T]) GetMaxBalance() int {
	maxBalance := 0
	for i := range tree.nodes {
		node := &tree.nodes[i]
		if node.height <= 1 {
			continue
		}

		balance := AbsInt(tree.nodes[node.child2].height - tree.nodes[node.child1].height)
		maxBalance = MaxInt(maxBalance, balance)
	}

	return maxBalance
}

/// Build an optimal tree. Very expensive. For testing.
func (tree *DynamicTree[T]) RebuildBottomUp() {
	nodes := make([]int, 0, tree.leafCount)

	// Build array of leaves. Free the rest.
	for i := range tree.nodes {
		if tree.nodes[i].height < 0 {
			// free node in pool
			continue
		}

		if tree.nodes[i].isLeaf() {
			tree.nodes[i].parent = NullNode
			nodes = append(nodes, i)
		} else {
			tree.freeNode(i)
		}
	}

	if len(nodes) == 0 {
		tree.root = NullNode
		return
	}

	count := len(nodes)
	for count > 1 {
		minCost := MaxFloat
		iMin := -1
		jMin := -1

		for i := 0; i < count; i++ {
			aabbi := tree.nodes[nodes[i]].aabb

			for j := i + 1; j < count; j++ {
				cost := aabbi.Union(tree.nodes[nodes[j]].aabb).GetPerimeter()
				if cost < minCost {
					iMin = i
					jMin = j
					minCost = cost
				}
			}
		}

		index1 := nodes[iMin]
		index2 := nodes[jMin]

		parentIndex := tree.allocateNode()
		parent := &tree.nodes[parentIndex]
		parent.child1 = index1
		parent.child2 = index2
		parent.height = 1 + MaxInt(tree.nodes[index1].height, tree.nodes[index2].height)
		parent.aabb.CombineTwoInPlace(tree.nodes[index1].aabb, tree.nodes[index2].aabb)
		parent.parent = NullNode

		tree.nodes[index1].parent = parentIndex
		tree.nodes[index2].parent = parentIndex

		nodes[jMin] = nodes[count-1]
		nodes[iMin] = parentIndex
		count--
	}

	tree.root = nodes[0]

	tree.Validate()
}

/// Shift the world origin. Useful for large worlds.
/// The shift formula is: position -= newOrigin
func (tree *DynamicTree[T]) ShiftOrigin(newOrigin Vec2) {
	for i := range tree.nodes {
		if tree.nodes[i].height < 0 {
			continue
		}
		tree.nodes[i].aabb.LowerBound = tree.nodes[i].aabb.LowerBound.Sub(newOrigin)
		tree.nodes[i].aabb.UpperBound = tree.nodes[i].aabb.UpperBound.Sub(newOrigin)
	}
}
