package spatial

import "sort"

// DefaultNodeSize is the leaf size below which KD stops splitting and scans linearly.
const DefaultNodeSize = 64

// KD is a static k-d tree packed into flat arrays. It is built once from a
// snapshot and never updated; rebuild it when the points change.
type KD struct {
	nodeSize int
	ids      []int
	coords   []float64 // x0,y0,x1,y1,... in tree order
}

// NewKD bulk-loads n points. xy returns the coordinates of entity i.
func NewKD(n int, nodeSize int, xy func(i int) (float64, float64)) *KD {
	if nodeSize <= 0 {
		nodeSize = DefaultNodeSize
	}
	kd := &KD{
		nodeSize: nodeSize,
		ids:      make([]int, n),
		coords:   make([]float64, 2*n),
	}
	for i := 0; i < n; i++ {
		x, y := xy(i)
		kd.ids[i] = i
		kd.coords[2*i] = x
		kd.coords[2*i+1] = y
	}
	kd.sortKD(0, n-1, 0)
	return kd
}

func (kd *KD) Len() int { return len(kd.ids) }

// Within returns ids of points at distance <= r from (x, y), sorted ascending.
func (kd *KD) Within(x, y, r float64) []int {
	if len(kd.ids) == 0 {
		return nil
	}
	var out []int
	r2 := r * r

	// Each frame is (left, right, axis).
	stack := []int{0, len(kd.ids) - 1, 0}
	for len(stack) > 0 {
		axis := stack[len(stack)-1]
		right := stack[len(stack)-2]
		left := stack[len(stack)-3]
		stack = stack[:len(stack)-3]

		if right-left <= kd.nodeSize {
			for i := left; i <= right; i++ {
				if sqDist(kd.coords[2*i], kd.coords[2*i+1], x, y) <= r2 {
					out = append(out, kd.ids[i])
				}
			}
			continue
		}

		m := (left + right) >> 1
		mx := kd.coords[2*m]
		my := kd.coords[2*m+1]
		if sqDist(mx, my, x, y) <= r2 {
			out = append(out, kd.ids[m])
		}

		nextAxis := 1 - axis
		var lo, hi, v float64
		if axis == 0 {
			lo, hi, v = x-r, x+r, mx
		} else {
			lo, hi, v = y-r, y+r, my
		}
		if lo <= v {
			stack = append(stack, left, m-1, nextAxis)
		}
		if hi >= v {
			stack = append(stack, m+1, right, nextAxis)
		}
	}
	sort.Ints(out)
	return out
}

func (kd *KD) sortKD(left, right, axis int) {
	if right-left <= kd.nodeSize {
		return
	}
	m := (left + right) >> 1
	kd.selectNth(m, left, right, axis)
	kd.sortKD(left, m-1, 1-axis)
	kd.sortKD(m+1, right, 1-axis)
}

// selectNth rearranges [left, right] so that position k holds the element that
// would be there if the range were sorted on axis.
func (kd *KD) selectNth(k, left, right, axis int) {
	for right > left {
		p := kd.partition(left, right, (left+right)>>1, axis)
		switch {
		case p == k:
			return
		case k < p:
			right = p - 1
		default:
			left = p + 1
		}
	}
}

func (kd *KD) partition(left, right, pivot, axis int) int {
	pv := kd.coords[2*pivot+axis]
	pid := kd.ids[pivot]
	kd.swap(pivot, right)
	store := left
	for i := left; i < right; i++ {
		if kd.less(i, pv, pid, axis) {
			kd.swap(i, store)
			store++
		}
	}
	kd.swap(store, right)
	return store
}

// less orders by coordinate, then by id so equal coordinates sort stably.
func (kd *KD) less(i int, pv float64, pid, axis int) bool {
	v := kd.coords[2*i+axis]
	if v != pv {
		return v < pv
	}
	return kd.ids[i] < pid
}

func (kd *KD) swap(i, j int) {
	kd.ids[i], kd.ids[j] = kd.ids[j], kd.ids[i]
	kd.coords[2*i], kd.coords[2*j] = kd.coords[2*j], kd.coords[2*i]
	kd.coords[2*i+1], kd.coords[2*j+1] = kd.coords[2*j+1], kd.coords[2*i+1]
}
