package audio

// Ring хранит последние samples, чтобы не терять начало фразы до срабатывания детектора.
type Ring struct {
	buffer []int16
	head   int
	filled int
}

// NewRing с нулевым размером ничего не хранит.
func NewRing(size int) *Ring {
	if size < 0 {
		size = 0
	}
	return &Ring{buffer: make([]int16, size)}
}

func (r *Ring) Add(samples []int16) {
	if len(r.buffer) == 0 {
		return
	}
	for _, s := range samples {
		r.buffer[r.head] = s
		r.head = (r.head + 1) % len(r.buffer)
	}
	r.filled += len(samples)
	if r.filled > len(r.buffer) {
		r.filled = len(r.buffer)
	}
}

// Read возвращает накопленное в порядке записи.
func (r *Ring) Read() []int16 {
	out := make([]int16, r.filled)
	if r.filled == 0 {
		return out
	}
	start := (r.head - r.filled + len(r.buffer)) % len(r.buffer)
	for i := 0; i < r.filled; i++ {
		out[i] = r.buffer[(start+i)%len(r.buffer)]
	}
	return out
}

func (r *Ring) Reset() {
	r.head = 0
	r.filled = 0
}
