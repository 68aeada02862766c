package hash

// djb2Seed is the initial value of the djb2 string hash.
const djb2Seed uint32 = 5381

// DJB2 computes the djb2 hash of s: h = h*33 + c over every byte.
//
// It is fast and tiny but not collision resistant; callers that need exact
// identity must compare the full key on a hash match.
func DJB2(s string) uint32 {
	h := djb2Seed
	for i := 0; i < len(s); i++ {
		h = (h << 5) + h + uint32(s[i])
	}
	return h
}
