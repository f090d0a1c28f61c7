package crypto

// Key wraps raw symmetric key material. It exists mainly so callers don't
// pass bare []byte around and accidentally log or compare it loosely.
type Key struct {
	data []byte
}

// NewKey wraps raw bytes as a Key. Callers retain ownership of buf; Key
// copies it so later mutation of buf doesn't affect the Key.
func NewKey(buf []byte) Key {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	return Key{data: cp}
}

// Data returns a copy of the key's raw bytes.
func (k Key) Data() []byte {
	cp := make([]byte, len(k.data))
	copy(cp, k.data)
	return cp
}

func (k Key) Len() int { return len(k.data) }

// Empty reports whether the key has never been set.
func (k Key) Empty() bool { return len(k.data) == 0 }
