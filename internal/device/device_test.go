package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_BitRoundTrip(t *testing.T) {
	m := NewMemory(SeriesQ)

	for _, c := range []Class{ClassM, ClassX, ClassY, ClassTC} {
		require.NoError(t, m.WriteBit(c, 3, true))
		v, err := m.ReadBit(c, 3)
		require.NoError(t, err)
		assert.True(t, v, "class %s", c)
	}
}

func TestMemory_WordRoundTrip(t *testing.T) {
	m := NewMemory(SeriesQ)

	require.NoError(t, m.WriteWord(ClassD, 0, 1234))
	v, err := m.ReadWord(ClassD, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(1234), v)
}

func TestMemory_WordHoldsFull16BitRange(t *testing.T) {
	m := NewMemory(SeriesQ)
	require.NoError(t, m.WriteWord(ClassD, 0, 0xFFFF))
	v, err := m.ReadWord(ClassD, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xFFFF), v)
}

func TestMemory_AddressOutOfRange(t *testing.T) {
	m := NewMemory(SeriesQ)

	_, err := m.ReadWord(ClassD, 99999)
	assert.ErrorIs(t, err, ErrAddressOutOfRange)

	err = m.WriteBit(ClassM, -1, true)
	assert.Error(t, err)
}

func TestMemory_WidthMismatch(t *testing.T) {
	m := NewMemory(SeriesQ)

	_, err := m.ReadBit(ClassD, 0)
	assert.ErrorIs(t, err, ErrWidthMismatch)

	_, err = m.ReadWord(ClassM, 0)
	assert.ErrorIs(t, err, ErrWidthMismatch)
}

func TestMemory_UnknownClass(t *testing.T) {
	m := NewMemory(SeriesQ)
	_, err := m.ReadBit(Class("QQ"), 0)
	assert.ErrorIs(t, err, ErrUnknownClass)
}

func TestMemory_SeriesAddressSpaceDiffers(t *testing.T) {
	q := NewMemory(SeriesQ)
	iqr := NewMemory(SeriesIQR)

	_, err := q.ReadWord(ClassD, 12288)
	assert.Error(t, err, "D12288 is out of range on Q series")

	_, err = iqr.ReadWord(ClassD, 12288)
	assert.NoError(t, err, "D12288 is in range on iQ-R series")
}

func TestMemory_BatchReadWrite(t *testing.T) {
	m := NewMemory(SeriesQ)

	require.NoError(t, m.WriteBits(ClassM, 0, []bool{true, false, true, true}))
	bits, err := m.ReadBits(ClassM, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true, true}, bits)

	require.NoError(t, m.WriteWords(ClassD, 10, []uint16{1, 2, 3}))
	words, err := m.ReadWords(ClassD, 10, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint16{1, 2, 3}, words)
}

func TestMemory_PointCountCeilings(t *testing.T) {
	m := NewMemory(SeriesQ)

	_, err := m.ReadBits(ClassM, 0, MaxBitPoints+1)
	assert.ErrorIs(t, err, ErrPointCount)

	_, err = m.ReadWords(ClassD, 0, MaxWordPoints+1)
	assert.ErrorIs(t, err, ErrPointCount)
}

func TestMemory_ResetAll(t *testing.T) {
	m := NewMemory(SeriesQ)
	require.NoError(t, m.WriteWord(ClassD, 0, 42))
	require.NoError(t, m.WriteBit(ClassM, 0, true))

	m.ResetAll()

	v, err := m.ReadWord(ClassD, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), v)

	b, err := m.ReadBit(ClassM, 0)
	require.NoError(t, err)
	assert.False(t, b)
}

func TestMemory_TimerCounterAliasingIsPlainDevices(t *testing.T) {
	// TC/TN are just ordinary device classes at this layer; the engine is
	// responsible for writing both consistently.
	m := NewMemory(SeriesQ)
	require.NoError(t, m.WriteWord(ClassTN, 5, 100))
	require.NoError(t, m.WriteBit(ClassTC, 5, true))

	word, err := m.ReadWord(ClassTN, 5)
	require.NoError(t, err)
	assert.Equal(t, uint16(100), word)

	bit, err := m.ReadBit(ClassTC, 5)
	require.NoError(t, err)
	assert.True(t, bit)
}

func TestMemory_Concurrent(t *testing.T) {
	m := NewMemory(SeriesQ)
	done := make(chan struct{})

	for i := 0; i < 50; i++ {
		go func(i int) {
			_ = m.WriteWord(ClassD, 0, uint16(i))
			_, _ = m.ReadWord(ClassD, 0)
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 50; i++ {
		<-done
	}
}

func TestClassByCode3E(t *testing.T) {
	c, def, ok := ClassByCode3E(0xA8)
	require.True(t, ok)
	assert.Equal(t, ClassD, c)
	assert.Equal(t, WidthWord, def.Width)

	_, _, ok = ClassByCode3E(0xFF)
	assert.False(t, ok)
}
