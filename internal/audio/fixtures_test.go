package audio

import (
	"bytes"
	"encoding/binary"
)

// makeWAV builds a PCM RIFF/WAVE container. values are interleaved samples
// already in the container's bit depth (8-bit unsigned, others signed).
func makeWAV(rate, channels, bits int, values []int) []byte {
	bps := bits / 8
	dataLen := len(values) * bps

	var b bytes.Buffer
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(36+dataLen))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	binary.Write(&b, binary.LittleEndian, uint32(16))
	binary.Write(&b, binary.LittleEndian, uint16(1))
	binary.Write(&b, binary.LittleEndian, uint16(channels))
	binary.Write(&b, binary.LittleEndian, uint32(rate))
	binary.Write(&b, binary.LittleEndian, uint32(rate*channels*bps))
	binary.Write(&b, binary.LittleEndian, uint16(channels*bps))
	binary.Write(&b, binary.LittleEndian, uint16(bits))
	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, uint32(dataLen))

	for _, v := range values {
		switch bps {
		case 1:
			b.WriteByte(byte(v))
		case 2:
			binary.Write(&b, binary.LittleEndian, int16(v))
		case 3:
			b.WriteByte(byte(v))
			b.WriteByte(byte(v >> 8))
			b.WriteByte(byte(v >> 16))
		case 4:
			binary.Write(&b, binary.LittleEndian, int32(v))
		}
	}
	return b.Bytes()
}

// rampWAV is a mono 16-bit asset whose frame i holds (i+1)*step
func rampWAV(frames, rate int, step int) ([]byte, []int16) {
	values := make([]int, frames)
	pcm := make([]int16, frames)
	for i := range values {
		values[i] = (i + 1) * step
		pcm[i] = int16(values[i])
	}
	return makeWAV(rate, 1, 16, values), pcm
}
