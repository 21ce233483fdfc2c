// internal/huffman/huffman_test.go
package huffman

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestBuildTreeRejectsEmptyFrequencyTable(t *testing.T) {
	if _, err := BuildTree(map[byte]int{}); err == nil {
		t.Fatalf("BuildTree(empty) succeeded, want an error")
	}
}

func TestBuildTreeSingleSymbolProducesUsableCode(t *testing.T) {
	root, err := BuildTree(map[byte]int{'x': 5})
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}
	table := Codes(root)
	c, ok := table['x']
	if !ok || c.Len == 0 {
		t.Fatalf("single-symbol code = %+v, ok=%v, want a usable nonzero-length code", c, ok)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog, again and again")
	freq := CountFrequencies(data)
	root, err := BuildTree(freq)
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}
	bitstream, _ := Encode(root, data)
	got := Decode(root, bitstream, len(data))
	if !bytes.Equal(got, data) {
		t.Fatalf("Decode(Encode(data)) = %q, want %q", got, data)
	}
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	cases := [][]byte{
		[]byte(""),
		[]byte("a"),
		[]byte("aaaaaaaaaaaaaaaaaaaa"),
		[]byte("the quick brown fox jumps over the lazy dog"),
		randomBytes(4096, 7),
	}
	for _, want := range cases {
		compressed, err := Compress(want)
		if err != nil {
			t.Fatalf("Compress(%d bytes): %v", len(want), err)
		}
		got, err := Decompress(compressed)
		if err != nil {
			t.Fatalf("Decompress: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("round trip mismatch for %d-byte input", len(want))
		}
	}
}

func TestCompressShrinksSkewedInput(t *testing.T) {
	data := bytes.Repeat([]byte{'a'}, 1000)
	compressed, err := Compress(data)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if len(compressed) >= len(data) {
		t.Fatalf("compressed length %d not smaller than input length %d for skewed data", len(compressed), len(data))
	}
}

func randomBytes(n int, seed int64) []byte {
	rng := rand.New(rand.NewSource(seed))
	b := make([]byte, n)
	rng.Read(b)
	return b
}
