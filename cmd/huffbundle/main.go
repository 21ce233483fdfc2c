// cmd/huffbundle/main.go
//
// huffbundle - standalone Huffman file/directory bundler, independent of
// the key-value engine. Mirrors original_source's Compressor/Decompressor
// command-line tool (src/internal/storage/Compression.h), adapted from its
// interactive menu into two subcommands.
//
// Usage:
//
//	huffbundle pack   <bundle-file> <path> [path...]
//	huffbundle unpack <bundle-file> <dest-dir> [name]
//
// unpack with a trailing name decodes only that top-level entry
// (internal/huffman.DecodeBundleSelective); without one it restores
// everything in the bundle.
package main

import (
	"fmt"
	"os"

	"bptreekv/internal/huffman"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: huffbundle pack <bundle-file> <path> [path...]")
	fmt.Fprintln(os.Stderr, "       huffbundle unpack <bundle-file> <dest-dir> [name]")
}

func main() {
	if len(os.Args) < 3 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "pack":
		bundlePath := os.Args[2]
		paths := os.Args[3:]
		if len(paths) == 0 {
			usage()
			os.Exit(1)
		}
		data, err := huffman.EncodeBundle(paths)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pack: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(bundlePath, data, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "pack: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s (%d bytes)\n", bundlePath, len(data))

	case "unpack":
		if len(os.Args) < 4 {
			usage()
			os.Exit(1)
		}
		bundlePath, destDir := os.Args[2], os.Args[3]
		data, err := os.ReadFile(bundlePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "unpack: %v\n", err)
			os.Exit(1)
		}
		if len(os.Args) >= 5 {
			err = huffman.DecodeBundleSelective(data, destDir, os.Args[4])
		} else {
			err = huffman.DecodeBundle(data, destDir)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "unpack: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("unpacked into %s\n", destDir)

	default:
		usage()
		os.Exit(1)
	}
}
