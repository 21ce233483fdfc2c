// cmd/kvtool/main.go
//
// kvtool - command-line driver for a bptreekv database.
//
// Usage:
//
//	kvtool <database-path> <command> [args...]
//
// Commands:
//
//	create                  create a new database at the given path
//	put <key> <value>       insert or update a key
//	get <key>               print the value for a key
//	del <key>               remove a key
//	scan                    print every entry in key order
//	stat                    print size/depth summary
//
// Grounded on tur/cmd/turdb/main.go's thin os.Args dispatch into a package
// that does the real work, adapted from a single-command SQL REPL into a
// multi-subcommand driver since this engine has no query language to shell
// into.
package main

import (
	"fmt"
	"os"

	"bptreekv/pkg/kv"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: kvtool <database-path> <command> [args...]")
	fmt.Fprintln(os.Stderr, "commands: create, put <key> <value>, get <key>, del <key>, scan, stat")
}

func main() {
	if len(os.Args) < 3 {
		usage()
		os.Exit(1)
	}
	path, cmd, args := os.Args[1], os.Args[2], os.Args[3:]

	if cmd == "create" {
		db, err := kv.Create(path, kv.Options{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "create: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()
		fmt.Println("created", path)
		return
	}

	db, err := kv.Open(path, kv.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "open: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	switch cmd {
	case "put":
		if len(args) != 2 {
			usage()
			os.Exit(1)
		}
		key, val := []byte(args[0]), []byte(args[1])
		if ok, _ := db.Contains(key); ok {
			err = db.Update(key, val)
		} else {
			err = db.Insert(key, val)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "put: %v\n", err)
			os.Exit(1)
		}

	case "get":
		if len(args) != 1 {
			usage()
			os.Exit(1)
		}
		val, ok, err := db.Get([]byte(args[0]))
		if err != nil {
			fmt.Fprintf(os.Stderr, "get: %v\n", err)
			os.Exit(1)
		}
		if !ok {
			fmt.Println("(not found)")
			return
		}
		fmt.Println(string(val))

	case "del":
		if len(args) != 1 {
			usage()
			os.Exit(1)
		}
		if err := db.Remove([]byte(args[0])); err != nil {
			fmt.Fprintf(os.Stderr, "del: %v\n", err)
			os.Exit(1)
		}

	case "scan":
		entries, err := db.Scan(nil, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "scan: %v\n", err)
			os.Exit(1)
		}
		for _, e := range entries {
			fmt.Printf("%s\t%s\n", e[0], e[1])
		}

	case "stat":
		fmt.Printf("size=%d depth=%d empty=%v\n", db.Size(), db.Depth(), db.Empty())

	default:
		usage()
		os.Exit(1)
	}
}
