// Command inspect dumps raw keys from a placeme pebble store, for
// debugging key layout and retention behavior against a live data dir.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"

	"github.com/cockroachdb/pebble"
)

func main() {
	dbPath := flag.String("db", "./.database/store", "pebble store path")
	prefix := flag.String("prefix", "", "only dump keys with this prefix")
	values := flag.Bool("values", false, "print values too")
	flag.Parse()

	db, err := pebble.Open(*dbPath, &pebble.Options{ReadOnly: true})
	if err != nil {
		fmt.Fprintln(os.Stderr, "inspect:", err)
		os.Exit(1)
	}
	defer db.Close()

	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		fmt.Fprintln(os.Stderr, "inspect:", err)
		os.Exit(1)
	}
	defer iter.Close()

	p := []byte(*prefix)
	n := 0
	for iter.SeekGE(p); iter.Valid(); iter.Next() {
		if len(p) > 0 && !bytes.HasPrefix(iter.Key(), p) {
			break
		}
		if *values {
			fmt.Printf("%s\t%s\n", iter.Key(), iter.Value())
		} else {
			fmt.Printf("%s\n", iter.Key())
		}
		n++
	}
	if err := iter.Error(); err != nil {
		fmt.Fprintln(os.Stderr, "inspect:", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "%d keys\n", n)
}
