// voidmem-query loads a persisted manager snapshot and runs a jq-style
// filter expression over its to_dict() JSON, using itchyny/gojq.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/itchyny/gojq"

	"github.com/vthunder/voidmem/internal/voidconfig"
	"github.com/vthunder/voidmem/internal/voidmem"
)

func main() {
	snapshotPath := flag.String("snapshot", "", "path to a persisted manager snapshot (required)")
	expr := flag.String("expr", ".", "gojq filter expression to run over the snapshot")
	flag.Parse()

	if *snapshotPath == "" {
		fmt.Fprintln(os.Stderr, "voidmem-query: -snapshot is required")
		os.Exit(1)
	}

	m := voidmem.LoadJSON(*snapshotPath, voidconfig.Defaults())
	if m == nil {
		fmt.Fprintf(os.Stderr, "voidmem-query: failed to load snapshot from %s\n", *snapshotPath)
		os.Exit(1)
	}

	snap := m.ToDict()
	data, err := json.Marshal(snap)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voidmem-query: marshal snapshot: %v\n", err)
		os.Exit(1)
	}

	var input any
	if err := json.Unmarshal(data, &input); err != nil {
		fmt.Fprintf(os.Stderr, "voidmem-query: unmarshal snapshot: %v\n", err)
		os.Exit(1)
	}

	query, err := gojq.Parse(*expr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voidmem-query: parse expression: %v\n", err)
		os.Exit(1)
	}

	iter := query.RunWithContext(context.Background(), input)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			fmt.Fprintf(os.Stderr, "voidmem-query: %v\n", err)
			os.Exit(1)
		}
		if err := enc.Encode(v); err != nil {
			fmt.Fprintf(os.Stderr, "voidmem-query: encode result: %v\n", err)
			os.Exit(1)
		}
	}
}
