// Command ctlplane-configck validates a config-delta YAML document
// offline, printing each decoded delta's kind/name and flagging any
// document that fails to decode — an operator debug tool, not part of
// the running core.
package main

import (
	"fmt"
	"os"

	"github.com/routectl/ctlplane/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: ctlplane-configck <delta-file.yaml>")
		os.Exit(1)
	}

	f, err := os.Open(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
	defer f.Close()

	count := 0
	bad := 0
	err = config.DecodeDeltaStream(f, func(d config.Delta) error {
		count++
		fmt.Printf("[%d] kind=%s name=%q\n", count, d.Kind, d.Name)
		if err := checkKnownKind(d); err != nil {
			bad++
			fmt.Printf("    WARN: %v\n", err)
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "decoding %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}

	fmt.Printf("%d delta(s) decoded, %d warning(s)\n", count, bad)
	if bad > 0 {
		os.Exit(1)
	}
}

func checkKnownKind(d config.Delta) error {
	switch d.Kind {
	case config.DeltaInstance, config.DeltaPolicy, config.DeltaStaticRoute,
		config.DeltaAggregate, config.DeltaImportTarget, config.DeltaExportTarget,
		config.DeltaDelete:
		return nil
	default:
		return fmt.Errorf("unrecognized delta kind %q", d.Kind)
	}
}
