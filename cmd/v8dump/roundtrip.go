package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/acolita/v8clone/pkg/v8serialize"
	"github.com/acolita/v8clone/pkg/v8value"
)

var roundtripCmd = &cobra.Command{
	Use:   "roundtrip <file>",
	Short: "Parse, re-serialize, and re-parse a file, reporting whether the value survived",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return errors.Wrap(err, "reading input file")
		}

		val, heap, err := v8serialize.Parse(data)
		if err != nil {
			return errors.Wrap(err, "parsing structured-clone data")
		}

		reencoded, err := v8serialize.Serialize(heap, val)
		if err != nil {
			return errors.Wrap(err, "re-serializing parsed value")
		}

		val2, heap2, err := v8serialize.Parse(reencoded)
		if err != nil {
			return errors.Wrap(err, "re-parsing re-serialized value")
		}

		if v8value.Equal(val, heap, val2, heap2) {
			fmt.Printf("ok: %d bytes -> %d bytes, value_eq holds\n", len(data), len(reencoded))
			return nil
		}

		fmt.Printf("mismatch: %d bytes -> %d bytes, value_eq failed\n", len(data), len(reencoded))
		os.Exit(1)
		return nil
	},
}
