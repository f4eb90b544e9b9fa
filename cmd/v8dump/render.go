package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/acolita/v8clone/pkg/v8print"
	"github.com/acolita/v8clone/pkg/v8serialize"
)

var renderFormat string

var renderCmd = &cobra.Command{
	Use:   "render <file>",
	Short: "Parse a structured-clone file and print it as JavaScript source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := parseRenderFormat(renderFormat)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return errors.Wrap(err, "reading input file")
		}

		val, heap, err := v8serialize.Parse(data)
		if err != nil {
			return errors.Wrap(err, "parsing structured-clone data")
		}

		out, err := v8print.Display(heap, val, v8print.Options{Mode: mode})
		if err != nil {
			return errors.Wrap(err, "rendering value")
		}

		fmt.Println(out)
		return nil
	},
}

func parseRenderFormat(s string) (v8print.Mode, error) {
	switch s {
	case "", "expression":
		return v8print.ModeExpression, nil
	case "repl":
		return v8print.ModeRepl, nil
	case "eval":
		return v8print.ModeEval, nil
	default:
		return 0, errors.Errorf("unknown --format %q: want repl, expression, or eval", s)
	}
}

func init() {
	renderCmd.Flags().StringVar(&renderFormat, "format", "expression", "output format: repl|expression|eval")
}
