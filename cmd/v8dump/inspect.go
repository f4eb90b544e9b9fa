package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/acolita/v8clone/pkg/v8serialize"
	"github.com/acolita/v8clone/pkg/v8value"
)

var (
	kindStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#4682B4")).Bold(true)
	idStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Parse a structured-clone file and print a heap summary",
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

		log.WithField("slots", heap.Len()).Debug("parsed heap")

		fmt.Printf("%s %s\n", kindStyle.Render("root:"), valueStyle.Render(val.GoString()))
		for i := 0; i < heap.Len(); i++ {
			ref, ok := heap.ReferenceByID(uint32(i))
			if !ok {
				continue
			}
			hv, ok := heap.TryOpen(ref)
			if !ok {
				continue
			}
			fmt.Printf("%s %s  %s\n",
				idStyle.Render(fmt.Sprintf("*%d", i)),
				kindStyle.Render(hv.Kind().String()),
				valueStyle.Render(previewHeapValue(hv)))
		}
		return nil
	},
}

// previewHeapValue renders a short, single-line summary of a heap
// value's contents for the inspect table; it never recurses into
// nested heap references (those get their own row).
func previewHeapValue(hv *v8value.HeapValue) string {
	switch hv.Kind() {
	case v8value.KindObject:
		return fmt.Sprintf("%d properties", len(hv.Properties()))
	case v8value.KindDenseArray:
		return fmt.Sprintf("%d elements", len(hv.Elements()))
	case v8value.KindSparseArray:
		return fmt.Sprintf("length %d, %d properties", hv.SparseLength(), len(hv.Properties()))
	case v8value.KindMap:
		return fmt.Sprintf("%d entries", len(hv.MapEntries()))
	case v8value.KindSet:
		return fmt.Sprintf("%d values", len(hv.SetValues()))
	case v8value.KindArrayBuffer:
		return fmt.Sprintf("%d bytes", len(hv.ArrayBuffer().Data))
	case v8value.KindArrayBufferView:
		v := hv.ArrayBufferView()
		return fmt.Sprintf("offset %d, length %d", v.ByteOffset, v.Length)
	case v8value.KindRegExp:
		re := hv.RegExp()
		return fmt.Sprintf("/%s/%s", re.Source.GoString(), re.Flags.String())
	case v8value.KindDate:
		return fmt.Sprintf("%g ms since epoch", hv.Date().MillisSinceEpoch)
	case v8value.KindError:
		return hv.Error().Name.String()
	case v8value.KindStringObject:
		return hv.AsStringObject().GoString()
	case v8value.KindNumberObject:
		return fmt.Sprintf("%g", hv.AsNumberObject())
	case v8value.KindBooleanObject:
		return fmt.Sprintf("%t", hv.AsBooleanObject())
	default:
		return ""
	}
}
