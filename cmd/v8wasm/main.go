// Command v8wasm is the WebAssembly entry point for this library: it
// registers v8clone.display(bytes, format) on the global JS object,
// backed by the same parser and printer used by the Go API and the
// v8dump CLI.
//
// Build with GOOS=js GOARCH=wasm.
package main

import (
	"syscall/js"

	"github.com/acolita/v8clone/pkg/v8print"
	"github.com/acolita/v8clone/pkg/v8serialize"
)

func display(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		panic("v8clone.display: expected at least one argument (bytes)")
	}

	data := jsBytesToGo(args[0])

	mode := v8print.ModeExpression
	if len(args) >= 2 {
		var err error
		mode, err = parseMode(args[1].String())
		if err != nil {
			panic(err.Error())
		}
	}

	val, heap, err := v8serialize.Parse(data)
	if err != nil {
		panic(err.Error())
	}

	out, err := v8print.Display(heap, val, v8print.Options{Mode: mode})
	if err != nil {
		panic(err.Error())
	}
	return out
}

func parseMode(s string) (v8print.Mode, error) {
	switch s {
	case "", "expression":
		return v8print.ModeExpression, nil
	case "repl":
		return v8print.ModeRepl, nil
	case "eval":
		return v8print.ModeEval, nil
	default:
		return 0, &unknownFormatError{s}
	}
}

type unknownFormatError struct{ format string }

func (e *unknownFormatError) Error() string {
	return "v8clone.display: unknown format " + e.format
}

func jsBytesToGo(v js.Value) []byte {
	length := v.Get("length").Int()
	out := make([]byte, length)
	js.CopyBytesToGo(out, v)
	return out
}

func main() {
	done := make(chan struct{})

	ns := js.Global().Get("Object").New()
	ns.Set("display", js.FuncOf(display))
	js.Global().Set("v8clone", ns)

	<-done
}
