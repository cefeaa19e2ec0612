// evmone is a small inspection tool for EVM bytecode: it runs the
// pre-execution analysis and the EOF validator over hex-encoded code and
// reports what the interpreter would see.
package main

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/globe-project/globe-evmone/core/vm"
	"github.com/globe-project/globe-evmone/log"
)

func main() {
	app := &cli.App{
		Name:  "evmone",
		Usage: "analyze and validate EVM bytecode",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "enable debug logging",
			},
		},
		Before: func(ctx *cli.Context) error {
			level := slog.LevelInfo
			if ctx.Bool("verbose") {
				level = slog.LevelDebug
			}
			log.SetDefault(log.New(level))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "analyze",
				Usage:     "run pre-execution analysis on a hex code file",
				ArgsUsage: "<hexfile>",
				Action:    analyzeAction,
			},
			{
				Name:      "validate",
				Usage:     "validate an EOF container from a hex code file",
				ArgsUsage: "<hexfile>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "initcode",
						Usage: "validate in initcode mode (truncated data allowed)",
					},
				},
				Action: validateAction,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func readCode(ctx *cli.Context) ([]byte, error) {
	if ctx.NArg() != 1 {
		return nil, fmt.Errorf("expected exactly one code file argument")
	}
	raw, err := os.ReadFile(ctx.Args().First())
	if err != nil {
		return nil, err
	}
	s := strings.TrimSpace(string(raw))
	s = strings.TrimPrefix(s, "0x")
	code, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding hex: %w", err)
	}
	return code, nil
}

func analyzeAction(ctx *cli.Context) error {
	code, err := readCode(ctx)
	if err != nil {
		return err
	}
	analysis, err := vm.Analyze(vm.ForkRules{IsPrague: true}, code)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}
	if !analysis.IsEOF() {
		jumpdests := 0
		for i := 0; i < analysis.CodeSize; i++ {
			if analysis.ValidJumpdest(uint64(i)) {
				jumpdests++
			}
		}
		fmt.Printf("legacy code: %d bytes, %d valid jumpdests, padded to %d bytes\n",
			analysis.CodeSize, jumpdests, len(analysis.PaddedCode))
		return nil
	}
	h := analysis.Container.Header
	fmt.Printf("EOF v%d container: %d bytes\n", h.Version, len(code))
	for i, size := range h.CodeSizes {
		t := h.Types[i]
		fmt.Printf("  code %d: offset %d size %d inputs %d outputs 0x%02x max_stack %d\n",
			i, h.CodeOffsets[i], size, t.Inputs, t.Outputs, t.MaxStack)
	}
	for i, size := range h.ContainerSizes {
		fmt.Printf("  container %d: offset %d size %d\n", i, h.ContainerOffsets[i], size)
	}
	fmt.Printf("  data: offset %d declared %d actual %d\n",
		h.DataOffset, h.DataSize, len(analysis.Container.Data()))
	return nil
}

func validateAction(ctx *cli.Context) error {
	code, err := readCode(ctx)
	if err != nil {
		return err
	}
	mode := vm.ModeRuntime
	if ctx.Bool("initcode") {
		mode = vm.ModeInitcode
	}
	if _, err := vm.ValidateContainer(code, mode); err != nil {
		return fmt.Errorf("invalid container: %w", err)
	}
	fmt.Printf("valid EOF container (%s mode)\n", mode)
	return nil
}
