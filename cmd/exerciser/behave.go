package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/programme-lv/exerciser/internal/behave"
	"github.com/programme-lv/exerciser/internal/environment"
	"github.com/urfave/cli/v3"
)

func behaveCommand(cfg *environment.EnvConfig) *cli.Command {
	return &cli.Command{
		Name:      "behave",
		Usage:     "run behaviour scenarios and report mismatches",
		ArgsUsage: "<scenarios.toml>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return cli.Exit("usage: exerciser behave <scenarios.toml>", 2)
			}
			suite, err := behave.Parse(cmd.Args().First())
			if err != nil {
				return err
			}
			p, err := newPipeline(cmd, cfg)
			if err != nil {
				return err
			}

			results, err := behave.Run(ctx, suite, behave.Options{
				Boxes:  p.boxes,
				Ports:  p.ports,
				Runner: p.runCfg,
				Logger: p.logger,
			})
			if err != nil {
				return err
			}

			pass := color.New(color.FgGreen, color.Bold)
			fail := color.New(color.FgRed, color.Bold)
			failed := 0
			for _, r := range results {
				if r.Passed() {
					pass.Fprint(os.Stdout, "PASS ")
					fmt.Println(r.Case.Name)
					continue
				}
				failed++
				fail.Fprint(os.Stdout, "FAIL ")
				fmt.Println(r.Case.Name)
				for _, m := range r.Mismatches {
					fmt.Printf("     %s\n", m)
				}
			}
			fmt.Printf("%d/%d scenarios passed\n", len(results)-failed, len(results))
			if failed > 0 {
				return cli.Exit(fmt.Sprintf("%d scenario(s) failed", failed), 1)
			}
			return nil
		},
	}
}
