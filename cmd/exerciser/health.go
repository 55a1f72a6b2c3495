package main

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/programme-lv/exerciser/internal/environment"
	"github.com/programme-lv/exerciser/internal/langs"
	"github.com/programme-lv/exerciser/internal/sandbox"
	"github.com/urfave/cli/v3"
)

type feedbackRow struct {
	unit    string
	health  int // 0 - OK, 1 - Warning, 2 - Error
	message string
}

func healthCommand(cfg *environment.EnvConfig) *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "check that the sandbox works and which language toolchains are installed",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			p, err := newPipeline(cmd, cfg)
			if err != nil {
				return err
			}

			rows := []feedbackRow{checkSandbox(ctx, p.boxes)}
			if rows[0].health != 2 {
				rows = append(rows, checkLanguages(p.registry)...)
			}
			outputFeedback(rows)

			if rows[0].health == 2 {
				return cli.Exit("sandbox is not usable", 1)
			}
			return nil
		},
	}
}

func checkSandbox(ctx context.Context, boxes sandbox.Factory) feedbackRow {
	row := feedbackRow{unit: "sandbox (" + boxes.Name() + ")"}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	box, err := boxes.NewBox(ctx)
	if err != nil {
		row.health, row.message = 2, err.Error()
		return row
	}
	defer box.Close()

	if err := box.AddFile("main.sh", []byte("read x; echo \"hello $x\"\n")); err != nil {
		row.health, row.message = 2, err.Error()
		return row
	}
	rd, err := box.Run(ctx, "sh main.sh", []byte("world\n"), sandbox.DefaultConstraints())
	if err != nil {
		row.health, row.message = 2, err.Error()
		return row
	}
	if got := strings.TrimSpace(string(rd.Stdout)); rd.ExitCode != 0 || got != "hello world" {
		row.health = 2
		row.message = fmt.Sprintf("unexpected result: exit %d, stdout %q, stderr %q", rd.ExitCode, got, rd.Stderr)
		return row
	}
	row.message = fmt.Sprintf("ran a test program in %d ms", rd.WallMs)
	return row
}

// checkLanguages only looks the toolchains up on PATH; a missing one makes
// its exercises fail to compile but does not stop the service.
func checkLanguages(registry *langs.Registry) []feedbackRow {
	var rows []feedbackRow
	for _, l := range registry.List() {
		row := feedbackRow{unit: l.Name}
		var cmds []string
		if l.CompileCmd != nil {
			cmds = append(cmds, *l.CompileCmd)
		}
		cmds = append(cmds, l.ExecCmd)

		var found []string
		for _, c := range cmds {
			bin := strings.Fields(c)[0]
			if strings.HasPrefix(bin, "./") {
				continue
			}
			path, err := exec.LookPath(bin)
			if err != nil {
				row.health = 1
				row.message = bin + " not found on PATH"
				break
			}
			found = append(found, path)
		}
		if row.health == 0 {
			row.message = strings.Join(found, ", ")
		}
		rows = append(rows, row)
	}
	return rows
}

func outputFeedback(rows []feedbackRow) {
	ok := color.New(color.FgGreen, color.Bold)
	warn := color.New(color.FgYellow, color.Bold)
	bad := color.New(color.FgRed, color.Bold)

	for _, r := range rows {
		switch r.health {
		case 0:
			ok.Print("  OK  ")
		case 1:
			warn.Print(" WARN ")
		default:
			bad.Print(" FAIL ")
		}
		fmt.Printf(" %-28s %s\n", r.unit, r.message)
	}
}
