package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/oriys/tasklet/examples"
	"github.com/oriys/tasklet/internal/domain"
	"github.com/oriys/tasklet/internal/task"
	"github.com/spf13/cobra"
)

func invokeCmd() *cobra.Command {
	var (
		mode    string
		delay   time.Duration
		kwargs  []string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "invoke <task> [args...]",
		Short: "Dispatch a demo task through the configured backend",
		Long:  "Dispatch a demo task. Each argument is decoded as JSON when it parses, otherwise passed as a string.\n" +
			"With the local backend, queued calls finish before the command exits; invoke_async and delay calls still running are lost.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := domain.ParseExecutionMode(mode)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := context.Background()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			app, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			t, ok := examples.Lookup(app, args[0])
			if !ok {
				return fmt.Errorf("unknown task: %s", args[0])
			}

			callArgs := make([]any, 0, len(args)-1+len(kwargs))
			for _, a := range args[1:] {
				callArgs = append(callArgs, parseArg(a))
			}
			kws, err := parseKwargs(kwargs)
			if err != nil {
				return err
			}
			callArgs = append(callArgs, kws...)

			switch m {
			case domain.ModeInvoke:
				v, err := t.Invoke(ctx, callArgs...)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(v)
			case domain.ModeInvokeAsync:
				err = t.InvokeAsync(ctx, callArgs...)
			case domain.ModeQueue:
				err = t.Queue(ctx, callArgs...)
			case domain.ModeDelay:
				err = t.Delay(ctx, delay, callArgs...)
			}
			if err != nil {
				return err
			}
			fmt.Printf("Dispatched %s (%s)\n", t.Name(), m)
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", string(domain.ModeInvoke), "Execution mode (invoke, invoke_async, queue, delay)")
	cmd.Flags().DurationVar(&delay, "delay", time.Second, "Delay for --mode delay")
	cmd.Flags().StringArrayVar(&kwargs, "kw", nil, "Keyword argument (key=value)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Give up after this long")

	return cmd
}

func parseArg(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

func parseKwargs(pairs []string) ([]any, error) {
	out := make([]any, 0, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid keyword argument %q (want key=value)", p)
		}
		out = append(out, task.Kw(k, parseArg(v)))
	}
	return out, nil
}
