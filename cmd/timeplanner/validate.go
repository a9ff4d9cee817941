package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"timeplanner/internal/config"
	"timeplanner/internal/model"
	"timeplanner/internal/propagation"
	"timeplanner/internal/validation"
)

var errInvalidSchedule = errors.New("schedule is invalid")

func newValidateCmd() *cobra.Command {
	var poolSize int

	cmd := &cobra.Command{
		Use:   "validate <schedule.yaml|schedule.json>",
		Short: "Check a weekly schedule file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := config.LoadSchedule(args[0])
			if err != nil {
				return err
			}

			errs := validation.ValidateWithOptions(s, validation.Options{QueuePoolSize: poolSize})
			out := cmd.OutOrStdout()
			for _, path := range errs.Fields() {
				fmt.Fprintf(out, "%s: %s\n", path, validation.Describe(path, errs[path]))
			}
			if !errs.OK() {
				return fmt.Errorf("%w: %d errors", errInvalidSchedule, len(errs))
			}

			active := len(s.ActiveDays())
			fmt.Fprintf(out, "ok: %d active days, break on all: %t\n", active, propagation.BreakAppliedToAll(s))
			return nil
		},
	}
	cmd.Flags().IntVar(&poolSize, "queue-pool", model.DefaultQueuePoolSize, "number of selectable queues, 0 disables the range check")
	return cmd
}
