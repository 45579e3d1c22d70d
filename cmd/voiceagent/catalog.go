package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-voice-agent/internal/log"
	"github.com/teslashibe/go-voice-agent/pkg/agent"
	"github.com/teslashibe/go-voice-agent/pkg/expert"
)

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List completion providers and whether they are configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			router, err := agent.BuildRouter(cfg, log.L())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tMODEL\tCONFIGURED\tFREE\tACTIVE")
			for _, p := range router.Providers() {
				active := ""
				if p.Active {
					active = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%t\t%s\n", p.ID, p.Name, p.DefaultModel, p.Configured, p.Free, active)
			}
			return w.Flush()
		},
	}
}

func expertsCmd() *cobra.Command {
	var option string
	cmd := &cobra.Command{
		Use:   "experts",
		Short: "List experts and coaching options",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			catalog := expert.Default()
			if cfg.Experts.Path != "" {
				if err := catalog.LoadFile(cfg.Experts.Path); err != nil {
					return err
				}
			}

			experts := catalog.Experts()
			if option != "" {
				experts = catalog.ForOption(option)
			}

			out := cmd.OutOrStdout()
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tRATING\tEXPERTISE")
			for _, e := range experts {
				fmt.Fprintf(w, "%s\t%s\t%.1f\t%s\n", e.ID(), e.Name, e.Rating, strings.Join(e.Expertise, ", "))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if option != "" {
				return nil
			}

			fmt.Fprintln(out)
			w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "COACHING OPTION\tLEVEL\tDURATION\tCATEGORY")
			for _, o := range catalog.CoachingOptions() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", o.Name, o.Level, o.Duration, o.Category)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&option, "option", "o", "", "only experts suited to this coaching option")
	return cmd
}
