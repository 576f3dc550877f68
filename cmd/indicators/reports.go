package main

import (
	"fmt"

	"github.com/couchcryptid/indicator-etl/internal/pipeline"
	"github.com/spf13/cobra"
)

func newLatestCommand(flags *sourceFlags) *cobra.Command {
	var (
		field string
		year  int
	)
	cmd := &cobra.Command{
		Use:   "latest CODE",
		Short: "Print the latest observation of an indicator for a country",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := flags.session(cmd)
			if err != nil {
				return err
			}
			var at *int
			if cmd.Flags().Changed("year") {
				at = &year
			}
			o, ok := s.Lookup(field, args[0], at)
			if !ok {
				return fmt.Errorf("no %s observation for %s", field, args[0])
			}
			return printJSON(cmd, o)
		},
	}
	cmd.Flags().StringVar(&field, "field", pipeline.FieldInternet, "indicator: internet, gdp or electricity")
	cmd.Flags().IntVar(&year, "year", 0, "latest at or before this year instead of overall latest")
	return cmd
}

func newProsperityCommand(flags *sourceFlags) *cobra.Command {
	var year int
	cmd := &cobra.Command{
		Use:   "prosperity",
		Short: "Join adoption with GDP per capita as of a year",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := flags.session(cmd)
			if err != nil {
				return err
			}
			y, err := resolveYear(cmd, s, year)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"year":     y,
				"rows":     nonNil(s.Prosperity(y)),
				"failures": s.SourceFailures(),
			})
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "target year (default: most recent adoption year)")
	return cmd
}

func newContinentsCommand(flags *sourceFlags) *cobra.Command {
	var year int
	cmd := &cobra.Command{
		Use:   "continents",
		Short: "Mean adoption and GDP per capita by continent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := flags.session(cmd)
			if err != nil {
				return err
			}
			y, err := resolveYear(cmd, s, year)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"year":     y,
				"groups":   nonNil(s.ContinentSummary(y)),
				"failures": s.SourceFailures(),
			})
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "target year (default: most recent adoption year)")
	return cmd
}

func newGapCommand(flags *sourceFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "gap",
		Short: "Electricity access minus internet adoption, latest per country",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := flags.session(cmd)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"rows":     nonNil(s.ElectricityGap()),
				"failures": s.SourceFailures(),
			})
		},
	}
}

func newTopCommand(flags *sourceFlags) *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Highest adoption among countries reporting the most recent year",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if n <= 0 {
				return fmt.Errorf("--n must be positive")
			}
			s, err := flags.session(cmd)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"observations": nonNil(s.TopAdopters(n)),
				"failures":     s.SourceFailures(),
			})
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 10, "number of countries")
	return cmd
}

func newCompareCommand(flags *sourceFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "compare CODE_A CODE_B",
		Short: "Latest adoption, GDP and gap for two countries",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := flags.session(cmd)
			if err != nil {
				return err
			}
			return printJSON(cmd, s.Compare(args[0], args[1]))
		},
	}
}

func resolveYear(cmd *cobra.Command, s *pipeline.Session, year int) (int, error) {
	if cmd.Flags().Changed("year") {
		return year, nil
	}
	y, ok := s.DefaultYear()
	if !ok {
		return 0, fmt.Errorf("no adoption years loaded")
	}
	return y, nil
}
