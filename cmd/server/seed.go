package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/warp/backoffice/seed"
)

func seedCmd() *cobra.Command {
	var scenarioID, file string
	var appendOnly bool

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a scenario into the store",
		Long: `Seed loads a built-in scenario (--scenario) or a YAML file (--file).
The store is reset first unless --append is given. Development only.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (scenarioID == "") == (file == "") {
				infos, err := seed.List()
				if err != nil {
					return err
				}
				ids := make([]string, len(infos))
				for i, info := range infos {
					ids[i] = info.ID
				}
				return fmt.Errorf("specify exactly one of --scenario or --file (built-in: %v)", ids)
			}

			var scenario *seed.Scenario
			var err error
			if file != "" {
				scenario, err = seed.ParseFile(file)
			} else {
				scenario, err = seed.Builtin(scenarioID)
			}
			if err != nil {
				return err
			}

			store, cleanup, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			loader := seed.NewLoader(store, logger)
			if appendOnly {
				return loader.Apply(cmd.Context(), scenario)
			}
			return loader.Load(cmd.Context(), scenario)
		},
	}

	cmd.Flags().StringVar(&scenarioID, "scenario", "", "built-in scenario ID")
	cmd.Flags().StringVar(&file, "file", "", "scenario YAML file")
	cmd.Flags().BoolVar(&appendOnly, "append", false, "keep existing data")
	return cmd
}
