package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/teslamqtt/app"
	"github.com/kilianp07/teslamqtt/config"
	coremetrics "github.com/kilianp07/teslamqtt/core/metrics"
	"github.com/kilianp07/teslamqtt/core/model"
)

var vehiclesTimeout time.Duration

var vehiclesCmd = &cobra.Command{
	Use:   "vehicles",
	Short: "List the vehicles of the account",
	Args:  cobra.NoArgs,
	RunE:  runVehicles,
}

var vehicleStateCmd = &cobra.Command{
	Use:   "state <vehicle-id>",
	Short: "Print the climate state of a vehicle",
	Args:  cobra.ExactArgs(1),
	RunE:  runVehicleState,
}

func init() {
	vehiclesCmd.PersistentFlags().DurationVar(&vehiclesTimeout, "timeout", 30*time.Second, "request timeout")
	vehiclesCmd.AddCommand(vehicleStateCmd)
	rootCmd.AddCommand(vehiclesCmd)
}

func runVehicles(cmd *cobra.Command, args []string) error {
	cfg, cleanup, err := setup(config.Config.Validate)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(cmd.Context(), vehiclesTimeout)
	defer cancel()
	vehicles, err := app.NewAPI(cfg.Tesla, coremetrics.NopSink{}).ListVehicles(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tVIN\tNAME\tSTATE")
	for _, v := range vehicles {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", v.ID, v.VIN, v.DisplayName, v.State)
	}
	return w.Flush()
}

func runVehicleState(cmd *cobra.Command, args []string) error {
	id, err := model.ParseVehicleID(args[0])
	if err != nil {
		return err
	}
	cfg, cleanup, err := setup(config.Config.Validate)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(cmd.Context(), vehiclesTimeout)
	defer cancel()
	state, err := app.NewAPI(cfg.Tesla, coremetrics.NopSink{}).VehicleState(ctx, id)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}
