package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/app"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/config"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/features"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/livecontext"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/model"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/predictor"
	"github.com/iot-for-tillgenglighet/api-shiftadvisor/internal/pkg/shiftlog"
)

var (
	dataDir  string
	user     string
	password string
	verbose  bool

	current *app.App
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "shiftctl",
		Short:         "Log gig shifts and find the most profitable hour to start",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log.SetFormatter(&log.JSONFormatter{})
			if verbose {
				log.SetLevel(log.DebugLevel)
			} else {
				log.SetLevel(log.WarnLevel)
			}

			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if dataDir != "" {
				cfg.Storage.DataDir = dataDir
			}

			current, err = app.Build(cfg, nil)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if current != nil {
				current.Close()
			}
		},
	}

	root.PersistentFlags().StringVar(&dataDir, "data-dir", "", "directory holding logs, models and credentials (overrides SHIFTADVISOR_DATA_DIR)")
	root.PersistentFlags().StringVarP(&user, "user", "u", os.Getenv("SHIFTCTL_USER"), "account name")
	root.PersistentFlags().StringVarP(&password, "password", "p", os.Getenv("SHIFTCTL_PASSWORD"), "account password")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output")

	root.AddCommand(
		newRegisterCmd(),
		newLogCmd(),
		newHistoryCmd(),
		newImportCmd(),
		newTrainCmd(),
		newBestHourCmd(),
		newStatusCmd(),
	)

	return root
}

func authenticate() error {
	if user == "" {
		return errors.New("--user is required")
	}
	return current.Credentials.Authenticate(user, password)
}

func locate(ctx context.Context) *livecontext.Location {
	loc, err := current.Locator.Locate(ctx)
	if err != nil {
		log.Warnf("Unable to determine location: %s", err.Error())
		return nil
	}
	return &loc
}

func newRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.Credentials.Register(user, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s.\n", user)
			return nil
		},
	}
}

func newLogCmd() *cobra.Command {
	var (
		date, start, end, weather, traffic string
		earnings                           float64
		useLocation                        bool
	)

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Log a completed shift",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := authenticate(); err != nil {
				return err
			}

			t, err := shiftlog.ParseTraffic(traffic)
			if err != nil {
				return err
			}

			r := shiftlog.Record{Date: date, StartHour: start, EndHour: end, Earnings: earnings, Weather: weather, Traffic: t}

			var loc *livecontext.Location
			if useLocation {
				loc = locate(cmd.Context())
			}

			stored, err := current.Service.LogShift(cmd.Context(), user, r, loc)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Logged %s %s-%s $%.2f (weather %q, traffic %s).\n",
				stored.Date, stored.StartHour, stored.EndHour, stored.Earnings, stored.Weather, stored.Traffic)
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "shift date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&start, "start", "", "start hour, e.g. 14, 14:30 or 02:30 PM")
	cmd.Flags().StringVar(&end, "end", "", "end hour")
	cmd.Flags().Float64Var(&earnings, "earnings", 0, "amount earned")
	cmd.Flags().StringVar(&weather, "weather", "", "weather label")
	cmd.Flags().StringVar(&traffic, "traffic", "", "congestion value, empty for unknown")
	cmd.Flags().BoolVar(&useLocation, "locate", false, "fill missing weather and traffic from live conditions")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("earnings")

	return cmd
}

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Print logged shifts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := authenticate(); err != nil {
				return err
			}

			records, err := current.Service.History(user)
			if err != nil {
				return err
			}

			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No shifts logged yet.")
				return nil
			}

			return shiftlog.WriteCSV(cmd.OutOrStdout(), records)
		},
	}
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <earnings.csv>",
		Short: "Append shifts from an existing earnings file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := authenticate(); err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			outcome, err := current.Service.Import(cmd.Context(), user, f)
			if err != nil {
				return err
			}

			for _, skipped := range outcome.Skipped {
				fmt.Fprintf(cmd.ErrOrStderr(), "Skipped %s %s: %s\n", skipped.Record.Date, skipped.Record.StartHour, skipped.Err.Error())
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d shifts.\n", outcome.Imported, outcome.Imported+len(outcome.Skipped))
			return nil
		},
	}
}

func newTrainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Train the earnings model on all logged shifts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := authenticate(); err != nil {
				return err
			}

			outcome, err := current.Service.Train(cmd.Context(), user)

			var insufficient *model.InsufficientDataError
			if errors.As(err, &insufficient) {
				return fmt.Errorf("need at least %d shifts to train, have %d", insufficient.Required, insufficient.Count)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Trained on %d shifts at %s.\n", outcome.RecordCount, outcome.TrainedAt.Format(time.RFC3339))
			return nil
		},
	}
}

func newBestHourCmd() *cobra.Command {
	var (
		weather, traffic string
		useLocation      bool
		all              bool
	)

	cmd := &cobra.Command{
		Use:   "best-hour",
		Short: "Recommend the most profitable hour to start",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := authenticate(); err != nil {
				return err
			}

			var (
				result predictor.Result
				err    error
			)

			if useLocation {
				loc := locate(cmd.Context())
				if loc == nil {
					loc = &livecontext.Location{}
				}

				var snapshot livecontext.Snapshot
				result, snapshot, err = current.Service.BestHourAt(cmd.Context(), user, *loc)
				if err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Conditions near %s: %q, traffic %s.\n", loc, snapshot.Condition, snapshot.Congestion)
				}
			} else {
				t, parseErr := shiftlog.ParseTraffic(traffic)
				if parseErr != nil {
					return parseErr
				}
				result, err = current.Service.BestHour(user, features.LiveContext{Condition: weather, Congestion: t})
			}

			var noModel *model.NoModelError
			if errors.As(err, &noModel) {
				return errors.New("no trained model yet, run `shiftctl train` first")
			}
			if err != nil {
				return err
			}

			if all {
				for _, c := range result.Candidates {
					fmt.Fprintf(cmd.OutOrStdout(), "%02d:00  $%.2f\n", c.Hour, c.PredictedEarnings)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Best hour to start: %02d:00 (predicted $%.2f).\n", result.Hour, result.PredictedEarnings)
			return nil
		},
	}

	cmd.Flags().StringVar(&weather, "weather", "", "current weather label")
	cmd.Flags().StringVar(&traffic, "traffic", "", "current congestion value, empty for unknown")
	cmd.Flags().BoolVar(&useLocation, "locate", false, "use live conditions at the current location")
	cmd.Flags().BoolVar(&all, "all", false, "print every candidate hour")

	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show log and model state",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := authenticate(); err != nil {
				return err
			}

			status, err := current.Service.Status(user)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Account:  %s\n", status.Account)
			fmt.Fprintf(out, "State:    %s\n", status.State)
			fmt.Fprintf(out, "Shifts:   %d (training needs %d)\n", status.Records, status.MinRecords)
			if status.TrainedAt != nil {
				fmt.Fprintf(out, "Trained:  %s on %d shifts, %d logged since\n",
					status.TrainedAt.Format(time.RFC3339), status.TrainedOnRecords, status.RecordsSinceTraining)
			}
			return nil
		},
	}
}
