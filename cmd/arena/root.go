package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"pkg.world.dev/world-engine/arena"
	"pkg.world.dev/world-engine/arena/config"
	"pkg.world.dev/world-engine/arena/storage/redis"
	"pkg.world.dev/world-engine/arena/types"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "arena",
		Short:         "Runs real-time turn-based territory matches",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.RegisterFlags(root.PersistentFlags())
	root.AddCommand(newServeCmd(), newBoardCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduler and the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			a, err := arena.New(cfg)
			if err != nil {
				return err
			}
			return a.Start()
		},
	}
}

func newBoardCmd() *cobra.Command {
	board := &cobra.Command{
		Use:   "board",
		Short: "Manage the board catalog",
	}
	board.AddCommand(newBoardPutCmd(), newBoardListCmd())
	return board
}

func newBoardPutCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "put [name]",
		Short: "Store a board read from a JSON file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(file)
			if err != nil {
				return eris.Wrapf(err, "failed to read %q", file)
			}
			var b types.Board
			if err := json.Unmarshal(raw, &b); err != nil {
				return eris.Wrapf(err, "failed to decode %q", file)
			}
			if len(args) == 1 {
				b.Name = args[0]
			}
			if b.Name == "" {
				return eris.New("board name is required")
			}

			st, err := openStorage(cmd)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.PutBoard(cmd.Context(), b); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored board %q (%dx%d, %d seats)\n", b.Name, b.Width, b.Height, b.Seats)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the board JSON file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newBoardListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the boards in the catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStorage(cmd)
			if err != nil {
				return err
			}
			defer st.Close()
			names, err := st.ListBoards(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func openStorage(cmd *cobra.Command) (*redis.Storage, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	return redis.NewRedisStorage(redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       0, // use default DB
	}, cfg.Namespace), nil
}
