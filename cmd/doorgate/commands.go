package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/doorgate/internal/infrastructure/config"
	"github.com/nerrad567/doorgate/internal/logline"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// getConfigPath resolves the configuration file: the --config flag, then
// DOORGATE_CONFIG, then the default path.
func getConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv("DOORGATE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

func newRootCmd() *cobra.Command {
	var configFlag string

	root := &cobra.Command{
		Use:           "doorgate",
		Short:         "MQTT gateway for door access controllers",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFlag, "config", "", "path to config.yaml (default $DOORGATE_CONFIG or "+defaultConfigPath+")")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the gateway until interrupted",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd.Context(), getConfigPath(configFlag))
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Load and validate the configuration file",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				path := getConfigPath(configFlag)
				if _, err := config.Load(path); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
				return nil
			},
		},
		newEncodeCmd(),
		newDecodeCmd(),
	)

	return root
}

// encodeOptions holds the flags of the encode command.
type encodeOptions struct {
	kind       string
	timestamp  string
	door       int
	boot       int
	reader     int
	card       int64
	authorized bool
	order      string
}

func newEncodeCmd() *cobra.Command {
	var o encodeOptions

	cmd := &cobra.Command{
		Use:   "encode [message...]",
		Short: "Print one log line in controller wire format",
		Long: `Encode builds a log line exactly as a controller would publish it.
For --kind system the remaining arguments form the message.`,
		Example: `  doorgate encode --kind access --door 5 --boot 3 --reader 2 --card 99 --authorized
  doorgate encode --kind system --door 7 door held open`,
		RunE: func(cmd *cobra.Command, args []string) error {
			order, err := logline.ParseFieldOrder(o.order)
			if err != nil {
				return err
			}
			ev, err := o.event(args)
			if err != nil {
				return err
			}
			line, err := logline.NewCodec(order).Encode(ev)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.kind, "kind", "access", "event kind: access or system")
	f.StringVar(&o.timestamp, "timestamp", "", "timestamp token (default: current Unix seconds)")
	f.IntVar(&o.door, "door", 0, "door id")
	f.IntVar(&o.boot, "boot", logline.NoBootCount, "boot count, -1 for none")
	f.IntVar(&o.reader, "reader", logline.ReaderInternal, "reader id (access only)")
	f.Int64Var(&o.card, "card", 0, "card id (access only)")
	f.BoolVar(&o.authorized, "authorized", false, "access was granted (access only)")
	f.StringVar(&o.order, "field-order", config.FieldOrderReaderAuthCard, "access field order")

	return cmd
}

func (o encodeOptions) event(args []string) (logline.Event, error) {
	ts := o.timestamp
	if ts == "" {
		ts = strconv.FormatInt(time.Now().Unix(), 10)
	}

	ev := logline.Event{
		Timestamp: ts,
		DoorID:    o.door,
		BootCount: o.boot,
	}

	switch strings.ToLower(o.kind) {
	case "access":
		if len(args) > 0 {
			return ev, fmt.Errorf("access events take no message arguments")
		}
		ev.Kind = logline.KindAccess
		ev.ReaderID = o.reader
		ev.Authorized = o.authorized
		ev.CardID = o.card
	case "system":
		ev.Kind = logline.KindSystem
		ev.Message = strings.Join(args, " ")
	default:
		return ev, fmt.Errorf("unknown kind %q (want access or system)", o.kind)
	}
	return ev, nil
}

func newDecodeCmd() *cobra.Command {
	var order string

	cmd := &cobra.Command{
		Use:   "decode [line]",
		Short: "Parse log lines and print them as JSON",
		Long: `Decode parses the line given as argument, or every line on standard
input, and prints one JSON object per line. It fails on the first line
that does not parse.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fo, err := logline.ParseFieldOrder(order)
			if err != nil {
				return err
			}
			codec := logline.NewCodec(fo)
			enc := json.NewEncoder(cmd.OutOrStdout())

			emit := func(line string) error {
				ev, err := codec.Decode(line)
				if err != nil {
					return err
				}
				return enc.Encode(ev)
			}

			if len(args) == 1 {
				return emit(args[0])
			}

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if err := emit(line); err != nil {
					return err
				}
			}
			return scanner.Err()
		},
	}

	cmd.Flags().StringVar(&order, "field-order", config.FieldOrderReaderAuthCard, "access field order")
	return cmd
}
