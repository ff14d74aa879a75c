package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/IYouKnow/atlas-probe/internal/fault"
	"github.com/IYouKnow/atlas-probe/internal/probe"
	"github.com/IYouKnow/atlas-probe/internal/storage"
)

var driveSizeCmd = &cobra.Command{
	Use:   "drive-size [mount-path]",
	Short: "Show total and available bytes of a mounted volume",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(cfg)
		if err != nil {
			return err
		}
		size, err := svc.GetDriveSize(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if raw, _ := cmd.Flags().GetBool("bytes"); raw {
			fmt.Fprintf(out, "%d %d\n", size.Total, size.Available)
			return nil
		}
		fmt.Fprintf(out, "total:     %s\navailable: %s\n", storage.FormatBytes(size.Total), storage.FormatBytes(size.Available))
		return nil
	},
}

var folderSizeCmd = &cobra.Command{
	Use:   "folder-size [path]",
	Short: "Sum the sizes of every file below a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := cfg
		if noDedupe, _ := cmd.Flags().GetBool("no-dedupe-hardlinks"); noDedupe {
			c.Folder.DedupeHardLinks = false
		}
		svc, err := newService(c)
		if err != nil {
			return err
		}
		size, err := svc.GetFolderSize(cmd.Context(), probe.FolderSizeRequest{Path: args[0]})
		if err != nil {
			return err
		}

		if raw, _ := cmd.Flags().GetBool("bytes"); raw {
			fmt.Fprintln(cmd.OutOrStdout(), size)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", storage.FormatBytes(size), args[0])
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send [address] [port] [json]",
	Short: "Send one JSON message over TCP and print the reply",
	Example: `  atlas send 127.0.0.1 9000 '{"cmd":"status"}'
  atlas send device.local 7000 '"ping"' --framing until-eof`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := strconv.ParseUint(args[1], 10, 16)
		if err != nil {
			return fault.New(fault.InvalidAddress, "address", args[1], err)
		}
		svc, err := newService(cfg)
		if err != nil {
			return err
		}
		reply, err := svc.SendTCPMessage(cmd.Context(), probe.TCPRequest{
			Address: args[0],
			Port:    uint16(port),
			Message: json.RawMessage(args[2]),
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), reply)
		return nil
	},
}

var volumesCmd = &cobra.Command{
	Use:   "volumes",
	Short: "List mounted volumes and their capacity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(cfg)
		if err != nil {
			return err
		}
		vols, err := svc.ListVolumes(cmd.Context())
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "MOUNT\tFSTYPE\tTOTAL\tUSED\tAVAILABLE")
		for _, v := range vols {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", v.MountPoint, v.FSType,
				storage.FormatBytes(v.Total), storage.FormatBytes(v.Used), storage.FormatBytes(v.Available))
		}
		return tw.Flush()
	},
}

var storageCmd = &cobra.Command{
	Use:     "storage [title=path]...",
	Short:   "Report disk usage of directories grouped by category",
	Example: `  atlas storage data=$HOME/.local/share/app cache=$HOME/.cache/app`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		categories := make([]storage.Category, 0, len(args))
		for _, a := range args {
			c, err := storage.ParseCategory(a)
			if err != nil {
				return err
			}
			categories = append(categories, c)
		}
		svc, err := newService(cfg)
		if err != nil {
			return err
		}
		rep, err := svc.StorageReport(cmd.Context(), categories)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, d := range rep.Details {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Title, d.Formatted, d.Path)
		}
		fmt.Fprintf(tw, "total\t%s\t", rep.Formatted)
		if rep.Total > 0 {
			fmt.Fprintf(tw, "%.2f%% of %s", rep.UsedPercent, storage.FormatBytes(rep.Total))
		}
		fmt.Fprintln(tw)
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(driveSizeCmd, folderSizeCmd, sendCmd, volumesCmd, storageCmd)

	driveSizeCmd.Flags().Bool("bytes", false, "print raw byte counts")

	folderSizeCmd.Flags().Bool("bytes", false, "print the raw byte count only")
	folderSizeCmd.Flags().Bool("best-effort", false, "skip subdirectories that cannot be read instead of failing")
	folderSizeCmd.Flags().Int("workers", 1, "directories read concurrently")
	folderSizeCmd.Flags().Bool("no-dedupe-hardlinks", false, "count every hard link of a file")
	viper.BindPFlag("folder.best_effort", folderSizeCmd.Flags().Lookup("best-effort"))
	viper.BindPFlag("folder.workers", folderSizeCmd.Flags().Lookup("workers"))

	sendCmd.Flags().String("framing", "single-read", "reply framing: single-read or until-eof")
	sendCmd.Flags().String("buffer", "1KiB", "read buffer for single-read framing")
	sendCmd.Flags().Duration("timeout", 0, "connect timeout (default from tcp.dial_timeout)")
	sendCmd.Flags().String("socks5", "", "dial through this SOCKS5 proxy")
	viper.BindPFlag("tcp.framing", sendCmd.Flags().Lookup("framing"))
	viper.BindPFlag("tcp.read_buffer", sendCmd.Flags().Lookup("buffer"))
	viper.BindPFlag("tcp.dial_timeout", sendCmd.Flags().Lookup("timeout"))
	viper.BindPFlag("tcp.socks5", sendCmd.Flags().Lookup("socks5"))
}
