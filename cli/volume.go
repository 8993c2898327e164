package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"mediaforge/logger"
)

func newVolumeCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "volume",
		Short: "Inspect and modify resources on configured volumes",
	}
	cmd.AddCommand(newVolumeListCommand(ctx))
	cmd.AddCommand(newVolumeCopyCommand(ctx))
	cmd.AddCommand(newVolumeRemoveCommand(ctx))
	return cmd
}

func newVolumeListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ls <locator>",
		Short: "List a directory or collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStorage(ctx, func(s *storage) error {
				d, loc, err := s.selector.Resolve(args[0])
				if err != nil {
					return err
				}
				dirs, files, err := d.ListDir(cmd.Context(), loc)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, name := range dirs {
					fmt.Fprintln(out, name+"/")
				}
				for _, name := range files {
					fmt.Fprintln(out, name)
				}
				return nil
			})
		},
	}
}

func newVolumeCopyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cp <source> <destination>",
		Short: "Copy a resource between volumes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStorage(ctx, func(s *storage) error {
				srcDriver, src, err := s.selector.Resolve(args[0])
				if err != nil {
					return err
				}
				dstDriver, dst, err := s.selector.Resolve(args[1])
				if err != nil {
					return err
				}

				r, err := srcDriver.Open(cmd.Context(), src)
				if err != nil {
					return fmt.Errorf("opening %s: %w", src.Redacted(), err)
				}
				defer r.Close()
				if err := dstDriver.Save(cmd.Context(), dst, r); err != nil {
					return fmt.Errorf("saving %s: %w", dst.Redacted(), err)
				}
				logger.Infof("Copied %s to %s", src.Redacted(), dst.Redacted())
				return nil
			})
		},
	}
}

func newVolumeRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <locator>",
		Short: "Delete a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStorage(ctx, func(s *storage) error {
				d, loc, err := s.selector.Resolve(args[0])
				if err != nil {
					return err
				}
				return d.Delete(cmd.Context(), loc)
			})
		},
	}
}
