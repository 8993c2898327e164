package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"mediaforge/encoder"
	"mediaforge/models"
)

const pollInterval = 500 * time.Millisecond

func newTranscodeCommand(ctx *commandContext) *cobra.Command {
	var (
		encoderName string
		encoderArgs string
		mediaType   string
		wait        bool
	)

	cmd := &cobra.Command{
		Use:   "transcode <input> <output>",
		Short: "Transcode a media file from one volume to another",
		Long: `Transcode reads <input> (a media urn or a locator) and writes the
result to the <output> locator. The encoder runs in this process, so the
command returns once the task finished; --wait prints progress meanwhile.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			sub, err := a.jobs.Submit(cmd.Context(), models.TranscodeRequest{
				Input:     args[0],
				Output:    args[1],
				Encoder:   encoderName,
				Args:      encoderArgs,
				MediaType: mediaType,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "task: %s\nurn:  %s\n", sub.Task.ID, sub.Output.URN)

			if wait {
				watchProgress(cmd, a, sub.Task, out)
			}
			res, err := sub.Task.Wait(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "status: %s\n", res.Status)
			if res.Status != models.StatusReady {
				return res.Err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&encoderName, "encoder", "e", "", "Encoder name (defaults to default_encoder)")
	cmd.Flags().StringVarP(&encoderArgs, "args", "a", "", "Encoder arguments, shell quoted")
	cmd.Flags().StringVar(&mediaType, "media-type", "", "Media type of the output")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Print progress until the task finishes")
	return cmd
}

// watchProgress prints the published status of task until it is done.
func watchProgress(cmd *cobra.Command, a *app, task *encoder.Task, out io.Writer) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-task.Done():
			fmt.Fprintln(out)
			return
		case <-cmd.Context().Done():
			return
		case <-ticker.C:
			status, ok, err := a.jobs.Status(cmd.Context(), task.ID)
			if err != nil || !ok {
				continue
			}
			fmt.Fprintf(out, "\r%5.1f%%  eta %ds   ", status.Progress, status.ETA)
		}
	}
}
