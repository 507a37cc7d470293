package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ignite/bulk-mailer/internal/app"
	"github.com/ignite/bulk-mailer/internal/service/bulksend"
)

func (c *cli) sendCmd() *cobra.Command {
	var (
		in       bulksend.JobInput
		bodyFile string
		recFile  string
		dryRun   bool
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a message to a recipient list and wait for the result",
		Long: `send runs every chunk in this process and prints the final status
messages. Recipients come from --recipients, --recipients-file, or both.
With --dry-run it prints the chunk layout and sends nothing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			// Chunks run inline, so no queue consumer is needed.
			cfg.Queue.Type = "memory"

			if bodyFile != "" {
				data, err := os.ReadFile(bodyFile)
				if err != nil {
					return fmt.Errorf("read body: %w", err)
				}
				in.Body = string(data)
			}
			if recFile != "" {
				f, err := os.Open(recFile)
				if err != nil {
					return fmt.Errorf("open recipients: %w", err)
				}
				defer f.Close()
				st, err := f.Stat()
				if err != nil {
					return fmt.Errorf("stat recipients: %w", err)
				}
				in.RecipientsFile = f
				in.RecipientsFileName = filepath.Base(recFile)
				in.RecipientsFileSize = st.Size()
			}

			ctx := cmd.Context()
			a, err := app.New(ctx, cfg, c.opts)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if dryRun {
				plan, err := a.Service.Plan(ctx, in)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%d recipients in %d chunks of up to %d\n",
					plan.Recipients(), len(plan.Chunks), plan.BatchSize)
				for _, ch := range plan.Chunks {
					fmt.Fprintf(out, "chunk %d: %d\n", ch.Index, ch.Len())
				}
				if plan.Capped {
					fmt.Fprintln(out, "recipient cap reached; later addresses were ignored")
				}
				return nil
			}

			job, err := a.Service.RunInline(ctx, in)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "job %s: %s\n", job.ID, job.Status)
			for _, m := range job.Messages {
				if m.URL != "" {
					fmt.Fprintf(out, "[%s] %s %s\n", m.Level, m.Text, m.URL)
					continue
				}
				fmt.Fprintf(out, "[%s] %s\n", m.Level, m.Text)
			}
			if job.ReportFile != "" {
				fmt.Fprintf(out, "report: %s\n", job.ReportFile)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&in.Sender, "sender", "", "sender email address")
	f.StringVar(&in.Subject, "subject", "", "message subject")
	f.StringVar(&in.Body, "body", "", "message body")
	f.StringVar(&bodyFile, "body-file", "", "read the message body from a file")
	f.StringVar(&in.RecipientsText, "recipients", "", "recipient addresses separated by spaces, commas or newlines")
	f.StringVar(&recFile, "recipients-file", "", "CSV or TXT file of recipients")
	f.IntVar(&in.BatchSize, "batch-size", 0, "recipients per chunk (default: saved setting)")
	f.BoolVar(&dryRun, "dry-run", false, "print the chunk layout without sending")
	cmd.MarkFlagsMutuallyExclusive("body", "body-file")
	return cmd
}
