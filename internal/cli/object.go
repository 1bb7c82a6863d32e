package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/aravindh-murugesan/paperscout-go/internal/storage"
)

var (
	signAttachment       bool
	objectRegion, bucket string
	downloadDir          string
)

var objectCommand = &cobra.Command{
	Use:     "object",
	Short:   "Sign, preview and download stored papers",
	GroupID: "storage",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCommand.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		if objectRegion != "" || bucket != "" {
			t := application.Storage.Target()
			if objectRegion != "" {
				t.Region = objectRegion
			}
			if bucket != "" {
				t.Bucket = bucket
			}
			application.Storage.SetTarget(t.Region, t.Bucket)
		}
		return nil
	},
}

var objectSignCommand = &cobra.Command{
	Use:   "sign <object path or URL>",
	Short: "Print a time-limited URL for an object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d := storage.Inline
		if signAttachment {
			d = storage.Attachment
		}
		signed, err := application.Storage.SignURL(commandContext(cmd), args[0], d)
		if err != nil {
			return err
		}
		return render(cmd, map[string]string{"url": signed}, func(w io.Writer) {
			fmt.Fprintln(w, signed)
		})
	},
}

var objectPreviewCommand = &cobra.Command{
	Use:   "preview <object path or URL>",
	Short: "Open an object in the browser",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		signed, err := application.Storage.Preview(commandContext(cmd), args[0])
		if err != nil {
			return err
		}
		return render(cmd, map[string]string{"url": signed}, func(w io.Writer) {
			label(w, "Opened", mutedStyle.Render(signed))
		})
	},
}

var objectDownloadCommand = &cobra.Command{
	Use:   "download <object path or URL>",
	Short: "Save an object to disk",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := downloadDir
		if dir == "" {
			dir = application.Config.Storage.DownloadDir
		}
		path, err := application.Storage.Download(commandContext(cmd), args[0], dir)
		if err != nil {
			return err
		}
		return render(cmd, map[string]string{"path": path}, func(w io.Writer) {
			label(w, "Saved", path)
		})
	},
}

var credentialsCommand = &cobra.Command{
	Use:     "credentials",
	Short:   "Inspect the cached storage credentials",
	GroupID: "storage",
}

var credentialsStatusCommand = &cobra.Command{
	Use:   "status",
	Short: "Obtain (or reuse) storage credentials and show their expiry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := application.Storage.Credentials().Bundle(commandContext(cmd))
		if err != nil {
			return err
		}
		t := application.Storage.Target()
		status := map[string]any{
			"backend":   t.Backend,
			"region":    t.Region,
			"bucket":    t.Bucket,
			"expiresAt": b.ExpiresAt.Format(time.RFC3339),
			"validFor":  time.Until(b.ExpiresAt).Round(time.Second).String(),
		}
		return render(cmd, status, func(w io.Writer) {
			label(w, "Backend", t.Backend)
			label(w, "Bucket", fmt.Sprintf("%s (%s)", t.Bucket, t.Region))
			label(w, "Expires", status["expiresAt"])
			label(w, "Valid for", status["validFor"])
		})
	},
}

func init() {
	rootCommand.AddCommand(objectCommand, credentialsCommand)
	objectCommand.AddCommand(objectSignCommand, objectPreviewCommand, objectDownloadCommand)
	credentialsCommand.AddCommand(credentialsStatusCommand)

	objectCommand.PersistentFlags().StringVar(&objectRegion, "region", "", "Override storage.region")
	objectCommand.PersistentFlags().StringVar(&bucket, "bucket", "", "Override storage.bucket")
	objectSignCommand.Flags().BoolVar(&signAttachment, "attachment", false, "Sign for download instead of inline display")
	objectDownloadCommand.Flags().StringVar(&downloadDir, "dir", "", "Destination directory (default storage.download_dir)")
}
