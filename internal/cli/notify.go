package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/pveith/trix/pkg/models"
)

var daemonAddr string

var notifyCmd = &cobra.Command{
	Use:   "notify <event_id>",
	Short: "Push an event notification to a running daemon",
	Long: `Sends a notification for the given event id to the running trix daemon,
as the chain listener would. The event row must already exist in the store.
Useful for re-driving an event whose push notification was lost.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		eventID := args[0]

		payload, err := json.Marshal(models.EventNotification{EventID: eventID})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding notification: %v\n", err)
			os.Exit(1)
		}

		url := fmt.Sprintf("http://%s/v1/notify", daemonAddr)
		resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error sending notification to %s: %v\n", url, err)
			fmt.Fprintln(os.Stderr, "Is the trix daemon running?")
			os.Exit(1)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			fmt.Printf("Event %s processed.\n", eventID)
			return
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		fmt.Fprintf(os.Stderr, "Error: daemon returned %s\n", resp.Status)
		if len(body) > 0 {
			fmt.Fprintf(os.Stderr, "Response: %s\n", body)
		}
		os.Exit(1)
	},
}

func init() {
	notifyCmd.Flags().StringVar(&daemonAddr, "addr", "localhost:8080", "Address of the running daemon")
	rootCmd.AddCommand(notifyCmd)
}
